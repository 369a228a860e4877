package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/hearth/internal/config"
)

var (
	initTemplate string
	initForce    bool
)

var initCmd = &cobra.Command{
	Use:   "init [dir]",
	Short: "Write a starter hearth.yaml and persona",
	Long: `Write hearth.yaml, persona.yaml and the .hearth data directory.

Available templates:
  local     - ollama only, hashed embeddings, sqlite (works offline)
  cloud     - deepseek primary with a local ollama fallback
  anthropic - Anthropic primary, ollama fallback, OpenAI embeddings`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVarP(&initTemplate, "template", "t", "local",
		"config template ("+strings.Join(config.TemplateNames(), ", ")+")")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	written, err := config.WriteTemplate(dir, initTemplate, initForce)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(written) == 0 {
		fmt.Fprintf(w, "Nothing written: %s already has %s and %s (use --force to overwrite)\n",
			dir, config.FileName, config.PersonaFileName)
		return nil
	}
	for _, p := range written {
		fmt.Fprintf(w, "  wrote %s\n", p)
	}

	fmt.Fprintf(w, "\nInitialized hearth (%s template) in %s\n", initTemplate, dir)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Edit persona.yaml to describe your companion and its family")
	fmt.Fprintln(w, "  2. Export the API keys your backends need, or use the local template")
	fmt.Fprintln(w, "  3. Run 'hearth doctor', then 'hearth chat'")
	return nil
}
