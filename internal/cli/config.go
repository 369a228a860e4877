package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/persona"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Commands for viewing and modifying hearth.yaml.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value (dot notation, e.g. memory.token_budget)",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the persona file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(configPath())
	if err != nil {
		return err
	}
	applyOverrides(cfg)
	redactKeys(cfg)

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Current Configuration:")
	fmt.Fprintln(w, "----------------------")
	fmt.Fprintln(w, string(out))
	fmt.Fprintf(w, "Config file: %s\n", configPath())
	return nil
}

// redactKeys hides credentials before printing.
func redactKeys(cfg *config.Config) {
	for i := range cfg.Backends {
		if cfg.Backends[i].APIKey != "" {
			cfg.Backends[i].APIKey = "****"
		}
	}
	if cfg.Embedding.APIKey != "" {
		cfg.Embedding.APIKey = "****"
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	path := configPath()
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var doc map[string]interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if doc == nil {
		doc = make(map[string]interface{})
	}

	if err := setNestedValue(doc, args[0], parseScalar(args[1])); err != nil {
		return err
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
	return nil
}

// parseScalar keeps numbers and booleans typed in the written YAML.
func parseScalar(s string) interface{} {
	var v interface{}
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case int, float64, bool:
		return v
	}
	return s
}

func setNestedValue(m map[string]interface{}, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	current := m
	for _, p := range parts[:len(parts)-1] {
		next, ok := current[p]
		if !ok {
			child := make(map[string]interface{})
			current[p] = child
			current = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s is not a section", p)
		}
		current = child
	}
	current[parts[len(parts)-1]] = value
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	var problems []string

	cfg, err := loadConfig()
	if err != nil {
		problems = append(problems, fmt.Sprintf("%s: %v", filepath.Base(configPath()), err))
	} else {
		fmt.Fprintf(w, "%s: OK\n", filepath.Base(configPath()))

		if _, err := persona.Load(cfg.Agent.Persona); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", cfg.Agent.Persona, err))
		} else {
			fmt.Fprintf(w, "%s: OK\n", cfg.Agent.Persona)
		}
	}

	if len(problems) > 0 {
		fmt.Fprintln(w, "\nValidation Errors:")
		for _, p := range problems {
			fmt.Fprintf(w, "  - %s\n", p)
		}
		return fmt.Errorf("validation failed with %d errors", len(problems))
	}

	fmt.Fprintln(w, "\nConfiguration valid.")
	return nil
}
