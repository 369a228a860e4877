package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/hearth/internal/memory"
)

var factCategory string

var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Manage remembered facts",
}

var factAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Remember a fact explicitly",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFactAdd,
}

var factListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all facts",
	RunE:  runFactList,
}

var factSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank facts against a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFactSearch,
}

func init() {
	factAddCmd.Flags().StringVar(&factCategory, "category", string(memory.CategoryExplicit), "fact category")
	factCmd.AddCommand(factAddCmd)
	factCmd.AddCommand(factListCmd)
	factCmd.AddCommand(factSearchCmd)
}

func runFactAdd(cmd *cobra.Command, args []string) error {
	engine, _, logger, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	f, err := engine.AddFact(cmd.Context(), strings.Join(args, " "), memory.Category(factCategory))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Remembered [%s] %s (%s)\n", f.Category, f.Text, f.ID)
	return nil
}

func runFactList(cmd *cobra.Command, args []string) error {
	engine, _, logger, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	facts, err := engine.ListFacts(cmd.Context())
	if err != nil {
		return err
	}
	if len(facts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No facts yet.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tCATEGORY\tFACT")
	for _, f := range facts {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.CreatedAt.Format("2006-01-02 15:04"), f.Category, f.Text)
	}
	return w.Flush()
}

func runFactSearch(cmd *cobra.Command, args []string) error {
	engine, _, logger, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	scored, err := engine.SearchFacts(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	if len(scored) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching facts.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tRELEVANCE\tFACT")
	for _, f := range scored {
		fmt.Fprintf(w, "%.3f\t%.3f\t%s\n", f.Score, f.Relevance, f.Text)
	}
	return w.Flush()
}
