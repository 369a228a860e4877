package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/hearth/internal/memory"
)

var (
	dumpLimit int
	dumpJSON  bool
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect stored memory",
}

var memoryDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print stored facts and the most recent episodes",
	RunE:  runMemoryDump,
}

var memoryCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check stored episodes against the configured embedding version",
	RunE:  runMemoryCheck,
}

func init() {
	memoryDumpCmd.Flags().IntVarP(&dumpLimit, "limit", "n", 20, "number of episodes")
	memoryDumpCmd.Flags().BoolVar(&dumpJSON, "json", false, "print as JSON")
	memoryCmd.AddCommand(memoryDumpCmd)
	memoryCmd.AddCommand(memoryCheckCmd)
}

func runMemoryDump(cmd *cobra.Command, args []string) error {
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
	episodes, err := engine.RecentEpisodes(cmd.Context(), dumpLimit)
	if err != nil {
		return err
	}

	if dumpJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]interface{}{"facts": facts, "episodes": episodes})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "== Facts (%d) ==\n", len(facts))
	for _, f := range facts {
		fmt.Fprintf(out, "  %s  [%s] %s\n", f.CreatedAt.Format("2006-01-02 15:04"), f.Category, f.Text)
	}

	fmt.Fprintf(out, "\n== Recent episodes (%d) ==\n", len(episodes))
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tTIME\tWHO\tTEXT")
	for _, ep := range episodes {
		who := string(ep.Role)
		if ep.Role == memory.RoleUser && ep.Speaker != "" {
			who = ep.Speaker
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", ep.Seq, ep.CreatedAt.Format("2006-01-02 15:04"), who, ep.Text)
	}
	return w.Flush()
}

func runMemoryCheck(cmd *cobra.Command, args []string) error {
	engine, _, logger, err := openEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	if err := engine.CheckVersion(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "All episodes match the configured embedding version.")
	return nil
}
