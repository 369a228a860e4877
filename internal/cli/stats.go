package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/hearth/internal/agent"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory counts and backend state",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, logger, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer logger.Close()
		defer engine.Close()
		s, err := engine.Stats(cmd.Context())
		if err != nil {
			return err
		}
		return printStats(cmd.OutOrStdout(), s, statsJSON)
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print as JSON")
}

func printStats(w io.Writer, s *agent.Stats, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(w, "Persona:    %s (%d of %d tokens)\n", s.Persona, s.PersonaTokens, s.TokenBudget)
	fmt.Fprintf(w, "Facts:      %d\n", s.Facts)
	fmt.Fprintf(w, "Episodes:   %d (last seq %d)\n", s.Episodes, s.LastSeq)
	fmt.Fprintf(w, "Embedding:  %s", s.EmbeddingVersion)
	if s.StaleEpisodes > 0 {
		fmt.Fprintf(w, " (%d episodes from another version are ignored)", s.StaleEpisodes)
	}
	fmt.Fprintln(w)
	if b := s.Backend; b != nil {
		fmt.Fprintf(w, "Backend:    %s, active %s (primary %s", b.State, b.Active, b.Primary)
		if b.Fallback != "" {
			fmt.Fprintf(w, ", fallback %s", b.Fallback)
		}
		fmt.Fprintln(w, ")")
	}
	if b := s.Buffer; b != nil {
		fmt.Fprintf(w, "Buffer:     %d turns, %d tokens\n", b.Turns, b.Tokens)
	}

	keys := make([]string, 0, len(s.Metrics))
	for k := range s.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %-22s %v\n", k, s.Metrics[k])
	}
	return nil
}
