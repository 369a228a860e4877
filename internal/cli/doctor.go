package cli

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/hearth/internal/agent"
	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/persona"
	"github.com/cadre-oss/hearth/internal/provider"
	"github.com/cadre-oss/hearth/internal/provider/registry"
	"github.com/cadre-oss/hearth/internal/token"
)

var doctorPing bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, persona, storage and backends",
	Long:  "Validate that the configuration, persona, memory storage, embedder and backend credentials are usable.",
	RunE:  runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorPing, "ping", false, "send a short request to each configured backend")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "hearth doctor: checking your setup")
	fmt.Fprintln(w)
	allOK := true
	fail := func(format string, a ...interface{}) {
		fmt.Fprintf(w, format+" ✗\n", a...)
		allOK = false
	}

	fmt.Fprintf(w, "  Go version: %s ✓\n", runtime.Version())
	fmt.Fprintf(w, "  Platform:   %s/%s ✓\n", runtime.GOOS, runtime.GOARCH)

	cfg, err := loadConfig()
	if err != nil {
		fail("  Config:     %v", err)
		fmt.Fprintln(w, "    → Run 'hearth init' to create one")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Some checks failed. See above for details.")
		return nil
	}
	fmt.Fprintf(w, "  Config:     %s ✓\n", configPath())

	if p, err := persona.Load(cfg.Agent.Persona); err != nil {
		fail("  Persona:    %v", err)
	} else {
		var est token.Estimator
		used := est.EstimateMessage(p.Preamble())
		if used > cfg.Memory.TokenBudget {
			fail("  Persona:    %s uses %d of %d tokens", p.Name, used, cfg.Memory.TokenBudget)
			fmt.Fprintln(w, "    → Shorten the persona or raise memory.token_budget")
		} else {
			fmt.Fprintf(w, "  Persona:    %s (%d of %d tokens) ✓\n", p.Name, used, cfg.Memory.TokenBudget)
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	emb, embErr := agent.NewEmbedder(cfg.Embedding)
	if embErr != nil {
		fail("  Embedder:   %v", embErr)
	} else if _, err := emb.Embed(ctx, "hearth doctor"); err != nil {
		fail("  Embedder:   %s (%v)", emb.Version(), err)
	} else {
		fmt.Fprintf(w, "  Embedder:   %s ✓\n", emb.Version())
	}

	if st, err := agent.OpenStorage(ctx, cfg.Memory); err != nil {
		fail("  Storage:    %s (%v)", cfg.Memory.Driver, err)
	} else {
		n, err := st.CountEpisodes(ctx)
		if err != nil {
			fail("  Storage:    %s (%v)", cfg.Memory.Driver, err)
		} else {
			fmt.Fprintf(w, "  Storage:    %s, %d episodes ✓\n", cfg.Memory.Driver, n)
		}
		if embErr == nil && err == nil {
			if stale, err := st.CountStale(ctx, emb.Version()); err != nil {
				fail("  Episodes:   %v", err)
			} else if stale > 0 {
				fail("  Episodes:   %d of %d embedded with another version", stale, n)
				fmt.Fprintln(w, "    → They are ignored by recall; switch embedding back or start a new store")
			} else {
				fmt.Fprintln(w, "  Episodes:   embedding version matches ✓")
			}
		}
		st.Close()
	}

	for _, name := range []string{cfg.Dispatcher.Primary, cfg.Dispatcher.Fallback} {
		if name == "" {
			continue
		}
		b, _ := cfg.Backend(name)
		if !checkBackendKey(w, b, fail) || !doctorPing {
			continue
		}
		if err := pingBackend(ctx, b); err != nil {
			fail("    ping %s: %v", b.Name, err)
		} else {
			fmt.Fprintf(w, "    ping %s: replied ✓\n", b.Name)
		}
	}

	fmt.Fprintln(w)
	if allOK {
		fmt.Fprintln(w, "All checks passed!")
	} else {
		fmt.Fprintln(w, "Some checks failed. See above for details.")
	}
	return nil
}

// checkBackendKey reports whether the backend has the credentials it needs.
func checkBackendKey(w io.Writer, b config.BackendConfig, fail func(string, ...interface{})) bool {
	env := config.APIKeyEnv(b.Kind)
	switch {
	case env == "":
		fmt.Fprintf(w, "  Backend:    %s (%s, no key needed) ✓\n", b.Name, b.Kind)
	case b.APIKey != "":
		fmt.Fprintf(w, "  Backend:    %s (%s, key ***%s) ✓\n", b.Name, b.Kind, b.APIKey[max(0, len(b.APIKey)-4):])
	default:
		fail("  Backend:    %s (%s) %s NOT SET", b.Name, b.Kind, env)
		fmt.Fprintf(w, "    → Set %s or backends[].api_key\n", env)
		return false
	}
	return true
}

func pingBackend(ctx context.Context, b config.BackendConfig) error {
	backend, err := registry.NewBackend(b)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err = backend.Complete(ctx, &provider.Request{
		Messages:  []provider.Message{{Role: provider.RoleUser, Content: "ping"}},
		MaxTokens: 8,
	})
	return err
}
