package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cadre-oss/hearth/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chat, memory and metrics over HTTP",
	Long: `Start the HTTP server.

Routes:
  POST /v1/chat               run a turn (creates a session when none is given)
  POST /v1/sessions           start a session
  GET  /v1/facts, /v1/stats   inspect memory
  GET  /v1/events             lifecycle events (SSE)
  GET  /metrics               Prometheus metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	engine, cfg, logger, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	srv := server.New(engine, engine.Bus(), logger, Version).WithCORSOrigins(cfg.Server.CORSOrigins)
	return srv.Start(ctx, addr)
}
