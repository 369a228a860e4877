package cli

import (
	"context"

	"github.com/cadre-oss/hearth/internal/agent"
	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// openEngine loads the configuration and opens the engine. The caller closes
// both the engine and the logger.
func openEngine(ctx context.Context) (*agent.Engine, *config.Config, *telemetry.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	engine, err := agent.Open(ctx, cfg, logger)
	if err != nil {
		logger.Close()
		return nil, nil, nil, err
	}
	return engine, cfg, logger, nil
}
