package agent

import (
	"context"
	"fmt"

	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/embed"
	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/event"
	"github.com/cadre-oss/hearth/internal/memory"
	"github.com/cadre-oss/hearth/internal/persona"
	"github.com/cadre-oss/hearth/internal/provider"
	"github.com/cadre-oss/hearth/internal/provider/registry"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// Open builds an engine from configuration: persona, storage with the
// optional vector index, embedder, hooks, metrics export, tracing and the
// backend dispatcher.
func Open(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (*Engine, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}

	profile, err := loadPersona(cfg)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			_ = c()
		}
	}

	metrics := telemetry.NewMetrics()
	if path := cfg.Telemetry.MetricsFile; path != "" {
		exp, err := telemetry.NewJSONFileExporter(path)
		if err != nil {
			return nil, err
		}
		metrics.SetExporter(exp)
		closers = append(closers, exp.Close)
	}

	if ep := cfg.Telemetry.OTLPEndpoint; ep != "" {
		shutdown, err := telemetry.SetupTracing(ctx, ep, cfg.Name)
		if err != nil {
			cleanup()
			return nil, err
		}
		closers = append(closers, func() error { return shutdown(context.Background()) })
		logger.Debug("Tracing enabled", "endpoint", ep)
	}

	bus, err := event.NewBusFromConfig(cfg.Hooks, logger)
	if err != nil {
		cleanup()
		return nil, err
	}

	embedder, err := NewEmbedder(cfg.Embedding)
	if err != nil {
		cleanup()
		return nil, err
	}
	if c, ok := embedder.(*embed.CachedEmbedder); ok {
		closers = append(closers, func() error { c.Close(); return nil })
	}

	storage, err := OpenStorage(ctx, cfg.Memory)
	if err != nil {
		cleanup()
		return nil, err
	}

	dispatcher, err := registry.NewDispatcher(cfg, registry.Options{
		Logger:  logger,
		Metrics: metrics,
		OnTransition: func(t provider.Transition) {
			typ := event.BackendDegraded
			if t.To == provider.StatePrimaryActive {
				typ = event.BackendRecovered
			}
			data := map[string]interface{}{
				"from": t.From.String(), "to": t.To.String(),
				"primary": t.Primary, "fallback": t.Fallback,
			}
			if t.Cause != nil {
				data["cause"] = t.Cause.Error()
			}
			if err := bus.Emit(event.NewEvent(typ, data)); err != nil {
				logger.Warn("Blocking hook failed", "event", string(typ), "error", err)
			}
			metrics.Flush(string(typ), map[string]string{"primary": t.Primary, "fallback": t.Fallback})
		},
	})
	if err != nil {
		storage.Close()
		cleanup()
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "failed to build backends", err)
	}

	engine, err := NewEngine(ctx, Deps{
		Config:   cfg,
		Persona:  profile,
		Storage:  storage,
		Embedder: embedder,
		Backend:  dispatcher,
		Bus:      bus,
		Logger:   logger,
		Metrics:  metrics,
		closers:  closers,
	})
	if err != nil {
		storage.Close()
		cleanup()
		return nil, err
	}
	return engine, nil
}

func loadPersona(cfg *config.Config) (*persona.Profile, error) {
	if cfg.Agent.Persona == "" {
		return &persona.Profile{Name: cfg.Agent.Name}, nil
	}
	return persona.Load(cfg.Agent.Persona)
}

// OpenStorage opens the configured driver and layers the vector index on top
// when one is selected.
func OpenStorage(ctx context.Context, mc config.MemoryConfig) (memory.Storage, error) {
	s, err := memory.OpenStorage(ctx, mc.Driver, mc.Path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to open memory storage", err)
	}
	if mc.VectorIndex != "chromem" {
		return s, nil
	}
	indexed, err := memory.WithVectorIndex(ctx, s, mc.VectorPath)
	if err != nil {
		s.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to open vector index", err)
	}
	return indexed, nil
}

// NewEmbedder builds the configured embedder, cached when cache_size is set.
func NewEmbedder(ec config.EmbeddingConfig) (embed.Embedder, error) {
	var e embed.Embedder
	switch ec.Kind {
	case "hash", "":
		e = embed.NewHashEmbedder(ec.Dimensions)
	case "openai":
		timeout, err := ec.ParsedTimeout()
		if err != nil {
			return nil, apperrors.Wrapf(apperrors.CodeConfigInvalid, err, "invalid embedding timeout")
		}
		e = embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			BaseURL:    ec.BaseURL,
			APIKey:     ec.APIKey,
			Model:      ec.Model,
			Dimensions: ec.Dimensions,
			RateLimit:  ec.RateLimit,
			Timeout:    timeout,
		})
	default:
		return nil, apperrors.New(apperrors.CodeConfigInvalid, fmt.Sprintf("unsupported embedding kind: %s", ec.Kind))
	}

	if ec.CacheSize > 0 {
		c, err := embed.NewCachedEmbedder(e, ec.CacheSize)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return e, nil
}
