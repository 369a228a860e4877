// Package registry builds backends and the dispatcher from configuration.
package registry

import (
	"fmt"

	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/provider"
	"github.com/cadre-oss/hearth/internal/provider/anthropic"
	"github.com/cadre-oss/hearth/internal/provider/ollama"
	"github.com/cadre-oss/hearth/internal/provider/openai"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// Kinds lists the supported backend kinds.
var Kinds = []string{"ollama", "deepseek", "openai", "doubao", "anthropic"}

// NewBackend creates the backend described by cfg, wrapped with retries when
// max_retries is set.
func NewBackend(cfg config.BackendConfig) (provider.Backend, error) {
	var (
		b   provider.Backend
		err error
	)
	switch cfg.Kind {
	case "ollama":
		b = ollama.New(ollama.Config{
			Name:        cfg.Name,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "openai", "deepseek", "doubao":
		b, err = openai.New(openai.Config{
			Name:        cfg.Name,
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	case "anthropic":
		b, err = anthropic.NewClient(anthropic.Config{
			Name:        cfg.Name,
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported backend kind: %s", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaxRetries > 0 {
		b = provider.NewRetryBackend(b, provider.DefaultRetryConfig(cfg.MaxRetries))
	}
	return b, nil
}

// Options carries the runtime collaborators of the dispatcher.
type Options struct {
	Logger       *telemetry.Logger
	Metrics      *telemetry.Metrics
	OnTransition func(provider.Transition)
}

// NewDispatcher builds the primary and fallback backends named in
// cfg.Dispatcher.
func NewDispatcher(cfg *config.Config, opts Options) (*provider.Dispatcher, error) {
	pc, ok := cfg.Backend(cfg.Dispatcher.Primary)
	if !ok {
		return nil, fmt.Errorf("primary backend %q is not configured", cfg.Dispatcher.Primary)
	}
	primary, err := NewBackend(pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create primary backend %s: %w", pc.Name, err)
	}

	var fallback provider.Backend
	if name := cfg.Dispatcher.Fallback; name != "" {
		fc, ok := cfg.Backend(name)
		if !ok {
			return nil, fmt.Errorf("fallback backend %q is not configured", name)
		}
		fallback, err = NewBackend(fc)
		if err != nil {
			return nil, fmt.Errorf("failed to create fallback backend %s: %w", fc.Name, err)
		}
	}

	timeout, err := cfg.Dispatcher.ParsedTimeout()
	if err != nil {
		return nil, fmt.Errorf("invalid dispatcher timeout: %w", err)
	}
	interval, err := cfg.Dispatcher.ParsedProbeInterval()
	if err != nil {
		return nil, fmt.Errorf("invalid probe interval: %w", err)
	}

	return provider.NewDispatcher(primary, fallback, provider.DispatcherOptions{
		Timeout:       timeout,
		ProbeEvery:    cfg.Dispatcher.ProbeEvery,
		ProbeInterval: interval,
		Logger:        opts.Logger,
		Metrics:       opts.Metrics,
		OnTransition:  opts.OnTransition,
	}), nil
}
