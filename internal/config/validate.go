package config

import (
	"fmt"
	"strings"
	"time"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
)

var (
	validDrivers      = map[string]bool{"sqlite": true, "postgres": true, "memory": true}
	validIndexes      = map[string]bool{"none": true, "chromem": true}
	validEmbedders    = map[string]bool{"hash": true, "openai": true}
	validBackendKinds = map[string]bool{
		"openai":    true,
		"deepseek":  true,
		"doubao":    true,
		"ollama":    true,
		"anthropic": true,
	}
	validHookTypes = map[string]bool{"shell": true, "webhook": true, "log": true}
)

// Validate checks a loaded configuration. Thresholds and budgets are required.
func Validate(cfg *Config) error {
	var errors []string

	m := cfg.Memory
	if m.TokenBudget <= 0 {
		errors = append(errors, "memory.token_budget must be positive")
	}
	if m.BufferTurns <= 0 {
		errors = append(errors, "memory.buffer_turns must be positive")
	}
	if m.BufferTokens <= 0 {
		errors = append(errors, "memory.buffer_tokens must be positive")
	}
	if m.FactLimit <= 0 {
		errors = append(errors, "memory.fact_limit must be positive")
	}
	if m.TopK <= 0 {
		errors = append(errors, "memory.top_k must be positive")
	}
	if m.SimilarityThreshold <= -1 || m.SimilarityThreshold >= 1 || m.SimilarityThreshold == 0 {
		errors = append(errors, "memory.similarity_threshold must be set within (-1, 1)")
	}
	if m.RelevanceWeight < 0 || m.RecencyWeight < 0 {
		errors = append(errors, "memory weights must be non-negative")
	}
	if !validDrivers[m.Driver] {
		errors = append(errors, fmt.Sprintf("invalid memory driver: %s", m.Driver))
	}
	if m.Driver == "postgres" && m.Path == "" {
		errors = append(errors, "postgres driver requires memory.path (DSN)")
	}
	if !validIndexes[m.VectorIndex] {
		errors = append(errors, fmt.Sprintf("invalid vector index: %s", m.VectorIndex))
	}

	if !validEmbedders[cfg.Embedding.Kind] {
		errors = append(errors, fmt.Sprintf("invalid embedding kind: %s", cfg.Embedding.Kind))
	}
	if cfg.Embedding.Kind == "hash" && cfg.Embedding.Dimensions <= 0 {
		errors = append(errors, "embedding.dimensions must be positive")
	}
	if cfg.Embedding.Timeout != "" {
		if _, err := time.ParseDuration(cfg.Embedding.Timeout); err != nil {
			errors = append(errors, fmt.Sprintf("invalid embedding timeout %q: %s", cfg.Embedding.Timeout, err))
		}
	}

	names := make(map[string]bool)
	for _, b := range cfg.Backends {
		if names[b.Name] {
			errors = append(errors, fmt.Sprintf("duplicate backend name: %s", b.Name))
		}
		names[b.Name] = true
		if !validBackendKinds[b.Kind] {
			errors = append(errors, fmt.Sprintf("backend %s has invalid kind: %s", b.Name, b.Kind))
		}
		if b.Kind != "ollama" && b.Kind != "anthropic" && b.BaseURL == "" {
			errors = append(errors, fmt.Sprintf("backend %s requires base_url", b.Name))
		}
		if b.MaxRetries < 0 {
			errors = append(errors, fmt.Sprintf("backend %s max_retries must be non-negative", b.Name))
		}
	}

	d := cfg.Dispatcher
	if !names[d.Primary] {
		errors = append(errors, fmt.Sprintf("dispatcher.primary %q is not a configured backend", d.Primary))
	}
	if d.Fallback != "" {
		if !names[d.Fallback] {
			errors = append(errors, fmt.Sprintf("dispatcher.fallback %q is not a configured backend", d.Fallback))
		}
		if d.Fallback == d.Primary {
			errors = append(errors, "dispatcher.fallback must differ from dispatcher.primary")
		}
	}
	if _, err := time.ParseDuration(d.Timeout); err != nil {
		errors = append(errors, fmt.Sprintf("invalid dispatcher timeout %q: %s", d.Timeout, err))
	}
	if d.ProbeInterval != "" {
		if _, err := time.ParseDuration(d.ProbeInterval); err != nil {
			errors = append(errors, fmt.Sprintf("invalid probe_interval %q: %s", d.ProbeInterval, err))
		}
	}
	if d.ProbeEvery < 0 {
		errors = append(errors, "dispatcher.probe_every must be non-negative")
	}

	for _, h := range cfg.Hooks.Hooks {
		if !validHookTypes[h.Type] {
			errors = append(errors, fmt.Sprintf("hook %s has invalid type: %s", h.Name, h.Type))
		}
		if h.Type == "shell" && h.Command == "" {
			errors = append(errors, fmt.Sprintf("shell hook %s requires a command", h.Name))
		}
		if h.Type == "webhook" && h.URL == "" {
			errors = append(errors, fmt.Sprintf("webhook hook %s requires a url", h.Name))
		}
	}

	if len(errors) > 0 {
		return apperrors.New(apperrors.CodeConfigInvalid, "config validation failed: "+strings.Join(errors, "; ")).
			WithSuggestion("Compare hearth.yaml with the template written by 'hearth init'")
	}
	return nil
}
