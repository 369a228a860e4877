package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{
		Memory: MemoryConfig{
			Driver:              "memory",
			TokenBudget:         4000,
			BufferTurns:         10,
			BufferTokens:        800,
			FactLimit:           3,
			TopK:                3,
			SimilarityThreshold: 0.75,
		},
		Backends: []BackendConfig{
			{Name: "primary", Kind: "openai", APIKey: "sk"},
			{Name: "fallback", Kind: "ollama"},
		},
		Dispatcher: DispatcherConfig{Primary: "primary", Fallback: "fallback"},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing budget",
			mutate:  func(c *Config) { c.Memory.TokenBudget = 0 },
			wantErr: "token_budget",
		},
		{
			name:    "missing threshold",
			mutate:  func(c *Config) { c.Memory.SimilarityThreshold = 0 },
			wantErr: "similarity_threshold",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Memory.SimilarityThreshold = 1.5 },
			wantErr: "similarity_threshold",
		},
		{
			name:    "unknown fallback",
			mutate:  func(c *Config) { c.Dispatcher.Fallback = "ghost" },
			wantErr: "dispatcher.fallback",
		},
		{
			name:    "fallback equals primary",
			mutate:  func(c *Config) { c.Dispatcher.Fallback = "primary" },
			wantErr: "must differ",
		},
		{
			name:    "bad backend kind",
			mutate:  func(c *Config) { c.Backends[0].Kind = "gemini" },
			wantErr: "invalid kind",
		},
		{
			name:    "bad driver",
			mutate:  func(c *Config) { c.Memory.Driver = "mongo" },
			wantErr: "invalid memory driver",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Memory.Driver = "postgres"; c.Memory.Path = "" },
			wantErr: "requires memory.path",
		},
		{
			name:    "bad timeout",
			mutate:  func(c *Config) { c.Dispatcher.Timeout = "soon" },
			wantErr: "invalid dispatcher timeout",
		},
		{
			name: "shell hook without command",
			mutate: func(c *Config) {
				c.Hooks.Hooks = []HookConfig{{Name: "h", Type: "shell"}}
			},
			wantErr: "requires a command",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}
