package config

import "time"

// Config represents the main project configuration (hearth.yaml)
type Config struct {
	Name       string           `yaml:"name" json:"name"`
	Agent      AgentConfig      `yaml:"agent" json:"agent"`
	Memory     MemoryConfig     `yaml:"memory" json:"memory"`
	Embedding  EmbeddingConfig  `yaml:"embedding" json:"embedding"`
	Backends   []BackendConfig  `yaml:"backends" json:"backends"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" json:"dispatcher"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
	Hooks      HooksConfig      `yaml:"hooks" json:"hooks"`
}

// AgentConfig identifies the companion and where it keeps its files.
type AgentConfig struct {
	Name     string `yaml:"name" json:"name"`
	Persona  string `yaml:"persona" json:"persona"`   // path to persona.yaml or persona.json
	DataDir  string `yaml:"data_dir" json:"data_dir"` // base directory for sqlite and vector files
	Clock    *bool  `yaml:"clock,omitempty" json:"clock,omitempty"`
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// MemoryConfig configures the stores and the context budget. Budget, buffer,
// limit and threshold values have no defaults and must be set explicitly.
type MemoryConfig struct {
	Driver      string `yaml:"driver" json:"driver"`             // sqlite, postgres, memory
	Path        string `yaml:"path" json:"path"`                 // sqlite file or postgres DSN
	VectorIndex string `yaml:"vector_index" json:"vector_index"` // none, chromem
	VectorPath  string `yaml:"vector_path,omitempty" json:"vector_path,omitempty"`

	TokenBudget         int     `yaml:"token_budget" json:"token_budget"`
	BufferTurns         int     `yaml:"buffer_turns" json:"buffer_turns"`
	BufferTokens        int     `yaml:"buffer_tokens" json:"buffer_tokens"`
	FactLimit           int     `yaml:"fact_limit" json:"fact_limit"`
	TopK                int     `yaml:"top_k" json:"top_k"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" json:"similarity_threshold"`

	MinRelevance    float64 `yaml:"min_relevance" json:"min_relevance"`
	RelevanceWeight float64 `yaml:"relevance_weight" json:"relevance_weight"`
	RecencyWeight   float64 `yaml:"recency_weight" json:"recency_weight"`
}

// EmbeddingConfig selects the embedding function.
type EmbeddingConfig struct {
	Kind       string  `yaml:"kind" json:"kind"` // hash, openai
	Model      string  `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL    string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey     string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Dimensions int     `yaml:"dimensions" json:"dimensions"`
	CacheSize  int64   `yaml:"cache_size" json:"cache_size"`                     // cached vectors, 0 disables
	RateLimit  float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"` // requests per second, 0 = unlimited
	Timeout    string  `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// BackendConfig describes one language-model endpoint.
type BackendConfig struct {
	Name        string  `yaml:"name" json:"name"`
	Kind        string  `yaml:"kind" json:"kind"` // openai, deepseek, doubao, ollama, anthropic
	Model       string  `yaml:"model" json:"model"`
	BaseURL     string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`
	MaxRetries  int     `yaml:"max_retries,omitempty" json:"max_retries,omitempty"` // transient-error retries inside one call
}

// DispatcherConfig names the primary and fallback backends and the failover cadence.
type DispatcherConfig struct {
	Primary       string `yaml:"primary" json:"primary"`
	Fallback      string `yaml:"fallback,omitempty" json:"fallback,omitempty"` // empty disables failover
	Timeout       string `yaml:"timeout" json:"timeout"`
	ProbeEvery    int    `yaml:"probe_every" json:"probe_every"`
	ProbeInterval string `yaml:"probe_interval,omitempty" json:"probe_interval,omitempty"`
}

// ServerConfig configures the operator HTTP surface.
type ServerConfig struct {
	Addr        string   `yaml:"addr" json:"addr"`
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"` // debug, info, warn, error
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

// TelemetryConfig configures metrics export and tracing.
type TelemetryConfig struct {
	MetricsFile  string `yaml:"metrics_file,omitempty" json:"metrics_file,omitempty"`   // JSONL, one line per turn
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" json:"otlp_endpoint,omitempty"` // host:port for OTLP/HTTP traces
}

// HooksConfig configures lifecycle event hooks.
type HooksConfig struct {
	Enabled bool         `yaml:"enabled" json:"enabled"`
	Hooks   []HookConfig `yaml:"hooks" json:"hooks"`
}

// HookConfig defines a single hook.
type HookConfig struct {
	Name     string   `yaml:"name" json:"name"`
	Type     string   `yaml:"type" json:"type"`     // shell, webhook, log
	Events   []string `yaml:"events" json:"events"` // event types to match
	Blocking bool     `yaml:"blocking" json:"blocking"`
	Command  string   `yaml:"command,omitempty" json:"command,omitempty"` // for shell hooks
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`         // for webhook hooks
	Level    string   `yaml:"level,omitempty" json:"level,omitempty"`     // for log hooks (debug, info, warn)
}

// Backend returns the descriptor with the given name.
func (c *Config) Backend(name string) (BackendConfig, bool) {
	for _, b := range c.Backends {
		if b.Name == name {
			return b, true
		}
	}
	return BackendConfig{}, false
}

// ClockEnabled reports whether the current-time segment is included.
func (a *AgentConfig) ClockEnabled() bool {
	return a.Clock == nil || *a.Clock
}

// ParsedTimeout converts the per-call timeout string to time.Duration
func (d *DispatcherConfig) ParsedTimeout() (time.Duration, error) {
	if d.Timeout == "" {
		return 30 * time.Second, nil // default
	}
	return time.ParseDuration(d.Timeout)
}

// ParsedProbeInterval returns the re-probe interval, or 0 when probing is
// driven by call count alone.
func (d *DispatcherConfig) ParsedProbeInterval() (time.Duration, error) {
	if d.ProbeInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(d.ProbeInterval)
}

// ParsedTimeout converts the embedding timeout string to time.Duration
func (e *EmbeddingConfig) ParsedTimeout() (time.Duration, error) {
	if e.Timeout == "" {
		return 10 * time.Second, nil // default
	}
	return time.ParseDuration(e.Timeout)
}
