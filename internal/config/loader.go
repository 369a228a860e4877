package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
)

// FileName is the project configuration file looked up by Load.
const FileName = "hearth.yaml"

// Default endpoints and models per backend kind.
var kindDefaults = map[string]BackendConfig{
	"ollama":    {Model: "qwen2:0.5b", BaseURL: "http://localhost:11434"},
	"deepseek":  {Model: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1"},
	"openai":    {Model: "gpt-3.5-turbo", BaseURL: "https://api.openai.com/v1"},
	"doubao":    {Model: "doubao-pro-32k", BaseURL: "https://ark.cn-beijing.volces.com/api/v3"},
	"anthropic": {Model: "claude-sonnet-4-20250514"},
}

// API key environment variables per backend kind.
var kindKeyEnv = map[string]string{
	"deepseek":  "DEEPSEEK_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"doubao":    "ARK_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

// Load loads the main project configuration from dir/hearth.yaml.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile loads, interpolates and defaults a configuration file. It does not
// validate; call Validate once CLI overrides are applied.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Wrap(apperrors.CodeConfigNotFound, "no configuration at "+path, err).
				WithSuggestion("Run 'hearth init' to create hearth.yaml and persona.yaml")
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Interpolate environment variables
	content = []byte(interpolateEnv(string(content)))

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigInvalid, "failed to parse config", err)
	}

	ApplyDefaults(&cfg)

	// Relative file paths are resolved against the config file.
	base := filepath.Dir(path)
	paths := []*string{
		&cfg.Agent.Persona, &cfg.Agent.DataDir, &cfg.Memory.VectorPath,
		&cfg.Logging.File, &cfg.Telemetry.MetricsFile,
	}
	if cfg.Memory.Driver == "sqlite" {
		paths = append(paths, &cfg.Memory.Path)
	}
	for _, p := range paths {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	return &cfg, nil
}

// interpolateEnv replaces ${env.VAR} and ${VAR} with environment values
func interpolateEnv(content string) string {
	envPattern := regexp.MustCompile(`\$\{env\.([^}]+)\}`)
	content = envPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match // keep original if not found
	})

	varPattern := regexp.MustCompile(`\$\{([^}]+)\}`)
	content = varPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := varPattern.FindStringSubmatch(match)[1]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return content
}

// ApplyDefaults fills in ambient settings. Budgets, buffer limits, retrieval
// limits and the similarity threshold are left untouched.
func ApplyDefaults(cfg *Config) {
	if cfg.Name == "" {
		cfg.Name = "hearth"
	}
	if cfg.Agent.DataDir == "" {
		cfg.Agent.DataDir = ".hearth"
	}
	if cfg.Memory.Driver == "" {
		cfg.Memory.Driver = "sqlite"
	}
	if cfg.Memory.Path == "" && cfg.Memory.Driver == "sqlite" {
		cfg.Memory.Path = filepath.Join(cfg.Agent.DataDir, "memory.db")
	}
	if cfg.Memory.VectorIndex == "" {
		cfg.Memory.VectorIndex = "none"
	}
	if cfg.Memory.VectorIndex == "chromem" && cfg.Memory.VectorPath == "" {
		cfg.Memory.VectorPath = filepath.Join(cfg.Agent.DataDir, "vectors")
	}
	if cfg.Memory.RelevanceWeight == 0 && cfg.Memory.RecencyWeight == 0 {
		cfg.Memory.RelevanceWeight = 0.7
		cfg.Memory.RecencyWeight = 0.3
	}

	if cfg.Embedding.Kind == "" {
		cfg.Embedding.Kind = "hash"
	}
	if cfg.Embedding.Dimensions == 0 && cfg.Embedding.Kind == "hash" {
		cfg.Embedding.Dimensions = 256
	}
	if cfg.Embedding.Kind == "openai" {
		if cfg.Embedding.Model == "" {
			cfg.Embedding.Model = "text-embedding-3-small"
		}
		if cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	if len(cfg.Backends) == 0 {
		cfg.Backends = []BackendConfig{{Name: "local", Kind: "ollama"}}
	}
	for i := range cfg.Backends {
		applyBackendDefaults(&cfg.Backends[i])
	}
	if cfg.Dispatcher.Primary == "" {
		cfg.Dispatcher.Primary = cfg.Backends[0].Name
	}
	if cfg.Dispatcher.Timeout == "" {
		cfg.Dispatcher.Timeout = "30s"
	}
	if cfg.Dispatcher.ProbeEvery == 0 && cfg.Dispatcher.ProbeInterval == "" {
		cfg.Dispatcher.ProbeEvery = 5
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyBackendDefaults(b *BackendConfig) {
	b.Kind = strings.ToLower(b.Kind)
	if b.Name == "" {
		b.Name = b.Kind
	}
	d := kindDefaults[b.Kind]
	if b.Model == "" {
		b.Model = d.Model
	}
	if b.BaseURL == "" {
		b.BaseURL = d.BaseURL
	}
	if b.APIKey == "" {
		if env, ok := kindKeyEnv[b.Kind]; ok {
			b.APIKey = os.Getenv(env)
		}
	}
	if b.Temperature == 0 {
		b.Temperature = 0.7
	}
	if b.MaxTokens == 0 {
		b.MaxTokens = 500
	}
}

// APIKeyEnv returns the environment variable consulted for a backend kind.
func APIKeyEnv(kind string) string {
	return kindKeyEnv[strings.ToLower(kind)]
}
