package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/provider"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// MockBackend implements provider.Backend for testing.
type MockBackend struct {
	BackendName string
	Responses   []string // queued replies, consumed in order
	ShouldFail  bool
	FailErr     error
	Delay       time.Duration

	mu    sync.Mutex
	Calls []*provider.Request
	idx   int
}

func (m *MockBackend) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

func (m *MockBackend) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.ShouldFail {
		if m.FailErr != nil {
			return nil, m.FailErr
		}
		return nil, fmt.Errorf("mock backend error")
	}

	content := "default mock reply"
	if m.idx < len(m.Responses) {
		content = m.Responses[m.idx]
		m.idx++
	}
	return &provider.Response{
		Content:    content,
		Model:      "mock-model",
		StopReason: "stop",
		Usage:      provider.Usage{InputTokens: 10, OutputTokens: 5},
	}, nil
}

// SetFailing toggles failure under the lock so tests can flip it between turns.
func (m *MockBackend) SetFailing(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ShouldFail = fail
}

// CallCount returns the number of Complete calls made (thread-safe).
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastRequest returns the most recent request, or nil.
func (m *MockBackend) LastRequest() *provider.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	return m.Calls[len(m.Calls)-1]
}

// StaticEmbedder maps known texts to fixed vectors. Unknown text gets
// Fallback, or the first unit vector when Fallback is empty.
type StaticEmbedder struct {
	Vectors  map[string][]float32
	Fallback []float32
	Ver      string
	Err      error

	mu    sync.Mutex
	calls int
}

func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.Err != nil {
		return nil, e.Err
	}
	if v, ok := e.Vectors[text]; ok {
		return v, nil
	}
	if len(e.Fallback) > 0 {
		return e.Fallback, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e *StaticEmbedder) Dimensions() int { return 3 }

func (e *StaticEmbedder) Version() string {
	if e.Ver == "" {
		return "static-v1"
	}
	return e.Ver
}

// Calls returns how many texts were embedded.
func (e *StaticEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// TestLogger returns a logger suitable for tests (verbose, no file output).
func TestLogger() *telemetry.Logger {
	return telemetry.NewLogger(true)
}

// TestConfig returns a valid in-memory config with two mock-able backends.
func TestConfig() *config.Config {
	return &config.Config{
		Name: "test-companion",
		Agent: config.AgentConfig{
			Name:    "小星",
			DataDir: ".hearth-test",
		},
		Memory: config.MemoryConfig{
			Driver:              "memory",
			VectorIndex:         "none",
			TokenBudget:         2000,
			BufferTurns:         10,
			BufferTokens:        1000,
			FactLimit:           5,
			TopK:                3,
			SimilarityThreshold: 0.3,
			MinRelevance:        0.1,
			RelevanceWeight:     0.7,
			RecencyWeight:       0.3,
		},
		Embedding: config.EmbeddingConfig{Kind: "hash", Dimensions: 256},
		Backends: []config.BackendConfig{
			{Name: "primary", Kind: "ollama", Model: "qwen2.5", BaseURL: "http://127.0.0.1:11434", Temperature: 0.7, MaxTokens: 200},
			{Name: "fallback", Kind: "ollama", Model: "qwen2.5:0.5b", BaseURL: "http://127.0.0.1:11435", Temperature: 0.7, MaxTokens: 200},
		},
		Dispatcher: config.DispatcherConfig{
			Primary:    "primary",
			Fallback:   "fallback",
			Timeout:    "2s",
			ProbeEvery: 3,
		},
		Server:  config.ServerConfig{Addr: "127.0.0.1:0"},
		Logging: config.LoggingConfig{Level: "debug"},
	}
}
