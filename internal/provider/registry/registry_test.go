package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadre-oss/hearth/internal/config"
	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/provider"
)

func testConfig() *config.Config {
	return &config.Config{
		Backends: []config.BackendConfig{
			{Name: "local", Kind: "ollama", Model: "qwen2:0.5b", BaseURL: "http://localhost:11434"},
			{Name: "cloud", Kind: "deepseek", Model: "deepseek-chat", BaseURL: "https://api.deepseek.com/v1", APIKey: "k", MaxRetries: 2},
		},
		Dispatcher: config.DispatcherConfig{Primary: "local", Fallback: "cloud", Timeout: "5s", ProbeEvery: 5, ProbeInterval: "1m"},
	}
}

func TestNewBackend_Kinds(t *testing.T) {
	for _, kind := range Kinds {
		b, err := NewBackend(config.BackendConfig{Name: kind, Kind: kind, BaseURL: "http://localhost", APIKey: "k", Model: "m"})
		require.NoError(t, err, kind)
		assert.Equal(t, kind, b.Name())
	}

	_, err := NewBackend(config.BackendConfig{Name: "x", Kind: "gopher"})
	assert.Error(t, err)
}

func TestNewBackend_RetryWrapper(t *testing.T) {
	b, err := NewBackend(testConfig().Backends[1])
	require.NoError(t, err)
	_, ok := b.(*provider.RetryBackend)
	assert.True(t, ok)
}

func TestNewBackend_MissingKey(t *testing.T) {
	_, err := NewBackend(config.BackendConfig{Name: "cloud", Kind: "openai", BaseURL: "http://localhost"})
	assert.Equal(t, apperrors.CodeAPIKeyMissing, apperrors.AsCode(err))
}

func TestNewDispatcher(t *testing.T) {
	d, err := NewDispatcher(testConfig(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "local", d.Primary())
	assert.Equal(t, "cloud", d.Fallback())
	assert.Equal(t, provider.StatePrimaryActive, d.State())

	cfg := testConfig()
	cfg.Dispatcher.Fallback = ""
	d, err = NewDispatcher(cfg, Options{})
	require.NoError(t, err)
	assert.Equal(t, "", d.Fallback())

	cfg.Dispatcher.Primary = "missing"
	_, err = NewDispatcher(cfg, Options{})
	assert.Error(t, err)
}
