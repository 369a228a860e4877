package embed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	defaultEmbeddingBase  = "https://api.openai.com/v1"
	defaultEmbeddingModel = "text-embedding-3-small"
)

// OpenAIConfig configures an OpenAI-compatible /embeddings endpoint. Ollama's
// /v1 API and most hosted providers accept the same request shape.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int     // expected size; 0 learns it from the first response
	RateLimit  float64 // requests per second, 0 = unlimited
	Timeout    time.Duration
}

// OpenAIEmbedder calls an embeddings API over HTTP.
type OpenAIEmbedder struct {
	cfg     OpenAIConfig
	client  *resty.Client
	limiter *rate.Limiter
	dims    atomic.Int64
	version string
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an HTTP embedder. It is safe for concurrent use.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEmbeddingBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultEmbeddingModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	e := &OpenAIEmbedder{cfg: cfg, client: client, version: openAIVersion(cfg)}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	e.dims.Store(int64(cfg.Dimensions))
	return e
}

type embeddingRequest struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type embeddingError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (e *OpenAIEmbedder) Dimensions() int { return int(e.dims.Load()) }

// Version names the endpoint host and model, plus the dimensions when they
// are configured. Two servers hosting the same model name may embed
// differently, so vectors from one are never compared with the other's.
func (e *OpenAIEmbedder) Version() string { return e.version }

func openAIVersion(cfg OpenAIConfig) string {
	host := cfg.BaseURL
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		host = u.Host
	}
	v := "openai:" + host + "/" + cfg.Model
	if cfg.Dimensions > 0 {
		v += "/" + strconv.Itoa(cfg.Dimensions)
	}
	return v
}

// Embed requests a vector for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embedder rate limit: %w", err)
		}
	}

	var out embeddingResponse
	var apiErr embeddingError
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(embeddingRequest{Input: text, Model: e.cfg.Model}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/embeddings")
	if err != nil {
		return nil, fmt.Errorf("embedder request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = resp.String()
		}
		return nil, fmt.Errorf("embedder API error (status %d): %s", resp.StatusCode(), msg)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("embedder returned no vector")
	}

	vec := out.Data[0].Embedding
	if want := e.dims.Load(); want == 0 {
		e.dims.CompareAndSwap(0, int64(len(vec)))
	} else if int64(len(vec)) != want {
		return nil, fmt.Errorf("embedder returned %d dimensions, expected %d", len(vec), want)
	}
	return vec, nil
}
