// Package openai implements backends for OpenAI-compatible chat-completion
// APIs: OpenAI itself, DeepSeek and Doubao (Volcengine Ark).
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/provider"
)

// Config describes one OpenAI-compatible endpoint.
type Config struct {
	Name        string
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client is a provider.Backend over /chat/completions.
type Client struct {
	cfg    Config
	client *resty.Client
}

var _ provider.Backend = (*Client)(nil)

// New creates a client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.CodeAPIKeyMissing, fmt.Sprintf("backend %s has no api key", cfg.Name)).
			WithSuggestion("Set api_key for the backend in hearth.yaml or export the provider's API key variable")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend %s has no base url", cfg.Name)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &Client{cfg: cfg, client: client}, nil
}

// Name returns the configured backend name.
func (c *Client) Name() string { return c.cfg.Name }

type chatRequest struct {
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	Temperature float64            `json:"temperature"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends the prompt to /chat/completions.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := chatRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}
	if req.Model != "" {
		body.Model = req.Model
	}
	if req.Temperature != 0 {
		body.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}

	var out chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &provider.APIError{Backend: c.cfg.Name, StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%s returned no choices", c.cfg.Name)
	}

	return &provider.Response{
		Content:    strings.TrimSpace(out.Choices[0].Message.Content),
		Model:      out.Model,
		StopReason: out.Choices[0].FinishReason,
		Usage: provider.Usage{
			InputTokens:  out.Usage.PromptTokens,
			OutputTokens: out.Usage.CompletionTokens,
		},
	}, nil
}
