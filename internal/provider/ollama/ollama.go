// Package ollama implements a backend for a local Ollama server.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/cadre-oss/hearth/internal/provider"
)

// Config describes an Ollama endpoint.
type Config struct {
	Name        string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Client talks to /api/chat without streaming.
type Client struct {
	cfg    Config
	client *resty.Client
}

var _ provider.Backend = (*Client)(nil)

// New creates a client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	return &Client{cfg: cfg, client: client}
}

func (c *Client) Name() string { return c.cfg.Name }

type chatRequest struct {
	Model    string             `json:"model"`
	Messages []provider.Message `json:"messages"`
	Stream   bool               `json:"stream"`
	Options  map[string]any     `json:"options,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	DoneReason      string `json:"done_reason"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	model := c.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	opts := map[string]any{"temperature": c.cfg.Temperature}
	if req.Temperature != 0 {
		opts["temperature"] = req.Temperature
	}
	if n := c.cfg.MaxTokens; n > 0 || req.MaxTokens > 0 {
		if req.MaxTokens > 0 {
			n = req.MaxTokens
		}
		opts["num_predict"] = n
	}

	var out chatResponse
	var apiErr errorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(chatRequest{Model: model, Messages: req.Messages, Options: opts}).
		SetResult(&out).
		SetError(&apiErr).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		body := apiErr.Error
		if body == "" {
			body = resp.String()
		}
		return nil, &provider.APIError{Backend: c.cfg.Name, StatusCode: resp.StatusCode(), Body: body}
	}

	return &provider.Response{
		Content:    strings.TrimSpace(out.Message.Content),
		Model:      out.Model,
		StopReason: out.DoneReason,
		Usage: provider.Usage{
			InputTokens:  out.PromptEvalCount,
			OutputTokens: out.EvalCount,
		},
	}, nil
}
