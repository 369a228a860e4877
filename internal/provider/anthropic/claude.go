// Package anthropic implements a backend for the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
	"github.com/cadre-oss/hearth/internal/provider"
)

const defaultModel = "claude-sonnet-4-20250514"

// Config describes the Anthropic backend.
type Config struct {
	Name        string
	APIKey      string
	BaseURL     string // optional, for proxies and tests
	Model       string
	Temperature float64
	MaxTokens   int
}

// Client implements provider.Backend with the official SDK.
type Client struct {
	cfg    Config
	client sdk.Client
}

var _ provider.Backend = (*Client)(nil)

// NewClient creates an Anthropic client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperrors.New(apperrors.CodeAPIKeyMissing, "ANTHROPIC_API_KEY not set").
			WithSuggestion("Set the ANTHROPIC_API_KEY environment variable or add api_key to the backend in hearth.yaml")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0), // retries are handled by provider.RetryBackend
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{cfg: cfg, client: sdk.NewClient(opts...)}, nil
}

// Name returns the configured backend name.
func (c *Client) Name() string {
	return c.cfg.Name
}

// Complete sends the prompt through the Messages API. System messages are
// moved into the system parameter.
func (c *Client) Complete(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	system, rest := req.SplitSystem()

	msgs := make([]sdk.MessageParam, 0, len(rest))
	for _, m := range rest {
		block := sdk.NewTextBlock(m.Content)
		if m.Role == provider.RoleAssistant {
			msgs = append(msgs, sdk.NewAssistantMessage(block))
		} else {
			msgs = append(msgs, sdk.NewUserMessage(block))
		}
	}

	model := c.cfg.Model
	if req.Model != "" {
		model = req.Model
	}
	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	temperature := c.cfg.Temperature
	if req.Temperature != 0 {
		temperature = req.Temperature
	}

	params := sdk.MessageNewParams{
		Model:       sdk.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    msgs,
		Temperature: sdk.Float(temperature),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) {
			return nil, &provider.APIError{Backend: c.cfg.Name, StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &provider.Response{
		Content:    strings.TrimSpace(text.String()),
		Model:      string(resp.Model),
		StopReason: string(resp.StopReason),
		Usage: provider.Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
