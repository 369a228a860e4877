// Package provider defines the language-model backend contract and the
// failover dispatcher that sits in front of a primary and a fallback backend.
package provider

import (
	"context"
	"fmt"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry of a prompt.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Request is an ordered prompt sent to a backend. Model, MaxTokens and
// Temperature override the backend defaults when set.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// SplitSystem returns the concatenated system messages and the rest, for
// backends that take the system prompt out of band.
func (r *Request) SplitSystem() (string, []Message) {
	var system string
	rest := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

// Response is a backend reply.
type Response struct {
	Content    string `json:"content"`
	Model      string `json:"model,omitempty"`
	Backend    string `json:"backend,omitempty"` // set by the dispatcher
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Usage tracks token usage
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Backend is a chat-completion service.
type Backend interface {
	// Name returns the configured backend name.
	Name() string

	// Complete sends the prompt and returns the reply. It must honour ctx.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// APIError is a non-success HTTP reply from a backend.
type APIError struct {
	Backend    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.Backend, e.StatusCode, e.Body)
}
