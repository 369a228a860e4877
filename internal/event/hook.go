package event

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/go-resty/resty/v2"
)

// Hook processes lifecycle events.
type Hook interface {
	// Name returns the hook's identifier.
	Name() string
	// Matches returns true if the hook should handle this event type.
	Matches(t EventType) bool
	// IsBlocking returns true if the turn should wait for this hook.
	IsBlocking() bool
	// Handle processes an event. For blocking hooks, an error is returned to
	// the emitter.
	Handle(ev Event) error
}

type baseHook struct {
	name     string
	events   []EventType
	blocking bool
}

func (h *baseHook) Name() string     { return h.name }
func (h *baseHook) IsBlocking() bool { return h.blocking }
func (h *baseHook) Matches(t EventType) bool {
	if len(h.events) == 0 {
		return true // no filter matches everything
	}
	for _, ev := range h.events {
		if ev == t {
			return true
		}
	}
	return false
}

// ShellHook executes a shell command with event data in environment variables.
//
// Environment variables set:
//   - HEARTH_EVENT_TYPE: the event type string
//   - HEARTH_EVENT_JSON: JSON-encoded event
type ShellHook struct {
	baseHook
	Command string
}

func NewShellHook(name, command string, events []EventType, blocking bool) *ShellHook {
	return &ShellHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		Command:  command,
	}
}

func (h *ShellHook) Handle(ev Event) error {
	eventJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	cmd := exec.Command("sh", "-c", h.Command)
	cmd.Env = append(os.Environ(),
		"HEARTH_EVENT_TYPE="+string(ev.Type),
		"HEARTH_EVENT_JSON="+string(eventJSON),
	)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("shell hook %s failed: %w", h.name, err)
	}
	return nil
}

// WebhookHook POSTs the event as JSON to a URL.
type WebhookHook struct {
	baseHook
	URL    string
	client *resty.Client
}

func NewWebhookHook(name, url string, events []EventType, blocking bool) *WebhookHook {
	return &WebhookHook{
		baseHook: baseHook{name: name, events: events, blocking: blocking},
		URL:      url,
		client:   resty.New().SetTimeout(10 * time.Second),
	}
}

// SetTimeout overrides the request timeout.
func (h *WebhookHook) SetTimeout(d time.Duration) *WebhookHook {
	h.client.SetTimeout(d)
	return h
}

func (h *WebhookHook) Handle(ev Event) error {
	resp, err := h.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(ev).
		Post(h.URL)
	if err != nil {
		return fmt.Errorf("webhook %s failed: %w", h.name, err)
	}
	if resp.StatusCode() >= 400 {
		return fmt.Errorf("webhook %s returned status %d", h.name, resp.StatusCode())
	}
	return nil
}

// LogHook logs events at the configured level. Always non-blocking.
type LogHook struct {
	baseHook
	logger Logger
	level  string // "debug", "info", "warn"
}

// FullLogger extends Logger with additional log levels for the LogHook.
type FullLogger interface {
	Logger
	Info(msg string, keyvals ...interface{})
	Debug(msg string, keyvals ...interface{})
}

func NewLogHook(name string, events []EventType, logger Logger, level string) *LogHook {
	if level == "" {
		level = "info"
	}
	return &LogHook{
		baseHook: baseHook{name: name, events: events, blocking: false},
		logger:   logger,
		level:    level,
	}
}

func (h *LogHook) Handle(ev Event) error {
	if h.logger == nil {
		return nil
	}
	msg := fmt.Sprintf("[event] %s", ev.Type)
	keyvals := make([]interface{}, 0, len(ev.Data)*2+2)
	keyvals = append(keyvals, "event_type", string(ev.Type))
	for k, v := range ev.Data {
		keyvals = append(keyvals, k, v)
	}

	if fl, ok := h.logger.(FullLogger); ok {
		switch h.level {
		case "debug":
			fl.Debug(msg, keyvals...)
		case "warn":
			fl.Warn(msg, keyvals...)
		default:
			fl.Info(msg, keyvals...)
		}
	} else {
		h.logger.Warn(msg, keyvals...)
	}
	return nil
}
