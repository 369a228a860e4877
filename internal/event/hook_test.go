package event

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cadre-oss/hearth/internal/config"
)

func TestShellHook_Matches(t *testing.T) {
	hook := NewShellHook("test", "echo hi", []EventType{TurnCompleted, FactCaptured}, false)

	if !hook.Matches(TurnCompleted) {
		t.Error("should match TurnCompleted")
	}
	if !hook.Matches(FactCaptured) {
		t.Error("should match FactCaptured")
	}
	if hook.Matches(BackendDegraded) {
		t.Error("should not match BackendDegraded")
	}
}

func TestShellHook_Execute(t *testing.T) {
	hook := NewShellHook("test", `test "$HEARTH_EVENT_TYPE" = turn.completed`, []EventType{TurnCompleted}, false)

	ev := NewEvent(TurnCompleted, map[string]interface{}{"seq": 3})
	err := hook.Handle(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestShellHook_Failure(t *testing.T) {
	hook := NewShellHook("test", "false", []EventType{TurnCompleted}, true)

	ev := NewEvent(TurnCompleted, nil)
	err := hook.Handle(ev)
	if err == nil {
		t.Fatal("expected error from failed shell command")
	}
}

func TestWebhookHook_Execute(t *testing.T) {
	var received struct {
		mu   sync.Mutex
		body []byte
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received.mu.Lock()
		received.body = body
		received.mu.Unlock()
		w.WriteHeader(200)
	}))
	defer server.Close()

	hook := NewWebhookHook("test", server.URL, []EventType{BackendDegraded}, true)
	ev := NewEvent(BackendDegraded, map[string]interface{}{"backend": "local"})
	err := hook.Handle(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	received.mu.Lock()
	defer received.mu.Unlock()

	var payload Event
	if err := json.Unmarshal(received.body, &payload); err != nil {
		t.Fatalf("failed to parse webhook payload: %v", err)
	}
	if payload.Type != BackendDegraded {
		t.Errorf("expected BackendDegraded, got %s", payload.Type)
	}
}

func TestWebhookHook_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	hook := NewWebhookHook("test", server.URL, []EventType{BackendRecovered}, true)
	err := hook.Handle(NewEvent(BackendRecovered, nil))
	if err == nil {
		t.Fatal("expected error from 500 status")
	}
}

func TestLogHook_Execute(t *testing.T) {
	logger := &testLogger{}
	hook := NewLogHook("test", []EventType{TurnCompleted}, logger, "info")

	ev := NewEvent(TurnCompleted, map[string]interface{}{"seq": 3})
	err := hook.Handle(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// LogHook with a FullLogger calls Info; testLogger implements FullLogger
	// so the warn path won't be used here.
}

func TestLogHook_AlwaysNonBlocking(t *testing.T) {
	hook := NewLogHook("test", nil, &testLogger{}, "debug")
	if hook.IsBlocking() {
		t.Error("log hook should always be non-blocking")
	}
}

func TestBaseHook_MatchesAll(t *testing.T) {
	h := &baseHook{name: "all", events: nil}
	if !h.Matches(TurnCompleted) {
		t.Error("nil events should match everything")
	}
	if !h.Matches(BackendRecovered) {
		t.Error("nil events should match everything")
	}
}

func TestBaseHook_MatchesNone(t *testing.T) {
	h := &baseHook{name: "specific", events: []EventType{BackendDegraded}}
	if h.Matches(TurnCompleted) {
		t.Error("should not match TurnCompleted")
	}
}

func TestNewBusFromConfig(t *testing.T) {
	cfg := config.HooksConfig{
		Enabled: true,
		Hooks: []config.HookConfig{
			{Name: "log", Type: "log", Events: []string{"turn.completed"}},
			{Name: "notify", Type: "webhook", URL: "http://localhost:1", Events: []string{"backend.degraded"}},
			{Name: "script", Type: "shell", Command: "true"},
		},
	}
	bus, err := NewBusFromConfig(cfg, &testLogger{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bus.Len() != 3 {
		t.Errorf("expected 3 hooks, got %d", bus.Len())
	}

	cfg.Enabled = false
	bus, err = NewBusFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bus.Len() != 0 {
		t.Errorf("expected no hooks when disabled, got %d", bus.Len())
	}

	cfg.Enabled = true
	cfg.Hooks = []config.HookConfig{{Name: "bad", Type: "pager"}}
	if _, err := NewBusFromConfig(cfg, nil); err == nil {
		t.Error("expected error for unknown hook type")
	}
}
