package testutil

import (
	"sync"
	"testing"

	"github.com/cadre-oss/hearth/internal/config"
	"github.com/cadre-oss/hearth/internal/event"
	"github.com/cadre-oss/hearth/internal/memory"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

// TestHarness provides the collaborators of a conversation engine for tests:
// config, storage, event bus with capture, mock backends and an embedder.
type TestHarness struct {
	T        *testing.T
	Config   *config.Config
	Storage  *memory.InMemoryStorage
	EventBus *event.Bus
	Logger   *telemetry.Logger
	Metrics  *telemetry.Metrics
	Primary  *MockBackend
	Fallback *MockBackend
	Embedder *StaticEmbedder

	mu     sync.Mutex
	events []event.Event
}

// NewTestHarness creates a test harness with default configuration.
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	logger := TestLogger()
	bus := event.NewBus(logger)

	h := &TestHarness{
		T:        t,
		Config:   TestConfig(),
		Storage:  memory.NewInMemoryStorage(),
		EventBus: bus,
		Logger:   logger,
		Metrics:  telemetry.NewMetrics(),
		Primary:  &MockBackend{BackendName: "primary"},
		Fallback: &MockBackend{BackendName: "fallback"},
		Embedder: &StaticEmbedder{},
	}

	bus.Register(&eventCapture{harness: h})
	return h
}

// Events returns a copy of the captured events.
func (h *TestHarness) Events() []event.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]event.Event, len(h.events))
	copy(out, h.events)
	return out
}

// AssertEventEmitted checks that an event with the given type was emitted.
func (h *TestHarness) AssertEventEmitted(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) == 0 {
		h.T.Errorf("expected event %q to be emitted", eventType)
	}
}

// AssertNoEvent checks that an event type was NOT emitted.
func (h *TestHarness) AssertNoEvent(eventType event.EventType) {
	h.T.Helper()
	if h.EventCount(eventType) > 0 {
		h.T.Errorf("expected event %q NOT to be emitted, but it was", eventType)
	}
}

// EventCount returns the number of events with the given type.
func (h *TestHarness) EventCount(eventType event.EventType) int {
	count := 0
	for _, e := range h.Events() {
		if e.Type == eventType {
			count++
		}
	}
	return count
}

// eventCapture is a blocking hook so events are recorded before Emit returns.
type eventCapture struct {
	harness *TestHarness
}

func (c *eventCapture) Name() string                 { return "test-capture" }
func (c *eventCapture) Matches(event.EventType) bool { return true }
func (c *eventCapture) IsBlocking() bool             { return true }

func (c *eventCapture) Handle(ev event.Event) error {
	c.harness.mu.Lock()
	defer c.harness.mu.Unlock()
	c.harness.events = append(c.harness.events, ev)
	return nil
}
