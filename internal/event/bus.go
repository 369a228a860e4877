package event

import (
	"fmt"
	"sync"
)

// Bus dispatches events to registered hooks.
//
// Blocking hooks run in registration order before Emit returns and the first
// failure is returned. Non-blocking hooks run in their own goroutines; their
// failures and panics are logged. A nil Bus is a no-op.
type Bus struct {
	mu      sync.RWMutex
	hooks   []Hook
	enabled bool
	logger  Logger
	pending sync.WaitGroup
}

// Logger is a minimal logging interface so the bus doesn't depend on telemetry.
type Logger interface {
	Warn(msg string, keyvals ...interface{})
}

// NewBus creates an enabled event bus. Pass nil logger for silent operation.
func NewBus(logger Logger) *Bus {
	return &Bus{
		hooks:   make([]Hook, 0),
		enabled: true,
		logger:  logger,
	}
}

// Register adds a hook to the bus.
func (b *Bus) Register(h Hook) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hooks = append(b.hooks, h)
}

// Len returns the number of registered hooks.
func (b *Bus) Len() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hooks)
}

// SetEnabled controls whether the bus dispatches events.
func (b *Bus) SetEnabled(enabled bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

// Emit dispatches an event to all matching hooks.
func (b *Bus) Emit(ev Event) error {
	if b == nil {
		return nil
	}
	b.mu.RLock()
	if !b.enabled {
		b.mu.RUnlock()
		return nil
	}
	hooks := make([]Hook, len(b.hooks))
	copy(hooks, b.hooks)
	b.mu.RUnlock()

	for _, h := range hooks {
		if !h.Matches(ev.Type) {
			continue
		}

		if h.IsBlocking() {
			if err := h.Handle(ev); err != nil {
				return fmt.Errorf("blocking hook %s failed: %w", h.Name(), err)
			}
			continue
		}

		b.pending.Add(1)
		go func(hook Hook) {
			defer b.pending.Done()
			defer func() {
				if r := recover(); r != nil && b.logger != nil {
					b.logger.Warn("Non-blocking hook panicked",
						"hook", hook.Name(),
						"event", string(ev.Type),
						"panic", r,
					)
				}
			}()
			if err := hook.Handle(ev); err != nil && b.logger != nil {
				b.logger.Warn("Non-blocking hook failed",
					"hook", hook.Name(),
					"event", string(ev.Type),
					"error", err,
				)
			}
		}(h)
	}

	return nil
}

// Wait blocks until every in-flight non-blocking hook has returned.
func (b *Bus) Wait() {
	if b == nil {
		return
	}
	b.pending.Wait()
}
