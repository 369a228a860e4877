package server

import (
	"sync"
	"time"

	"github.com/cadre-oss/hearth/internal/agent"
	"github.com/cadre-oss/hearth/internal/telemetry"
)

const defaultSessionTTL = 30 * time.Minute

type trackedSession struct {
	session  *agent.Session
	lastUsed time.Time
}

// SessionManager keeps conversation sessions alive across requests so the
// short-term buffer persists within a session. Idle sessions are dropped.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	engine   *agent.Engine
	logger   *telemetry.Logger
	ttl      time.Duration
	done     chan struct{}
	once     sync.Once
}

// NewSessionManager creates a manager that expires sessions idle for ttl.
func NewSessionManager(engine *agent.Engine, logger *telemetry.Logger, ttl time.Duration) *SessionManager {
	sm := &SessionManager{
		sessions: make(map[string]*trackedSession),
		engine:   engine,
		logger:   logger,
		ttl:      ttl,
		done:     make(chan struct{}),
	}
	go sm.reapLoop()
	return sm
}

// Create starts a session for speaker.
func (sm *SessionManager) Create(speaker string) *agent.Session {
	sess := sm.engine.NewSession(speaker)
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[sess.ID] = &trackedSession{session: sess, lastUsed: time.Now()}
	return sess
}

// Get returns the session with id and refreshes its idle timer.
func (sm *SessionManager) Get(id string) (*agent.Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ts, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ts.lastUsed = time.Now()
	return ts.session, true
}

// End removes a session. It reports whether the session existed.
func (sm *SessionManager) End(id string) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	_, ok := sm.sessions[id]
	delete(sm.sessions, id)
	return ok
}

// Len returns the number of live sessions.
func (sm *SessionManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// Close stops the reaper and drops all sessions.
func (sm *SessionManager) Close() {
	sm.once.Do(func() {
		close(sm.done)
		sm.mu.Lock()
		defer sm.mu.Unlock()
		sm.sessions = make(map[string]*trackedSession)
	})
}

func (sm *SessionManager) reapLoop() {
	ticker := time.NewTicker(sm.ttl / 6)
	defer ticker.Stop()

	for {
		select {
		case <-sm.done:
			return
		case <-ticker.C:
			sm.reap(time.Now())
		}
	}
}

func (sm *SessionManager) reap(now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, ts := range sm.sessions {
		if now.Sub(ts.lastUsed) > sm.ttl {
			sm.logger.Debug("Reaping idle session", "session_id", id)
			delete(sm.sessions, id)
		}
	}
}
