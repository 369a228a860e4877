package agent

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cadre-oss/hearth/internal/event"
	"github.com/cadre-oss/hearth/internal/memory"
	"github.com/cadre-oss/hearth/internal/persona"
)

// Session is one conversation. Its short-term buffer lives only as long as
// the session; turns of a session run one at a time.
type Session struct {
	ID        string
	StartedAt time.Time

	mu      sync.Mutex
	buffer  *memory.ShortTermBuffer
	speaker persona.Speaker
	turns   int64
}

// NewSession starts a conversation with the speaker named by label. An empty
// label means the speaker is not identified.
func (e *Engine) NewSession(label string) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: e.clock(),
		buffer:    memory.NewShortTermBuffer(e.cfg.Memory.BufferTurns, e.cfg.Memory.BufferTokens, e.estimator),
	}
	if label != "" {
		s.speaker = e.persona.ResolveSpeaker(label)
	}
	e.emit(event.SessionStarted, map[string]interface{}{
		"session_id": s.ID, "speaker": s.speaker.Name,
	})
	return s
}

// SetSpeaker switches who is talking. The buffer is kept.
func (e *Engine) SetSpeaker(s *Session, label string) persona.Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if label == "" {
		s.speaker = persona.Speaker{}
	} else {
		s.speaker = e.persona.ResolveSpeaker(label)
	}
	return s.speaker
}

// ClearBuffer drops the session's short-term turns. Facts and episodes are
// untouched.
func (e *Engine) ClearBuffer(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer.Reset()
}

// Speaker returns the current speaker.
func (s *Session) Speaker() persona.Speaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaker
}

// Turns returns the number of completed turns.
func (s *Session) Turns() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turns
}

// Buffer returns a snapshot of the short-term buffer, oldest first.
func (s *Session) Buffer() []memory.Turn {
	return s.buffer.Snapshot()
}
