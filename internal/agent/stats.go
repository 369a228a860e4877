package agent

import (
	"context"

	"github.com/cadre-oss/hearth/internal/provider"
)

// BackendStatus describes the dispatcher when the engine runs on one.
type BackendStatus struct {
	State    string `json:"state"`
	Primary  string `json:"primary"`
	Fallback string `json:"fallback,omitempty"`
	Active   string `json:"active"`
}

// BufferStatus describes one session's short-term buffer.
type BufferStatus struct {
	SessionID string `json:"session_id"`
	Turns     int    `json:"turns"`
	Tokens    int    `json:"tokens"`
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	Persona          string                 `json:"persona"`
	Facts            int                    `json:"facts"`
	Episodes         int                    `json:"episodes"`
	StaleEpisodes    int                    `json:"stale_episodes"`
	LastSeq          int64                  `json:"last_seq"`
	EmbeddingVersion string                 `json:"embedding_version"`
	PersonaTokens    int                    `json:"persona_tokens"`
	TokenBudget      int                    `json:"token_budget"`
	Backend          *BackendStatus         `json:"backend,omitempty"`
	Buffer           *BufferStatus          `json:"buffer,omitempty"`
	Metrics          map[string]interface{} `json:"metrics"`
}

// Stats counts stored memory and reports the backend state.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	facts, err := e.facts.Count(ctx)
	if err != nil {
		return nil, err
	}
	episodes, err := e.episodes.Count(ctx)
	if err != nil {
		return nil, err
	}
	stale, err := e.episodes.Stale(ctx)
	if err != nil {
		return nil, err
	}

	s := &Stats{
		Persona:          e.persona.Name,
		Facts:            facts,
		Episodes:         episodes,
		StaleEpisodes:    stale,
		LastSeq:          e.seq.Last(),
		EmbeddingVersion: e.episodes.Version(),
		PersonaTokens:    e.assembler.PersonaTokens(),
		TokenBudget:      e.assembler.Budget(),
		Metrics:          e.metrics.GetSummary(),
	}
	if d, ok := e.backend.(*provider.Dispatcher); ok {
		s.Backend = &BackendStatus{
			State:    d.State().String(),
			Primary:  d.Primary(),
			Fallback: d.Fallback(),
			Active:   d.Active(),
		}
	}
	return s, nil
}

// SessionStats is Stats plus the buffer of sess.
func (e *Engine) SessionStats(ctx context.Context, sess *Session) (*Stats, error) {
	s, err := e.Stats(ctx)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	s.Buffer = &BufferStatus{SessionID: sess.ID, Turns: sess.buffer.Len(), Tokens: sess.buffer.Tokens()}
	sess.mu.Unlock()
	return s, nil
}
