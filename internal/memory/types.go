// Package memory holds the companion's layered memory: durable facts,
// embedding-indexed episodes, and the per-session short-term buffer.
package memory

import (
	"sync/atomic"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Turn is one message. Turns are immutable once created.
type Turn struct {
	Seq       int64     `json:"seq"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Speaker   string    `json:"speaker,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Category tags a fact with the kind of information it carries.
type Category string

const (
	CategoryExplicit     Category = "explicit"
	CategoryPreference   Category = "preference"
	CategoryBirthday     Category = "birthday"
	CategoryIdentity     Category = "identity"
	CategoryRelationship Category = "relationship"
	CategoryHealth       Category = "health"
	CategoryContact      Category = "contact"
	CategoryImportant    Category = "important"
)

// Fact is a durable assertion about the user. Facts are append-only; newer
// facts supersede older ones through ranking, never by mutation.
type Fact struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Category  Category  `json:"category,omitempty"`
	SourceSeq int64     `json:"source_seq,omitempty"` // turn the fact came from, 0 for manual facts
	CreatedAt time.Time `json:"created_at"`
}

// ScoredFact is a fact with its retrieval score.
type ScoredFact struct {
	Fact
	Relevance float64 `json:"relevance"`
	Score     float64 `json:"score"`
}

// Episode is the durable, embedding-indexed copy of a turn.
type Episode struct {
	Seq              int64     `json:"seq"`
	Role             Role      `json:"role"`
	Text             string    `json:"text"`
	Speaker          string    `json:"speaker,omitempty"`
	Embedding        []float32 `json:"-"`
	EmbeddingVersion string    `json:"embedding_version"`
	CreatedAt        time.Time `json:"created_at"`
}

// ScoredEpisode is an episode with its cosine similarity to a query.
type ScoredEpisode struct {
	Episode
	Similarity float64 `json:"similarity"`
}

// Sequencer hands out monotonically increasing turn sequence ids. It is
// shared by all sessions of an engine.
type Sequencer struct {
	last atomic.Int64
}

// NewSequencer starts after the given sequence id.
func NewSequencer(last int64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

// Next returns the next sequence id.
func (s *Sequencer) Next() int64 {
	return s.last.Add(1)
}

// Last returns the most recently issued id.
func (s *Sequencer) Last() int64 {
	return s.last.Load()
}
