package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
)

// FactStoreOptions configures a FactStore.
type FactStoreOptions struct {
	Classifier      Classifier
	MinRelevance    float64 // facts must score strictly above this
	RelevanceWeight float64
	RecencyWeight   float64
	Clock           func() time.Time
}

// FactStore captures and ranks durable facts about the user.
type FactStore struct {
	storage FactStorage
	opts    FactStoreOptions
}

// NewFactStore creates a fact store over storage. A nil classifier selects
// the default keyword rules; zero weights select 0.7 relevance and 0.3
// recency.
func NewFactStore(storage FactStorage, opts FactStoreOptions) *FactStore {
	if opts.Classifier == nil {
		opts.Classifier = NewKeywordClassifier(nil)
	}
	if opts.RelevanceWeight == 0 && opts.RecencyWeight == 0 {
		opts.RelevanceWeight = 0.7
		opts.RecencyWeight = 0.3
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &FactStore{storage: storage, opts: opts}
}

// Capture stores the turn as a fact when the classifier flags it. It returns
// nil without error for agent turns and non-matching text.
func (s *FactStore) Capture(ctx context.Context, turn Turn) (*Fact, error) {
	if turn.Role != RoleUser {
		return nil, nil
	}
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return nil, nil
	}
	c := s.opts.Classifier.Classify(text)
	if !c.Capture {
		return nil, nil
	}

	created := turn.CreatedAt
	if created.IsZero() {
		created = s.opts.Clock()
	}
	f := Fact{
		ID:        uuid.NewString(),
		Text:      text,
		Category:  c.Category,
		SourceSeq: turn.Seq,
		CreatedAt: created,
	}
	if err := s.storage.PutFact(ctx, f); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to store fact", err)
	}
	return &f, nil
}

// AddExplicit stores text as a fact unconditionally. An empty category
// defaults to explicit.
func (s *FactStore) AddExplicit(ctx context.Context, text string, category Category) (*Fact, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("fact text is empty")
	}
	if category == "" {
		category = CategoryExplicit
	}
	f := Fact{
		ID:        uuid.NewString(),
		Text:      text,
		Category:  category,
		CreatedAt: s.opts.Clock(),
	}
	if err := s.storage.PutFact(ctx, f); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to store fact", err)
	}
	return &f, nil
}

// Retrieve ranks facts against query and returns at most limit of them, best
// first. Only facts sharing surface features with the query qualify.
func (s *FactStore) Retrieve(ctx context.Context, query string, limit int) ([]ScoredFact, error) {
	facts, err := s.storage.ListFacts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to list facts", err)
	}
	if len(facts) == 0 || limit <= 0 {
		return nil, nil
	}

	n := len(facts)
	scored := make([]ScoredFact, 0, n)
	order := make(map[string]int, n)
	for i, f := range facts {
		rel := lexicalRelevance(query, f.Text)
		if rel <= s.opts.MinRelevance {
			continue
		}
		rank := n - 1 - i // 0 is the newest
		recency := 1 - float64(rank)/float64(n)
		scored = append(scored, ScoredFact{
			Fact:      f,
			Relevance: rel,
			Score:     s.opts.RelevanceWeight*rel + s.opts.RecencyWeight*recency,
		})
		order[f.ID] = i
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		if a.SourceSeq != b.SourceSeq {
			return a.SourceSeq > b.SourceSeq
		}
		return order[a.ID] > order[b.ID]
	})

	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// List returns every fact, oldest first.
func (s *FactStore) List(ctx context.Context) ([]Fact, error) {
	facts, err := s.storage.ListFacts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to list facts", err)
	}
	return facts, nil
}

// MaxSourceSeq returns the highest turn sequence id a fact was captured from,
// or 0. A fact may outlive the episode of its turn when the episode write
// failed, so sequence allocation has to account for it.
func (s *FactStore) MaxSourceSeq(ctx context.Context) (int64, error) {
	facts, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	var highest int64
	for _, f := range facts {
		if f.SourceSeq > highest {
			highest = f.SourceSeq
		}
	}
	return highest, nil
}

// Count returns the number of stored facts.
func (s *FactStore) Count(ctx context.Context) (int, error) {
	n, err := s.storage.CountFacts(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to count facts", err)
	}
	return n, nil
}
