package memory

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStorage keeps facts and episodes in process memory. It backs the
// "memory" driver and tests.
type InMemoryStorage struct {
	mu       sync.RWMutex
	facts    []Fact
	episodes map[int64]Episode
}

// NewInMemoryStorage creates an empty store.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{episodes: make(map[int64]Episode)}
}

var _ Storage = (*InMemoryStorage)(nil)

func (s *InMemoryStorage) PutFact(_ context.Context, f Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = append(s.facts, f)
	return nil
}

func (s *InMemoryStorage) ListFacts(_ context.Context) ([]Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Fact, len(s.facts))
	copy(out, s.facts)
	return out, nil
}

func (s *InMemoryStorage) CountFacts(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts), nil
}

func (s *InMemoryStorage) PutEpisode(_ context.Context, e Episode) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.episodes[e.Seq]; ok {
		return false, nil
	}
	s.episodes[e.Seq] = e
	return true, nil
}

func (s *InMemoryStorage) GetEpisode(_ context.Context, seq int64) (*Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.episodes[seq]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *InMemoryStorage) QueryByVector(_ context.Context, vec []float32, version string, k int) ([]ScoredEpisode, error) {
	s.mu.RLock()
	candidates := make([]Episode, 0, len(s.episodes))
	for _, e := range s.episodes {
		if e.EmbeddingVersion == version {
			candidates = append(candidates, e)
		}
	}
	s.mu.RUnlock()
	return rankEpisodes(vec, candidates, k), nil
}

func (s *InMemoryStorage) ListEpisodes(_ context.Context, limit int) ([]Episode, error) {
	s.mu.RLock()
	out := make([]Episode, 0, len(s.episodes))
	for _, e := range s.episodes {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *InMemoryStorage) CountEpisodes(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes), nil
}

func (s *InMemoryStorage) CountStale(_ context.Context, version string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.episodes {
		if e.EmbeddingVersion != version {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStorage) MaxSeq(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var max int64
	for seq := range s.episodes {
		if seq > max {
			max = seq
		}
	}
	return max, nil
}

func (s *InMemoryStorage) Close() error { return nil }
