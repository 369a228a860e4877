package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/cadre-oss/hearth/internal/embed"
)

// FactStorage persists facts.
type FactStorage interface {
	// PutFact appends a fact. Facts are never updated in place.
	PutFact(ctx context.Context, f Fact) error
	// ListFacts returns every fact, oldest first.
	ListFacts(ctx context.Context) ([]Fact, error)
	CountFacts(ctx context.Context) (int, error)
}

// EpisodeStorage persists episodes keyed by turn sequence id.
type EpisodeStorage interface {
	// PutEpisode stores e unless an episode with the same Seq exists. It
	// reports whether a record was written.
	PutEpisode(ctx context.Context, e Episode) (bool, error)
	// GetEpisode returns the episode for seq, or nil when absent.
	GetEpisode(ctx context.Context, seq int64) (*Episode, error)
	// QueryByVector returns up to k episodes written with version, ordered by
	// descending cosine similarity to vec, ties more recent first.
	QueryByVector(ctx context.Context, vec []float32, version string, k int) ([]ScoredEpisode, error)
	// ListEpisodes returns the newest limit episodes, oldest first. limit <= 0
	// returns all of them.
	ListEpisodes(ctx context.Context, limit int) ([]Episode, error)
	CountEpisodes(ctx context.Context) (int, error)
	// CountStale counts episodes written with a version other than version.
	CountStale(ctx context.Context, version string) (int, error)
	// MaxSeq returns the highest stored sequence id, or 0.
	MaxSeq(ctx context.Context) (int64, error)
}

// Storage is a durable backend for both tiers.
type Storage interface {
	FactStorage
	EpisodeStorage
	Close() error
}

// OpenStorage opens the storage backend named by driver.
func OpenStorage(ctx context.Context, driver, path string) (Storage, error) {
	switch driver {
	case "memory", "":
		return NewInMemoryStorage(), nil
	case "sqlite":
		s, err := NewSQLiteStorage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite store: %w", err)
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStorage(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported memory driver: %s", driver)
	}
}

// rankEpisodes scores candidates against vec and keeps the best k.
func rankEpisodes(vec []float32, candidates []Episode, k int) []ScoredEpisode {
	scored := make([]ScoredEpisode, 0, len(candidates))
	for _, e := range candidates {
		scored = append(scored, ScoredEpisode{Episode: e, Similarity: embed.Cosine(vec, e.Embedding)})
	}
	sortScored(scored)
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func sortScored(scored []ScoredEpisode) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Seq > scored[j].Seq
	})
}
