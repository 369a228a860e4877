package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cadre-oss/hearth/internal/embed"
	apperrors "github.com/cadre-oss/hearth/internal/errors"
)

// SearchResult holds episodic hits and the number of stored records that
// were not considered because they were embedded with another version.
type SearchResult struct {
	Episodes []ScoredEpisode
	Stale    int
}

// EpisodicStore embeds turns on write and answers nearest-neighbour queries
// with a strict similarity threshold.
type EpisodicStore struct {
	storage  EpisodeStorage
	embedder embed.Embedder
	clock    func() time.Time
}

// NewEpisodicStore creates an episodic store.
func NewEpisodicStore(storage EpisodeStorage, embedder embed.Embedder) *EpisodicStore {
	return &EpisodicStore{storage: storage, embedder: embedder, clock: time.Now}
}

// Version is the embedding version new records are written with.
func (s *EpisodicStore) Version() string {
	return s.embedder.Version()
}

// Append persists turn. A turn whose Seq is already stored is left untouched
// and Append reports false.
func (s *EpisodicStore) Append(ctx context.Context, turn Turn) (bool, error) {
	existing, err := s.storage.GetEpisode(ctx, turn.Seq)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to read episode", err)
	}
	if existing != nil {
		return false, nil
	}

	vec, err := s.embedder.Embed(ctx, turn.Text)
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeEmbeddingUnavailable, "failed to embed turn", err)
	}

	created := turn.CreatedAt
	if created.IsZero() {
		created = s.clock()
	}
	written, err := s.storage.PutEpisode(ctx, Episode{
		Seq:              turn.Seq,
		Role:             turn.Role,
		Text:             turn.Text,
		Speaker:          turn.Speaker,
		Embedding:        vec,
		EmbeddingVersion: s.embedder.Version(),
		CreatedAt:        created,
	})
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to store episode", err)
	}
	return written, nil
}

// Search returns up to topK episodes whose similarity to query is strictly
// greater than threshold, most similar first.
func (s *EpisodicStore) Search(ctx context.Context, query string, topK int, threshold float64) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" || topK <= 0 {
		return &SearchResult{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeEmbeddingUnavailable, "failed to embed query", err)
	}

	version := s.embedder.Version()
	hits, err := s.storage.QueryByVector(ctx, vec, version, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to query episodes", err)
	}
	stale, err := s.storage.CountStale(ctx, version)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to count stale episodes", err)
	}

	kept := make([]ScoredEpisode, 0, topK)
	for _, h := range hits {
		if h.EmbeddingVersion != version || h.Similarity <= threshold {
			continue
		}
		kept = append(kept, h)
	}
	sortScored(kept)
	if len(kept) > topK {
		kept = kept[:topK]
	}
	return &SearchResult{Episodes: kept, Stale: stale}, nil
}

// CheckVersion returns an EMBEDDING_VERSION_MISMATCH error when stored
// records were embedded with a version other than the active one.
func (s *EpisodicStore) CheckVersion(ctx context.Context) error {
	stale, err := s.storage.CountStale(ctx, s.embedder.Version())
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to count stale episodes", err)
	}
	if stale > 0 {
		return apperrors.New(apperrors.CodeEmbeddingVersionMismatch,
			fmt.Sprintf("%d episodes were embedded with another version than %s", stale, s.embedder.Version())).
			WithSuggestion("These records are excluded from search; re-embed them or switch back to the previous embedder.")
	}
	return nil
}

// Count returns the number of stored episodes.
func (s *EpisodicStore) Count(ctx context.Context) (int, error) {
	n, err := s.storage.CountEpisodes(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to count episodes", err)
	}
	return n, nil
}

// Stale counts episodes embedded with another version.
func (s *EpisodicStore) Stale(ctx context.Context) (int, error) {
	n, err := s.storage.CountStale(ctx, s.embedder.Version())
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to count stale episodes", err)
	}
	return n, nil
}

// Recent returns the newest limit episodes, oldest first.
func (s *EpisodicStore) Recent(ctx context.Context, limit int) ([]Episode, error) {
	eps, err := s.storage.ListEpisodes(ctx, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to list episodes", err)
	}
	return eps, nil
}

// MaxSeq returns the highest stored sequence id.
func (s *EpisodicStore) MaxSeq(ctx context.Context) (int64, error) {
	n, err := s.storage.MaxSeq(ctx)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStorageUnavailable, "failed to read max sequence", err)
	}
	return n, nil
}
