package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
)

const episodeCollection = "episodes"

// ChromemIndex serves vector queries from an embedded chromem-go collection
// while the wrapped storage stays the durable record. Writes go to both.
type ChromemIndex struct {
	EpisodeStorage

	db  *chromem.DB
	col *chromem.Collection
	mu  sync.Mutex
}

// NewChromemIndex builds an index over inner. With an empty path the
// collection lives in memory; otherwise it is persisted under path. Episodes
// already in inner are loaded on construction.
func NewChromemIndex(ctx context.Context, inner EpisodeStorage, path string) (*ChromemIndex, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open vector index: %w", err)
		}
	}

	// Embeddings are always supplied by the caller, so no embedding func.
	col, err := db.GetOrCreateCollection(episodeCollection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	idx := &ChromemIndex{EpisodeStorage: inner, db: db, col: col}
	if err := idx.warm(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

func (x *ChromemIndex) warm(ctx context.Context) error {
	n, err := x.EpisodeStorage.CountEpisodes(ctx)
	if err != nil {
		return fmt.Errorf("count episodes: %w", err)
	}
	if n == x.col.Count() {
		return nil
	}

	eps, err := x.EpisodeStorage.ListEpisodes(ctx, 0)
	if err != nil {
		return fmt.Errorf("load episodes: %w", err)
	}
	for _, e := range eps {
		if err := x.add(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (x *ChromemIndex) add(ctx context.Context, e Episode) error {
	if len(e.Embedding) == 0 {
		return nil
	}
	doc := chromem.Document{
		ID:        strconv.FormatInt(e.Seq, 10),
		Content:   e.Text,
		Embedding: append([]float32(nil), e.Embedding...),
		Metadata: map[string]string{
			"seq":               strconv.FormatInt(e.Seq, 10),
			"role":              string(e.Role),
			"speaker":           e.Speaker,
			"embedding_version": e.EmbeddingVersion,
			"created_at":        e.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// PutEpisode writes through to the durable storage and indexes new records.
func (x *ChromemIndex) PutEpisode(ctx context.Context, e Episode) (bool, error) {
	written, err := x.EpisodeStorage.PutEpisode(ctx, e)
	if err != nil || !written {
		return written, err
	}
	return true, x.add(ctx, e)
}

// QueryByVector ranks indexed episodes of the given embedding version.
func (x *ChromemIndex) QueryByVector(ctx context.Context, vec []float32, version string, k int) ([]ScoredEpisode, error) {
	x.mu.Lock()
	count := x.col.Count()
	x.mu.Unlock()

	// chromem-go requires nResults <= collection size.
	if k <= 0 || k > count {
		k = count
	}
	if k == 0 {
		return nil, nil
	}

	results, err := x.col.QueryEmbedding(ctx, vec, k, map[string]string{"embedding_version": version}, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	scored := make([]ScoredEpisode, 0, len(results))
	for _, r := range results {
		seq, err := strconv.ParseInt(r.Metadata["seq"], 10, 64)
		if err != nil {
			continue
		}
		created, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
		scored = append(scored, ScoredEpisode{
			Episode: Episode{
				Seq:              seq,
				Role:             Role(r.Metadata["role"]),
				Text:             r.Content,
				Speaker:          r.Metadata["speaker"],
				Embedding:        r.Embedding,
				EmbeddingVersion: r.Metadata["embedding_version"],
				CreatedAt:        created,
			},
			Similarity: float64(r.Similarity),
		})
	}
	sortScored(scored)
	return scored, nil
}

type indexedStorage struct {
	Storage
	index *ChromemIndex
}

// WithVectorIndex routes episode writes and vector queries of s through a
// chromem-go index. Everything else is served by s.
func WithVectorIndex(ctx context.Context, s Storage, path string) (Storage, error) {
	idx, err := NewChromemIndex(ctx, s, path)
	if err != nil {
		return nil, err
	}
	return &indexedStorage{Storage: s, index: idx}, nil
}

func (s *indexedStorage) PutEpisode(ctx context.Context, e Episode) (bool, error) {
	return s.index.PutEpisode(ctx, e)
}

func (s *indexedStorage) QueryByVector(ctx context.Context, vec []float32, version string, k int) ([]ScoredEpisode, error) {
	return s.index.QueryByVector(ctx, vec, version, k)
}
