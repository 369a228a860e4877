package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cadre-oss/hearth/internal/errors"
)

// seedSimilar stores one episode at cosine 0.91 from the query and n
// orthogonal ones, returning the store and the similar episode's seq.
func seedSimilar(t *testing.T, s EpisodeStorage, n int) (*EpisodicStore, *staticEmbedder, int64) {
	t.Helper()
	ctx := context.Background()
	emb := newStaticEmbedder("static-v1")
	emb.set("query", 1, 0, 0)

	store := NewEpisodicStore(s, emb)
	for i := 1; i <= n; i++ {
		text := fmt.Sprintf("unrelated %d", i)
		angle := float64(i) / float64(n) * math.Pi
		emb.set(text, 0, float32(math.Cos(angle)), float32(math.Sin(angle)))
		_, err := store.Append(ctx, turnAt(int64(i), RoleUser, text))
		require.NoError(t, err)
	}

	similar := int64(n + 1)
	emb.set("the one", 0.91, float32(math.Sqrt(1-0.91*0.91)), 0)
	_, err := store.Append(ctx, turnAt(similar, RoleAgent, "the one"))
	require.NoError(t, err)
	return store, emb, similar
}

func TestEpisodicStore_ThresholdExcludesUnrelated(t *testing.T) {
	store, _, seq := seedSimilar(t, NewInMemoryStorage(), 50)

	res, err := store.Search(context.Background(), "query", 3, 0.75)
	require.NoError(t, err)
	require.Len(t, res.Episodes, 1)
	assert.Equal(t, seq, res.Episodes[0].Seq)
	assert.InDelta(t, 0.91, res.Episodes[0].Similarity, 1e-4)
	assert.Equal(t, 0, res.Stale)
}

func TestEpisodicStore_ThresholdIsMonotone(t *testing.T) {
	store, _, _ := seedSimilar(t, NewInMemoryStorage(), 20)
	ctx := context.Background()

	prev := math.MaxInt
	for _, th := range []float64{-1, -0.5, 0, 0.5, 0.9, 0.95} {
		res, err := store.Search(ctx, "query", 100, th)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Episodes), prev, "threshold %v", th)
		for _, e := range res.Episodes {
			assert.Greater(t, e.Similarity, th)
		}
		prev = len(res.Episodes)
	}
}

func TestEpisodicStore_SearchEdgeCases(t *testing.T) {
	store, emb, _ := seedSimilar(t, NewInMemoryStorage(), 5)
	ctx := context.Background()
	calls := emb.calls

	res, err := store.Search(ctx, "   ", 3, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Episodes)

	res, err = store.Search(ctx, "query", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Episodes)
	assert.Equal(t, calls, emb.calls, "empty queries must not be embedded")

	// Strictly greater: orthogonal episodes score exactly 0 and are excluded.
	res, err = store.Search(ctx, "query", 100, 0)
	require.NoError(t, err)
	assert.Len(t, res.Episodes, 1)
}

func TestEpisodicStore_AppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()
	emb := newStaticEmbedder("static-v1")
	store := NewEpisodicStore(s, emb)

	written, err := store.Append(ctx, turnAt(7, RoleUser, "first"))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = store.Append(ctx, turnAt(7, RoleUser, "second"))
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, 1, emb.calls, "duplicate append must not embed")

	e, err := s.GetEpisode(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "first", e.Text)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEpisodicStore_VersionMismatch(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStorage()

	old := NewEpisodicStore(s, newStaticEmbedder("static-v1"))
	_, err := old.Append(ctx, turnAt(1, RoleUser, "written by v1"))
	require.NoError(t, err)
	require.NoError(t, old.CheckVersion(ctx))

	emb := newStaticEmbedder("static-v2")
	current := NewEpisodicStore(s, emb)
	_, err = current.Append(ctx, turnAt(2, RoleUser, "written by v2"))
	require.NoError(t, err)

	err = current.CheckVersion(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeEmbeddingVersionMismatch, apperrors.AsCode(err))
	assert.NotEmpty(t, apperrors.Suggestion(err))

	res, err := current.Search(ctx, "anything", 5, -1)
	require.NoError(t, err)
	require.Len(t, res.Episodes, 1)
	assert.Equal(t, int64(2), res.Episodes[0].Seq)
	assert.Equal(t, 1, res.Stale)

	stale, err := current.Stale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stale)
}

func TestEpisodicStore_Errors(t *testing.T) {
	ctx := context.Background()

	emb := newStaticEmbedder("static-v1")
	emb.err = errors.New("model offline")
	store := NewEpisodicStore(NewInMemoryStorage(), emb)

	_, err := store.Append(ctx, turnAt(1, RoleUser, "hi"))
	assert.Equal(t, apperrors.CodeEmbeddingUnavailable, apperrors.AsCode(err))
	_, err = store.Search(ctx, "hi", 3, 0)
	assert.Equal(t, apperrors.CodeEmbeddingUnavailable, apperrors.AsCode(err))

	broken := NewEpisodicStore(failingStorage{}, newStaticEmbedder("static-v1"))
	_, err = broken.Search(ctx, "hi", 3, 0)
	assert.Equal(t, apperrors.CodeStorageUnavailable, apperrors.AsCode(err))
	_, err = broken.Append(ctx, turnAt(1, RoleUser, "hi"))
	assert.Equal(t, apperrors.CodeStorageUnavailable, apperrors.AsCode(err))
}

func TestEpisodicStore_RecentAndMaxSeq(t *testing.T) {
	store, _, last := seedSimilar(t, NewInMemoryStorage(), 4)
	ctx := context.Background()

	recent, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, last-1, recent[0].Seq)
	assert.Equal(t, last, recent[1].Seq)

	max, err := store.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, last, max)
}
