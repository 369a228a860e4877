package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storageFactory func(t *testing.T) Storage

func storageBackends(t *testing.T) map[string]storageFactory {
	backends := map[string]storageFactory{
		"memory": func(t *testing.T) Storage { return NewInMemoryStorage() },
		"sqlite": func(t *testing.T) Storage {
			s, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "memory.db"))
			require.NoError(t, err)
			return s
		},
		"chromem": func(t *testing.T) Storage {
			s, err := WithVectorIndex(context.Background(), NewInMemoryStorage(), "")
			require.NoError(t, err)
			return s
		},
	}
	if url := os.Getenv("HEARTH_TEST_POSTGRES_URL"); url != "" {
		backends["postgres"] = func(t *testing.T) Storage {
			s, err := NewPostgresStorage(context.Background(), url)
			require.NoError(t, err)
			_, err = s.pool.Exec(context.Background(), "TRUNCATE hearth_facts, hearth_episodes")
			require.NoError(t, err)
			return s
		}
	}
	return backends
}

func episode(seq int64, version string, vec ...float32) Episode {
	return Episode{
		Seq:              seq,
		Role:             RoleUser,
		Text:             "episode text",
		Speaker:          "妈妈",
		Embedding:        vec,
		EmbeddingVersion: version,
		CreatedAt:        baseTime.Add(time.Duration(seq) * time.Second),
	}
}

func TestStorage_Contract(t *testing.T) {
	for name, open := range storageBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			t.Run("facts keep insertion order", func(t *testing.T) {
				for _, text := range []string{"a", "b", "c"} {
					require.NoError(t, s.PutFact(ctx, Fact{ID: "id-" + text, Text: text, Category: CategoryExplicit, CreatedAt: baseTime}))
				}
				facts, err := s.ListFacts(ctx)
				require.NoError(t, err)
				require.Len(t, facts, 3)
				assert.Equal(t, "a", facts[0].Text)
				assert.Equal(t, "c", facts[2].Text)
				assert.Equal(t, CategoryExplicit, facts[1].Category)

				n, err := s.CountFacts(ctx)
				require.NoError(t, err)
				assert.Equal(t, 3, n)
			})

			t.Run("episodes", func(t *testing.T) {
				written, err := s.PutEpisode(ctx, episode(1, "v1", 1, 0, 0))
				require.NoError(t, err)
				assert.True(t, written)

				dup := episode(1, "v1", 0, 1, 0)
				dup.Text = "other"
				written, err = s.PutEpisode(ctx, dup)
				require.NoError(t, err)
				assert.False(t, written)

				for _, e := range []Episode{
					episode(2, "v1", 0.6, 0.8, 0),
					episode(3, "v1", 0, 1, 0),
					episode(4, "v0", 1, 0, 0),
				} {
					_, err := s.PutEpisode(ctx, e)
					require.NoError(t, err)
				}

				got, err := s.GetEpisode(ctx, 1)
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, "episode text", got.Text)
				assert.Equal(t, "妈妈", got.Speaker)
				assert.Equal(t, "v1", got.EmbeddingVersion)
				assert.True(t, got.CreatedAt.Equal(baseTime.Add(time.Second)))

				missing, err := s.GetEpisode(ctx, 99)
				require.NoError(t, err)
				assert.Nil(t, missing)

				hits, err := s.QueryByVector(ctx, []float32{1, 0, 0}, "v1", 2)
				require.NoError(t, err)
				require.Len(t, hits, 2)
				assert.Equal(t, int64(1), hits[0].Seq)
				assert.Equal(t, int64(2), hits[1].Seq)
				assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
				assert.InDelta(t, 0.6, hits[1].Similarity, 1e-5)

				all, err := s.QueryByVector(ctx, []float32{1, 0, 0}, "v1", 0)
				require.NoError(t, err)
				assert.Len(t, all, 3)

				recent, err := s.ListEpisodes(ctx, 2)
				require.NoError(t, err)
				require.Len(t, recent, 2)
				assert.Equal(t, int64(3), recent[0].Seq)
				assert.Equal(t, int64(4), recent[1].Seq)

				n, err := s.CountEpisodes(ctx)
				require.NoError(t, err)
				assert.Equal(t, 4, n)

				stale, err := s.CountStale(ctx, "v1")
				require.NoError(t, err)
				assert.Equal(t, 1, stale)

				max, err := s.MaxSeq(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(4), max)
			})
		})
	}
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "memory.db")

	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	_, err = s.PutEpisode(ctx, episode(5, "v1", 1, 0, 0))
	require.NoError(t, err)
	require.NoError(t, s.PutFact(ctx, Fact{ID: "f1", Text: "我喜欢蓝色", CreatedAt: baseTime}))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStorage(path)
	require.NoError(t, err)
	defer s.Close()

	max, err := s.MaxSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), max)

	facts, err := s.ListFacts(ctx)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "我喜欢蓝色", facts[0].Text)
}

func TestChromemIndex_WarmsFromStorage(t *testing.T) {
	ctx := context.Background()
	inner := NewInMemoryStorage()
	_, err := inner.PutEpisode(ctx, episode(1, "v1", 1, 0, 0))
	require.NoError(t, err)
	_, err = inner.PutEpisode(ctx, episode(2, "v1", 0, 1, 0))
	require.NoError(t, err)

	idx, err := NewChromemIndex(ctx, inner, "")
	require.NoError(t, err)

	hits, err := idx.QueryByVector(ctx, []float32{0, 1, 0}, "v1", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(2), hits[0].Seq)
	assert.Equal(t, RoleUser, hits[0].Role)

	none, err := idx.QueryByVector(ctx, []float32{0, 1, 0}, "v2", 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()

	s, err := OpenStorage(ctx, "memory", "")
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStorage{}, s)

	s, err = OpenStorage(ctx, "sqlite", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	assert.NoError(t, s.Close())

	_, err = OpenStorage(ctx, "redis", "")
	assert.ErrorContains(t, err, "unsupported memory driver")
}
