package memory

import (
	"context"
	"errors"
	"sync"
	"time"
)

// staticEmbedder returns preset vectors and a fallback for unknown text.
type staticEmbedder struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	fallback []float32
	version  string
	err      error
	calls    int
}

func newStaticEmbedder(version string) *staticEmbedder {
	return &staticEmbedder{
		vectors:  make(map[string][]float32),
		fallback: []float32{0, 0, 1},
		version:  version,
	}
}

func (e *staticEmbedder) set(text string, vec ...float32) { e.vectors[text] = vec }

func (e *staticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return e.fallback, nil
}

func (e *staticEmbedder) Dimensions() int { return 3 }
func (e *staticEmbedder) Version() string { return e.version }

// failingStorage fails every call.
type failingStorage struct{}

var errStorageDown = errors.New("disk unplugged")

func (failingStorage) PutFact(context.Context, Fact) error            { return errStorageDown }
func (failingStorage) ListFacts(context.Context) ([]Fact, error)      { return nil, errStorageDown }
func (failingStorage) CountFacts(context.Context) (int, error)        { return 0, errStorageDown }
func (failingStorage) PutEpisode(context.Context, Episode) (bool, error) {
	return false, errStorageDown
}
func (failingStorage) GetEpisode(context.Context, int64) (*Episode, error) {
	return nil, errStorageDown
}
func (failingStorage) QueryByVector(context.Context, []float32, string, int) ([]ScoredEpisode, error) {
	return nil, errStorageDown
}
func (failingStorage) ListEpisodes(context.Context, int) ([]Episode, error) {
	return nil, errStorageDown
}
func (failingStorage) CountEpisodes(context.Context) (int, error)       { return 0, errStorageDown }
func (failingStorage) CountStale(context.Context, string) (int, error)  { return 0, errStorageDown }
func (failingStorage) MaxSeq(context.Context) (int64, error)            { return 0, errStorageDown }
func (failingStorage) Close() error                                     { return nil }

var baseTime = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func turnAt(seq int64, role Role, text string) Turn {
	return Turn{Seq: seq, Role: role, Text: text, CreatedAt: baseTime.Add(time.Duration(seq) * time.Minute)}
}
