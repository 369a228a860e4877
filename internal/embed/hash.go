package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/cadre-oss/hearth/internal/token"
)

// HashEmbedder is an offline embedder using signed feature hashing over
// lowercase words, single CJK runes and CJK bigrams. Texts sharing surface
// features land close together; it needs no network and is deterministic.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder creates a hashing embedder with the given dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

var _ Embedder = (*HashEmbedder)(nil)

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Version() string { return fmt.Sprintf("hash-v1/%d", h.dims) }

// Embed never fails. Empty text yields a zero vector.
func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, h.dims)
	for _, f := range Features(text) {
		hf := fnv.New64a()
		hf.Write([]byte(f))
		sum := hf.Sum64()
		idx := int(sum % uint64(h.dims))
		if sum&(1<<63) != 0 {
			v[idx] -= 1
		} else {
			v[idx] += 1
		}
	}
	Normalize(v)
	return v, nil
}

// Features splits text into the surface features used for hashing and
// lexical overlap: lowercase Latin words, and for each CJK run its runes and
// adjacent bigrams.
func Features(text string) []string {
	var out []string
	var word strings.Builder
	var run []rune

	flushWord := func() {
		if word.Len() > 0 {
			out = append(out, word.String())
			word.Reset()
		}
	}
	flushRun := func() {
		for i, r := range run {
			out = append(out, string(r))
			if i+1 < len(run) {
				out = append(out, string(run[i:i+2]))
			}
		}
		run = run[:0]
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case token.IsCJK(r) && (unicode.IsLetter(r) || unicode.IsNumber(r)):
			flushWord()
			run = append(run, r)
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'':
			flushRun()
			word.WriteRune(r)
		default:
			flushWord()
			flushRun()
		}
	}
	flushWord()
	flushRun()
	return out
}
