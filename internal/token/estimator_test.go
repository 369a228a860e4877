package token

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristic(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{"你好", 2},          // 16 twelfths
		{"你好吗", 2},         // 24 twelfths
		{"记住我最喜欢的颜色是蓝色", 8}, // 12 runes * 8 = 96 twelfths
		{"hello 世界", 3},    // 6*3 + 2*8 = 34 twelfths
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Heuristic(tt.text), "Heuristic(%q)", tt.text)
	}
}

func TestEstimate_MonotoneAndSubadditive(t *testing.T) {
	alphabet := []rune("abc xyz,.!你我他喜欢蓝色こんにちは한국")
	rng := rand.New(rand.NewSource(7))
	randText := func() string {
		n := rng.Intn(40)
		var sb strings.Builder
		for i := 0; i < n; i++ {
			sb.WriteRune(alphabet[rng.Intn(len(alphabet))])
		}
		return sb.String()
	}

	var e Estimator
	for i := 0; i < 500; i++ {
		a, b := randText(), randText()
		ab := e.Estimate(a + b)
		assert.GreaterOrEqual(t, ab, e.Estimate(a))
		assert.GreaterOrEqual(t, ab, e.Estimate(b))
		assert.LessOrEqual(t, ab, e.Estimate(a)+e.Estimate(b))
	}
}

type fixedTokenizer struct {
	n   int
	err error
}

func (f fixedTokenizer) Count(string) (int, error) { return f.n, f.err }

func TestEstimate_TokenizerFallback(t *testing.T) {
	assert.Equal(t, 42, New(fixedTokenizer{n: 42}).Estimate("abcd"))
	assert.Equal(t, 1, New(fixedTokenizer{err: errors.New("no vocab")}).Estimate("abcd"))

	var nilEst *Estimator
	assert.Equal(t, 1, nilEst.Estimate("abcd"))
}

func TestEstimateMessage(t *testing.T) {
	var e Estimator
	assert.Equal(t, MessageOverhead, e.EstimateMessage(""))
	assert.Equal(t, 1+MessageOverhead, e.EstimateMessage("hi"))
}

func TestIsCJK(t *testing.T) {
	assert.True(t, IsCJK('蓝'))
	assert.True(t, IsCJK('。'))
	assert.True(t, IsCJK('？'))
	assert.True(t, IsCJK('の'))
	assert.False(t, IsCJK('a'))
	assert.False(t, IsCJK('?'))
}
