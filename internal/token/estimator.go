// Package token approximates prompt sizes in model-token units.
//
// The heuristic charges 2/3 of a token for each CJK rune and 1/4 of a token for
// every other rune, summed in twelfths and rounded up once. Because the unit
// count is additive over runes, the estimate is monotone under concatenation
// and subadditive: Estimate(a+b) >= Estimate(a) and
// Estimate(a+b) <= Estimate(a)+Estimate(b).
package token

import "unicode"

// MessageOverhead is charged once per message for role and framing tokens.
const MessageOverhead = 4

const (
	cjkUnits   = 8 // 1/1.5 token, in twelfths
	otherUnits = 3 // 1/4 token, in twelfths
	unitsPer   = 12
)

// Tokenizer counts tokens exactly for a specific model family.
type Tokenizer interface {
	Count(text string) (int, error)
}

// Estimator sizes text. The zero value uses the heuristic.
type Estimator struct {
	tokenizer Tokenizer
}

// New returns an estimator that prefers tok and falls back to the heuristic
// when tok is nil or fails.
func New(tok Tokenizer) *Estimator {
	return &Estimator{tokenizer: tok}
}

// Estimate returns a non-negative token estimate for text.
func (e *Estimator) Estimate(text string) int {
	if e != nil && e.tokenizer != nil {
		if n, err := e.tokenizer.Count(text); err == nil && n >= 0 {
			return n
		}
	}
	return Heuristic(text)
}

// EstimateMessage sizes text sent as one role-tagged message.
func (e *Estimator) EstimateMessage(text string) int {
	return e.Estimate(text) + MessageOverhead
}

// Heuristic is the tokenizer-free estimate.
func Heuristic(text string) int {
	units := 0
	for _, r := range text {
		if IsCJK(r) {
			units += cjkUnits
		} else {
			units += otherUnits
		}
	}
	return (units + unitsPer - 1) / unitsPer
}

// IsCJK reports whether r is a Han, Hiragana, Katakana or Hangul rune or CJK
// punctuation.
func IsCJK(r rune) bool {
	switch {
	case r >= 0x3000 && r <= 0x303F: // CJK symbols and punctuation
		return true
	case r >= 0xFF00 && r <= 0xFFEF: // full-width forms
		return true
	}
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
