package memory

import (
	"sync"

	"github.com/cadre-oss/hearth/internal/token"
)

// ShortTermBuffer is a bounded FIFO of recent turns. It is not durable.
type ShortTermBuffer struct {
	mu        sync.Mutex
	turns     []Turn
	costs     []int
	tokens    int
	maxTurns  int
	tokenCap  int
	estimator *token.Estimator
}

// NewShortTermBuffer creates a buffer holding at most maxTurns turns and
// tokenCap tokens, sized with est (nil uses the heuristic).
func NewShortTermBuffer(maxTurns, tokenCap int, est *token.Estimator) *ShortTermBuffer {
	return &ShortTermBuffer{maxTurns: maxTurns, tokenCap: tokenCap, estimator: est}
}

// Push appends turn and evicts from the front until both bounds hold. The
// evicted turns are returned oldest first.
func (b *ShortTermBuffer) Push(turn Turn) []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()

	cost := b.estimator.EstimateMessage(turn.Text)
	b.turns = append(b.turns, turn)
	b.costs = append(b.costs, cost)
	b.tokens += cost

	var evicted []Turn
	for len(b.turns) > 0 && (len(b.turns) > b.maxTurns || b.tokens > b.tokenCap) {
		evicted = append(evicted, b.turns[0])
		b.tokens -= b.costs[0]
		b.turns = b.turns[1:]
		b.costs = b.costs[1:]
	}
	return evicted
}

// Snapshot returns a copy of the buffered turns, oldest first.
func (b *ShortTermBuffer) Snapshot() []Turn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Turn, len(b.turns))
	copy(out, b.turns)
	return out
}

// Len returns the number of buffered turns.
func (b *ShortTermBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.turns)
}

// Tokens returns the estimated size of the buffered turns.
func (b *ShortTermBuffer) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

// Reset empties the buffer.
func (b *ShortTermBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.turns = nil
	b.costs = nil
	b.tokens = 0
}
