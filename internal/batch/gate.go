package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a counting-permit primitive bounding how many chunks execute at
// once. Acquire never fails on its own; it only suspends until a permit frees
// up or ctx is cancelled. The gate tracks its concurrent-holder high-water
// mark so tests can verify the bound was never exceeded.
type Gate struct {
	sem     *semaphore.Weighted
	holders atomic.Int64
	high    atomic.Int64
}

// NewGate creates a gate admitting at most limit concurrent holders.
func NewGate(limit int) *Gate {
	if limit < 1 {
		limit = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(limit))}
}

// Acquire blocks until a permit is available. It returns ctx.Err() if the
// context is cancelled while waiting.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := g.holders.Add(1)
	for {
		high := g.high.Load()
		if n <= high || g.high.CompareAndSwap(high, n) {
			return nil
		}
	}
}

// Release returns a permit to the gate.
func (g *Gate) Release() {
	g.holders.Add(-1)
	g.sem.Release(1)
}

// InFlight returns the number of permits currently held.
func (g *Gate) InFlight() int64 { return g.holders.Load() }

// HighWater returns the maximum number of permits ever held at once.
func (g *Gate) HighWater() int64 { return g.high.Load() }
