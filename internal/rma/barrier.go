package rma

import "sync"

// CyclicBarrier synchronizes n parties at a repeatable rendezvous point, the
// building block rma/inproc uses for Substrate.Barrier. Unlike
// sync.WaitGroup, a CyclicBarrier can be reused across phases: once all n
// parties have arrived, every Wait call returns and the barrier resets for
// the next round.
//
// Built on the generation-counter pattern common to reusable rendezvous
// points: instead of firing on a timer, it releases once a fixed party
// count has all arrived.
type CyclicBarrier struct {
	mu      sync.Mutex
	cond    *sync.Cond
	n       int
	arrived int
	gen     uint64
}

// NewCyclicBarrier returns a barrier for exactly n parties.
func NewCyclicBarrier(n int) *CyclicBarrier {
	b := &CyclicBarrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks the calling goroutine until n goroutines (across all ranks
// sharing this barrier) have called Wait for the current round.
func (b *CyclicBarrier) Wait() {
	b.mu.Lock()
	defer b.mu.Unlock()

	myGen := b.gen
	b.arrived++
	if b.arrived == b.n {
		b.arrived = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for myGen == b.gen {
		b.cond.Wait()
	}
}
