// Package inproc implements rma.Substrate by running every rank as a
// goroutine inside a single process, sharing real memory and arbitrating
// it with sync/atomic. It is the substrate the package's own tests and
// test/integration use to exercise the hash table core without spawning
// OS processes, and it is grounded on internal/shard's atomic-counter
// style of plain slices guarded by atomic ops on their elements, not by a
// mutex around the whole structure.
package inproc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dreamware/debruijn/internal/rma"
)

// table is the shared state for one named hash table, visible to every
// rank in the World. Exactly one exists per TableID for the lifetime of a
// construct/destroy cycle.
type table struct {
	data         [][]rma.Record // data[rank][offset]
	dataMu       []sync.RWMutex // one lock per rank's data shard
	reservations [][]int64      // reservations[rank][offset], mutated only via atomic
	closed       atomic.Bool
}

// World is the shared substrate state for all ranks in a single process. It
// owns the barrier and the registry of live tables; each rank's *Substrate
// is a thin, rank-scoped view over the same World.
type World struct {
	n  int
	mu sync.Mutex
	b  *rma.CyclicBarrier

	tables map[string]*table
}

// NewWorld creates a shared substrate for n in-process ranks.
func NewWorld(n int) *World {
	return &World{
		n:      n,
		b:      rma.NewCyclicBarrier(n),
		tables: make(map[string]*table),
	}
}

// Rank returns the rank-scoped Substrate for rank index i.
func (w *World) Rank(i int) *Substrate {
	return &Substrate{world: w, me: i}
}

// Substrate is one rank's view of a World, implementing rma.Substrate.
type Substrate struct {
	world *World
	me    int
}

var _ rma.Substrate = (*Substrate)(nil)

// RankMe implements rma.Substrate.
func (s *Substrate) RankMe() int { return s.me }

// RankN implements rma.Substrate.
func (s *Substrate) RankN() int { return s.world.n }

// NewArray implements rma.Substrate. The first rank to call it for a given
// tableID allocates the shared table struct; every subsequent caller for
// the same tableID reuses it, which is what makes this collective-safe
// without an explicit rendezvous step.
func (s *Substrate) NewArray(ctx context.Context, tableID string, kind rma.ArrayKind, n int) (rma.ArrayRef, error) {
	w := s.world
	w.mu.Lock()
	defer w.mu.Unlock()

	t, ok := w.tables[tableID]
	if !ok {
		t = &table{
			data:         make([][]rma.Record, w.n),
			dataMu:       make([]sync.RWMutex, w.n),
			reservations: make([][]int64, w.n),
		}
		w.tables[tableID] = t
	}

	switch kind {
	case rma.ArrayData:
		if t.data[s.me] == nil {
			t.data[s.me] = make([]rma.Record, n)
		}
	case rma.ArrayReservation:
		if t.reservations[s.me] == nil {
			t.reservations[s.me] = make([]int64, n)
		}
	default:
		return rma.ArrayRef{}, fmt.Errorf("inproc: unknown array kind %q", kind)
	}

	return rma.ArrayRef{TableID: tableID, Kind: kind, Rank: s.me}, nil
}

func (s *Substrate) lookup(tableID string) (*table, error) {
	s.world.mu.Lock()
	t, ok := s.world.tables[tableID]
	s.world.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("inproc: unknown table %q", tableID)
	}
	if t.closed.Load() {
		return nil, rma.ErrClosed
	}
	return t, nil
}

// Put implements rma.Substrate. The write completes before Put returns, so
// a caller that discards the handle can still rely on its next Barrier to
// order the write before every other rank's reads.
func (s *Substrate) Put(ctx context.Context, ref rma.ArrayRef, offset int, value rma.Record) *rma.Handle[struct{}] {
	t, err := s.lookup(ref.TableID)
	if err != nil {
		return rma.Resolved(struct{}{}, err)
	}
	t.dataMu[ref.Rank].Lock()
	t.data[ref.Rank][offset] = value
	t.dataMu[ref.Rank].Unlock()
	return rma.Resolved(struct{}{}, nil)
}

// Get implements rma.Substrate.
func (s *Substrate) Get(ctx context.Context, ref rma.ArrayRef, offset int) *rma.Handle[rma.Record] {
	t, err := s.lookup(ref.TableID)
	if err != nil {
		return rma.Resolved(rma.Record{}, err)
	}
	t.dataMu[ref.Rank].RLock()
	v := t.data[ref.Rank][offset]
	t.dataMu[ref.Rank].RUnlock()
	return rma.Resolved(v, nil)
}

// AtomicLoad implements rma.Substrate using sync/atomic directly on the
// target int64, matching a relaxed-ordering load.
func (s *Substrate) AtomicLoad(ctx context.Context, ref rma.ArrayRef, offset int) *rma.Handle[int64] {
	t, err := s.lookup(ref.TableID)
	if err != nil {
		return rma.Resolved(int64(0), err)
	}
	v := atomic.LoadInt64(&t.reservations[ref.Rank][offset])
	return rma.Resolved(v, nil)
}

// AtomicFetchAdd implements rma.Substrate using sync/atomic directly on the
// target int64. Exactly one caller ever observes 0 as the pre-increment
// result for a given slot, which atomic.AddInt64 guarantees by
// construction.
func (s *Substrate) AtomicFetchAdd(ctx context.Context, ref rma.ArrayRef, offset int, delta int64) *rma.Handle[int64] {
	t, err := s.lookup(ref.TableID)
	if err != nil {
		return rma.Resolved(int64(0), err)
	}
	addr := &t.reservations[ref.Rank][offset]
	after := atomic.AddInt64(addr, delta)
	return rma.Resolved(after-delta, nil)
}

// Barrier implements rma.Substrate with the World's shared CyclicBarrier.
func (s *Substrate) Barrier(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.world.b.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements rma.Substrate. It is collective in spirit (every rank
// should call it) but in-process the first caller simply marks the table
// closed for everyone.
func (s *Substrate) Close(ctx context.Context, tableID string) error {
	w := s.world
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[tableID]
	if !ok {
		return nil
	}
	t.closed.Store(true)
	return nil
}
