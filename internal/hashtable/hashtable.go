// Package hashtable implements the distributed, open-addressed hash table:
// linear probing driven by a remote reservation counter, a fire-and-forget
// insert path, and a defensive lookup path, all built on the one-sided
// operations internal/rma.Substrate exposes. It is the core this repository
// exists to implement; internal/contig and internal/assembly are its
// callers.
package hashtable

import (
	"context"
	"errors"
	"fmt"

	"github.com/dreamware/debruijn/internal/directory"
	"github.com/dreamware/debruijn/internal/kmer"
	"github.com/dreamware/debruijn/internal/rma"
)

// ErrTableFull is returned by Insert when a key's probe sequence wraps the
// entire table without finding an unclaimed slot. Callers generally treat
// this as fatal: the table capacity was sized too small for its load.
var ErrTableFull = errors.New("hashtable: table is full")

// ErrKeyNotFound is the sentinel a caller may wrap around a Find miss when
// it expected the key to exist, mirroring how internal/contig escalates an
// expected-present k-mer that Find could not locate.
var ErrKeyNotFound = errors.New("hashtable: key not found")

// Phase identifies which of the two globally ordered usage phases the
// table is currently in. Insert is only valid during PhaseInsert, Find only
// during PhaseLookup; Barrier transitions between them.
type Phase int

const (
	// PhaseInsert is the bulk-insertion phase: only Insert may be called.
	PhaseInsert Phase = iota
	// PhaseLookup is the bulk-lookup phase: only Find may be called.
	PhaseLookup
)

func (p Phase) String() string {
	switch p {
	case PhaseInsert:
		return "insert"
	case PhaseLookup:
		return "lookup"
	default:
		return fmt.Sprintf("hashtable.Phase(%d)", int(p))
	}
}

// DistributedHashMap is the logical hash table spanning every rank in the
// collective. A given instance must be constructed, used, and destroyed
// identically (same tableID, same N) on every rank.
type DistributedHashMap struct {
	sub rma.Substrate
	dir *directory.Directory
	n   int

	phase  Phase
	closed bool
}

// Construct collectively builds a DistributedHashMap of capacity n over
// sub. Every rank must call Construct with the same tableID and n; the
// call blocks on a barrier before returning so that every rank's shard
// directory is complete by the time any rank proceeds to Insert.
func Construct(ctx context.Context, sub rma.Substrate, tableID string, n int) (*DistributedHashMap, error) {
	if n <= 0 {
		return nil, fmt.Errorf("hashtable: capacity must be positive, got %d", n)
	}
	dir, err := directory.Build(ctx, sub, tableID, n)
	if err != nil {
		return nil, fmt.Errorf("hashtable: construct: %w", err)
	}
	if err := sub.Barrier(ctx); err != nil {
		return nil, fmt.Errorf("hashtable: construct barrier: %w", err)
	}
	return &DistributedHashMap{
		sub:   sub,
		dir:   dir,
		n:     n,
		phase: PhaseInsert,
	}, nil
}

// Size reports the table's logical capacity N, identical on every rank and
// at every call.
func (m *DistributedHashMap) Size() int { return m.n }

// Phase reports which usage phase the table currently believes it is in.
func (m *DistributedHashMap) Phase() Phase { return m.phase }

// Barrier quiesces all in-flight inserts and transitions the table from
// PhaseInsert to PhaseLookup, or back again. It is the only operation that
// establishes a happens-before relationship between one rank's writes and
// another rank's reads; skipping it makes a subsequent Find's result
// undefined.
func (m *DistributedHashMap) Barrier(ctx context.Context, next Phase) error {
	if err := m.sub.Barrier(ctx); err != nil {
		return fmt.Errorf("hashtable: barrier: %w", err)
	}
	m.phase = next
	return nil
}

// Insert reserves a slot for pair's key by linear probing and writes pair
// into it. It returns the 1-based probe count on success, or ErrTableFull
// if the probe sequence wraps the entire table. Insert is only valid during
// PhaseInsert; assertPhase panics in debug builds if called otherwise.
//
// The data put is fire-and-forget: its completion handle is discarded
// without being awaited. This is safe only because every insert is
// followed by a Barrier before any Find runs — the barrier is what
// quiesces the in-flight puts, not anything Insert itself does.
func (m *DistributedHashMap) Insert(ctx context.Context, pair kmer.Pair) (int, error) {
	assertPhase(m, PhaseInsert)

	h := pair.Kmer.Hash()
	record := rma.Record{Bytes: pair.Marshal()}

	for probe := 0; probe < m.n; probe++ {
		slot := int((h + uint64(probe)) % uint64(m.n))
		rank, local := m.dir.Owner(slot)

		previous, err := m.sub.AtomicFetchAdd(ctx, m.dir.ReservationRef(rank), local, 1).Wait(ctx)
		if err != nil {
			return 0, fmt.Errorf("hashtable: insert: reserving slot %d: %w", slot, err)
		}
		if previous == 0 {
			// Fire-and-forget: discard the handle, relying on the
			// phase-ending barrier to make this write visible.
			m.sub.Put(ctx, m.dir.DataRef(rank), local, record)
			return probe + 1, nil
		}
	}
	return 0, ErrTableFull
}

// Find looks up key by replaying the same linear probe sequence Insert
// used, checking the reservation counter first and only fetching the data
// record (and comparing keys) for slots the counter reports claimed.
// It returns (true, pair, probes) on a match, (false, kmer.Pair{}, probes)
// if key is provably absent; probes is the 1-based count of slots examined,
// useful for the same telemetry purpose as Insert's probe count. Find is
// only valid during PhaseLookup.
//
// The probe does not terminate on the first unclaimed slot it observes
// (the defensive form): a reservation counter of zero means no writer has
// claimed the slot *as far as this read can tell*, which is only a safe
// stopping condition once a barrier has established happens-before against
// every writer. Find is called only during PhaseLookup, after exactly such
// a barrier, so this is conservative rather than load-bearing — see
// optimistic.go for the early-terminating variant that exploits it.
func (m *DistributedHashMap) Find(ctx context.Context, key kmer.Pkmer) (bool, kmer.Pair, int, error) {
	assertPhase(m, PhaseLookup)
	return m.find(ctx, key, false)
}

func (m *DistributedHashMap) find(ctx context.Context, key kmer.Pkmer, earlyTerminate bool) (bool, kmer.Pair, int, error) {
	h := key.Hash()

	for probe := 0; probe < m.n; probe++ {
		slot := int((h + uint64(probe)) % uint64(m.n))
		rank, local := m.dir.Owner(slot)

		used, err := m.sub.AtomicLoad(ctx, m.dir.ReservationRef(rank), local).Wait(ctx)
		if err != nil {
			return false, kmer.Pair{}, probe + 1, fmt.Errorf("hashtable: find: checking slot %d: %w", slot, err)
		}
		if used == 0 {
			if earlyTerminate {
				return false, kmer.Pair{}, probe + 1, nil
			}
			continue
		}

		rec, err := m.sub.Get(ctx, m.dir.DataRef(rank), local).Wait(ctx)
		if err != nil {
			return false, kmer.Pair{}, probe + 1, fmt.Errorf("hashtable: find: reading slot %d: %w", slot, err)
		}
		pair, err := kmer.UnmarshalPair(rec.Bytes)
		if err != nil {
			return false, kmer.Pair{}, probe + 1, fmt.Errorf("hashtable: find: decoding slot %d: %w", slot, err)
		}
		if pair.Kmer.Equal(key) {
			return true, pair, probe + 1, nil
		}
	}
	return false, kmer.Pair{}, m.n, nil
}

// Destroy collectively tears down the table's shards and atomic domain.
// After Destroy returns, no further operation on m is valid.
func (m *DistributedHashMap) Destroy(ctx context.Context) error {
	if err := m.dir.Close(ctx, m.sub); err != nil {
		return fmt.Errorf("hashtable: destroy: %w", err)
	}
	m.closed = true
	return nil
}
