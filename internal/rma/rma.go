// Package rma defines the remote-memory substrate the hash table core is
// built on: one-sided put/get, remote atomic fetch-and-add/load, a
// collective barrier, and rank/world size queries.
//
// Two implementations are provided. rma/inproc simulates P ranks as
// goroutines inside a single process sharing real memory, guarded by
// sync/atomic — useful for tests and single-binary demonstrations.
// rma/rpc realises the same interface across real OS processes, with
// one-sided operations carried as HTTP requests to a peer's RMA server.
// The hash table core (internal/hashtable) depends only on the Substrate
// interface and is unaware which implementation it is driving.
package rma

import (
	"context"
	"errors"
)

// ArrayKind distinguishes the two parallel arrays a hash table shard is
// built from: the data array of k-mer records, and the reservation array
// of atomically-mutated integers.
type ArrayKind string

const (
	// ArrayData names the k-mer record array, target of Put/Get.
	ArrayData ArrayKind = "data"
	// ArrayReservation names the integer reservation-counter array,
	// target of AtomicLoad/AtomicFetchAdd.
	ArrayReservation ArrayKind = "reservation"
)

// ArrayRef addresses one rank's shard of a named shared array. It is the
// Go analogue of a upcxx::global_ptr: an opaque, collective-exchange-free
// handle that is valid for the lifetime of the table identified by
// TableID. ArrayRef is produced by NewArray for the calling rank's own
// shard; internal/directory builds the refs for every other rank locally
// from the same (TableID, Kind, Rank) fields.
type ArrayRef struct {
	TableID string
	Kind    ArrayKind
	Rank    int
}

// ErrClosed is returned by any Substrate operation issued after Close has
// torn down the array and its atomic domain. Callers that race a Close
// against an in-flight operation are misusing the substrate; returning an
// error here is the cheap way to surface that instead of corrupting state.
var ErrClosed = errors.New("rma: operation on closed array")

// Substrate is the one-sided remote-memory interface the hash table core
// consumes. Every method that can suspend returns a *Handle so that bulk
// phases can overlap many in-flight operations before awaiting any of them.
type Substrate interface {
	// RankMe returns this process's own rank in [0, RankN()).
	RankMe() int

	// RankN returns the total number of ranks in the collective (P).
	RankN() int

	// NewArray collectively allocates an n-element local shard of kind for
	// the table named tableID and returns this rank's ArrayRef to it. Every
	// rank must call NewArray with the same tableID, kind and n; the data
	// array is left uninitialised, the reservation array is zeroed.
	NewArray(ctx context.Context, tableID string, kind ArrayKind, n int) (ArrayRef, error)

	// Put issues a one-sided, fire-and-forget-capable write of value into
	// ref's data array at offset on ref.Rank. The returned handle's
	// completion is optional: the insert path may discard it and rely on
	// the next Barrier to make the write visible instead.
	Put(ctx context.Context, ref ArrayRef, offset int, value Record) *Handle[struct{}]

	// Get issues a one-sided read of ref's data array at offset on
	// ref.Rank.
	Get(ctx context.Context, ref ArrayRef, offset int) *Handle[Record]

	// AtomicLoad issues a relaxed atomic load of ref's reservation array at
	// offset on ref.Rank.
	AtomicLoad(ctx context.Context, ref ArrayRef, offset int) *Handle[int64]

	// AtomicFetchAdd issues a relaxed atomic fetch-and-add of delta on
	// ref's reservation array at offset on ref.Rank, returning the
	// pre-increment value.
	AtomicFetchAdd(ctx context.Context, ref ArrayRef, offset int, delta int64) *Handle[int64]

	// Barrier blocks until every rank in the collective has called Barrier
	// for this round. It is the only operation that establishes a global
	// happens-before relating writes on one rank to reads on another.
	Barrier(ctx context.Context) error

	// Close tears down the atomic domain and frees both shards for
	// tableID. Collective: every rank must call it. Operations on a closed
	// table return ErrClosed.
	Close(ctx context.Context, tableID string) error
}

// Record is the payload type carried by the data array. It is defined here
// rather than imported from internal/kmer so that the substrate layer has
// no compile-time dependency on the assembly domain; internal/hashtable
// converts between the two with kmer.Pair.Marshal and kmer.UnmarshalPair.
type Record struct {
	// Bytes is the wire/serialized form of one kmer.Pair, fixed-length so
	// that every implementation can size its storage up front.
	Bytes []byte
}
