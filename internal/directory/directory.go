// Package directory builds and holds the shard directory a distributed
// hash table is constructed from: for every rank, the ArrayRef identifying
// its slice of the data array and its slice of the reservation array.
// Every rank must end up holding an identical directory before any insert
// or find begins, which is why Build is collective.
package directory

import (
	"context"
	"fmt"

	"github.com/dreamware/debruijn/internal/rma"
)

// Directory is the immutable, rank-ordered map from rank index to that
// rank's shard references. It is safe for concurrent read access once
// Build returns; nothing in this package mutates it afterward.
type Directory struct {
	tableID   string
	n         int // logical capacity N, as requested by the caller
	shardSize int // slots held by each rank, S

	data         []rma.ArrayRef // data[rank]
	reservations []rma.ArrayRef // reservations[rank]
}

// Build collectively allocates a table's two parallel arrays across every
// rank in sub and returns the resulting Directory. n is the table's logical
// capacity; each rank's shard holds S = floor(n/P) + 1 slots, chosen so
// that S*P is always at least n even when n does not divide evenly. Every
// rank must call Build with the same tableID and n.
func Build(ctx context.Context, sub rma.Substrate, tableID string, n int) (*Directory, error) {
	if n <= 0 {
		return nil, fmt.Errorf("directory: capacity must be positive, got %d", n)
	}
	rankN := sub.RankN()
	if rankN <= 0 {
		return nil, fmt.Errorf("directory: substrate reports non-positive rank count %d", rankN)
	}
	shardSize := n/rankN + 1

	dataRef, err := sub.NewArray(ctx, tableID, rma.ArrayData, shardSize)
	if err != nil {
		return nil, fmt.Errorf("directory: allocating data shard: %w", err)
	}
	resRef, err := sub.NewArray(ctx, tableID, rma.ArrayReservation, shardSize)
	if err != nil {
		return nil, fmt.Errorf("directory: allocating reservation shard: %w", err)
	}

	// Every rank allocates only its own shard; the barrier after this
	// point (driven by the caller, typically internal/hashtable.Construct)
	// is what lets every rank safely address every other rank's shard by
	// construction, since the (tableID, kind, rank) addressing scheme
	// needs no further exchange of pointers.
	data := make([]rma.ArrayRef, rankN)
	reservations := make([]rma.ArrayRef, rankN)
	for r := 0; r < rankN; r++ {
		data[r] = rma.ArrayRef{TableID: dataRef.TableID, Kind: rma.ArrayData, Rank: r}
		reservations[r] = rma.ArrayRef{TableID: resRef.TableID, Kind: rma.ArrayReservation, Rank: r}
	}

	return &Directory{
		tableID:      tableID,
		n:            n,
		shardSize:    shardSize,
		data:         data,
		reservations: reservations,
	}, nil
}

// Size returns the logical slot count N, not the larger S*P backing it.
func (d *Directory) Size() int { return d.n }

// ShardSize returns the number of slots held by each individual rank.
func (d *Directory) ShardSize() int { return d.shardSize }

// Owner returns the rank that owns global slot index, and the slot's
// offset within that rank's local shard.
func (d *Directory) Owner(slot int) (rank, local int) {
	return slot / d.shardSize, slot % d.shardSize
}

// DataRef returns the ArrayRef addressing rank's data shard.
func (d *Directory) DataRef(rank int) rma.ArrayRef { return d.data[rank] }

// ReservationRef returns the ArrayRef addressing rank's reservation shard.
func (d *Directory) ReservationRef(rank int) rma.ArrayRef { return d.reservations[rank] }

// Close tears down both parallel arrays backing this directory. Collective:
// every rank must call it.
func (d *Directory) Close(ctx context.Context, sub rma.Substrate) error {
	return sub.Close(ctx, d.tableID)
}
