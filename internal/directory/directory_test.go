package directory

import (
	"context"
	"testing"

	"github.com/dreamware/debruijn/internal/rma"
	"github.com/dreamware/debruijn/internal/rma/inproc"
)

func TestBuildDividesCapacityAcrossRanks(t *testing.T) {
	ctx := context.Background()
	const ranks = 4
	w := inproc.NewWorld(ranks)

	dirs := make([]*Directory, ranks)
	for r := 0; r < ranks; r++ {
		d, err := Build(ctx, w.Rank(r), "kmers", 100)
		if err != nil {
			t.Fatalf("rank %d Build: %v", r, err)
		}
		dirs[r] = d
	}

	for r, d := range dirs {
		if got := d.ShardSize(); got != 26 {
			t.Errorf("rank %d ShardSize = %d, want 26", r, got)
		}
		if got := d.Size(); got != 100 {
			t.Errorf("rank %d Size = %d, want 100", r, got)
		}
	}
}

func TestBuildShardSizeCoversUnevenCapacity(t *testing.T) {
	ctx := context.Background()
	w := inproc.NewWorld(3)
	d, err := Build(ctx, w.Rank(0), "kmers", 10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := d.ShardSize(); got != 4 {
		t.Errorf("ShardSize = %d, want 4", got)
	}
	if got := d.Size(); got != 10 {
		t.Errorf("Size = %d, want 10", got)
	}
	if got, want := d.ShardSize()*3, 12; got < want-2 {
		t.Errorf("S*P = %d, want at least capacity 10", got)
	}
}

func TestOwnerAddressesExpectedRankAndOffset(t *testing.T) {
	ctx := context.Background()
	w := inproc.NewWorld(4)
	d, err := Build(ctx, w.Rank(0), "kmers", 100)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	cases := []struct {
		slot      int
		wantRank  int
		wantLocal int
	}{
		{0, 0, 0},
		{25, 0, 25},
		{26, 1, 0},
		{99, 3, 21},
	}
	for _, c := range cases {
		rank, local := d.Owner(c.slot)
		if rank != c.wantRank || local != c.wantLocal {
			t.Errorf("Owner(%d) = (%d, %d), want (%d, %d)", c.slot, rank, local, c.wantRank, c.wantLocal)
		}
	}
}

func TestRefsAddressDistinctRanks(t *testing.T) {
	ctx := context.Background()
	w := inproc.NewWorld(4)
	d, err := Build(ctx, w.Rank(0), "kmers", 100)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for r := 0; r < 4; r++ {
		if got := d.DataRef(r); got.Rank != r || got.Kind != rma.ArrayData {
			t.Errorf("DataRef(%d) = %+v", r, got)
		}
		if got := d.ReservationRef(r); got.Rank != r || got.Kind != rma.ArrayReservation {
			t.Errorf("ReservationRef(%d) = %+v", r, got)
		}
	}
}

func TestCloseTearsDownUnderlyingArrays(t *testing.T) {
	ctx := context.Background()
	w := inproc.NewWorld(1)
	s := w.Rank(0)
	d, err := Build(ctx, s, "kmers", 10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := d.Close(ctx, s); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := s.Get(ctx, d.DataRef(0), 0).Wait(ctx); err == nil {
		t.Error("expected error reading from a closed directory")
	}
}
