// Package contig walks the distributed hash table's lookup path to
// reconstruct contigs: starting from every k-mer whose backward extension
// is the sentinel, it repeatedly calls Find for the next k-mer in the
// chain until it reaches one whose forward extension is the sentinel.
package contig

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dreamware/debruijn/internal/hashtable"
	"github.com/dreamware/debruijn/internal/kmer"
	"github.com/dreamware/debruijn/internal/telemetry"
)

// Contig is a maximal chain of k-mers linked by successive forward
// extensions, from a start node (backward extension F) to an end node
// (forward extension F).
type Contig struct {
	Kmers []kmer.Pair
}

// Sequence flattens the contig into its DNA string: the first k-mer in
// full, then one base per subsequent k-mer (the base each shiftAppend
// step contributed).
func (c Contig) Sequence() string {
	if len(c.Kmers) == 0 {
		return ""
	}
	seq := c.Kmers[0].Kmer.String()
	for _, p := range c.Kmers[1:] {
		s := p.Kmer.String()
		seq += s[len(s)-1:]
	}
	return seq
}

// WalkAll builds a Contig for every element of startNodes, walking each
// forward independently via the errgroup-parallel fan-out until every
// chain reaches its sentinel. It returns an error (and abandons the
// remaining walks) the first time Find reports a missing k-mer, since a
// chain should never reference a key absent from a correctly-populated
// table. Every Find call's probe count is recorded against rank on tel.
func WalkAll(ctx context.Context, table *hashtable.DistributedHashMap, startNodes []kmer.Pair, tel *telemetry.Telemetry, rank int) ([]Contig, error) {
	contigs := make([]Contig, len(startNodes))

	g, ctx := errgroup.WithContext(ctx)
	for i, start := range startNodes {
		i, start := i, start
		g.Go(func() error {
			c, err := walkOne(ctx, table, start, tel, rank)
			if err != nil {
				return err
			}
			contigs[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return contigs, nil
}

func walkOne(ctx context.Context, table *hashtable.DistributedHashMap, start kmer.Pair, tel *telemetry.Telemetry, rank int) (Contig, error) {
	c := Contig{Kmers: []kmer.Pair{start}}
	current := start
	for !current.EndsContig() {
		next := current.Next()
		found, pair, probes, err := table.Find(ctx, next)
		tel.ObserveFindProbe(rank, probes)
		if err != nil {
			return Contig{}, fmt.Errorf("contig: walking past %s: %w", current.Kmer, err)
		}
		if !found {
			return Contig{}, fmt.Errorf("contig: %w: %s", hashtable.ErrKeyNotFound, next)
		}
		c.Kmers = append(c.Kmers, pair)
		current = pair
	}
	return c, nil
}
