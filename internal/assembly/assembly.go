// Package assembly composes internal/reader, internal/hashtable,
// internal/contig and internal/telemetry into one rank's full run: read
// this rank's partition of the input file, build the distributed hash
// table, insert every k-mer, cross the phase barrier, walk contigs
// starting from this rank's own contig-starting k-mers, and write the
// result to disk. It is grounded on cmd/node/main.go's Node struct, which
// composes shard management with lifecycle methods; here the composed
// pieces are reader + hashtable + contig + telemetry for one rank.
package assembly

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/debruijn/internal/contig"
	"github.com/dreamware/debruijn/internal/hashtable"
	"github.com/dreamware/debruijn/internal/kmer"
	"github.com/dreamware/debruijn/internal/reader"
	"github.com/dreamware/debruijn/internal/rma"
	"github.com/dreamware/debruijn/internal/telemetry"
)

// DefaultLoadFactor matches the reference configuration's α = 0.5: table
// capacity is sized at n_kmers / α so that half the slots are expected to
// stay empty under full insertion.
const DefaultLoadFactor = 0.5

// Config parameterizes one run of the assembler.
type Config struct {
	// InputPath is the k-mer partition file every rank reads from,
	// identical across all ranks; each rank keeps only the lines that
	// round-robin to its own index.
	InputPath string

	// OutputDir receives one contigs file per rank. Created if missing.
	OutputDir string

	// TableID names the distributed hash table for this run. Every rank
	// must use the same value.
	TableID string

	// LoadFactor sizes the table capacity as n_kmers / LoadFactor. Zero
	// means DefaultLoadFactor.
	LoadFactor float64
}

// Result summarizes one rank's completed run.
type Result struct {
	RunID         string
	TableCapacity int
	KmersInserted int
	ContigsWalked int
	OutputPath    string
}

// Run drives one rank's full assembly: build the table, insert this
// rank's k-mer partition, cross the phase barrier, walk contigs starting
// from this rank's own contig-starting k-mers, write them out, and tear
// the table down. Every rank in the collective must call Run with a
// Config whose InputPath, TableID and LoadFactor agree.
func Run(ctx context.Context, sub rma.Substrate, cfg Config, tel *telemetry.Telemetry) (Result, error) {
	if tel == nil {
		tel = telemetry.New()
	}
	if cfg.LoadFactor == 0 {
		cfg.LoadFactor = DefaultLoadFactor
	}
	rank := sub.RankMe()
	runID := uuid.NewString()

	width, err := reader.KmerSize(cfg.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("assembly: %w", err)
	}
	if width != kmer.Len {
		return Result{}, fmt.Errorf("assembly: input k-mer width %d does not match compiled width %d", width, kmer.Len)
	}

	totalKmers, err := reader.LineCount(cfg.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("assembly: %w", err)
	}
	capacity := int(float64(totalKmers) / cfg.LoadFactor)
	if capacity < 1 {
		capacity = 1
	}

	table, err := hashtable.Construct(ctx, sub, cfg.TableID, capacity)
	if err != nil {
		return Result{}, fmt.Errorf("assembly: constructing table: %w", err)
	}

	partition, err := reader.ReadPartition(cfg.InputPath, sub.RankN(), rank)
	if err != nil {
		return Result{}, fmt.Errorf("assembly: reading partition: %w", err)
	}

	insertStart := time.Now()
	var startNodes []kmer.Pair
	for _, pair := range partition {
		probes, err := table.Insert(ctx, pair)
		if err != nil {
			tel.IncTableFull(rank)
			return Result{}, fmt.Errorf("assembly: inserting k-mer: %w", err)
		}
		tel.ObserveInsertProbe(rank, probes)
		if pair.StartsContig() {
			startNodes = append(startNodes, pair)
		}
	}
	tel.ObservePhaseDuration(rank, "insert", time.Since(insertStart).Seconds())

	if err := table.Barrier(ctx, hashtable.PhaseLookup); err != nil {
		return Result{}, fmt.Errorf("assembly: crossing barrier: %w", err)
	}

	lookupStart := time.Now()
	contigs, err := contig.WalkAll(ctx, table, startNodes, tel, rank)
	if err != nil {
		return Result{}, fmt.Errorf("assembly: walking contigs: %w", err)
	}
	tel.ObservePhaseDuration(rank, "lookup", time.Since(lookupStart).Seconds())

	outPath, err := writeContigs(cfg.OutputDir, rank, runID, contigs)
	if err != nil {
		return Result{}, fmt.Errorf("assembly: writing output: %w", err)
	}

	if err := table.Destroy(ctx); err != nil {
		return Result{}, fmt.Errorf("assembly: destroying table: %w", err)
	}

	return Result{
		RunID:         runID,
		TableCapacity: capacity,
		KmersInserted: len(partition),
		ContigsWalked: len(contigs),
		OutputPath:    outPath,
	}, nil
}

// writeContigs renders contigs as a FASTA file under dir, one record per
// contig named by its index within this rank's output.
func writeContigs(dir string, rank int, runID string, contigs []contig.Contig) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("contigs-rank%d-%s.fasta", rank, runID))

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i, c := range contigs {
		if _, err := fmt.Fprintf(w, ">rank%d_contig%d length=%d\n%s\n", rank, i, len(c.Kmers), c.Sequence()); err != nil {
			return "", err
		}
	}
	return path, w.Flush()
}
