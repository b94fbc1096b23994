// Package reader parses the k-mer partition file each rank loads at
// startup: one record per line, "<k-mer><backward-ext><forward-ext>",
// round-robined across ranks by line index so that every rank's partition
// is disjoint and their union is the whole file.
package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/dreamware/debruijn/internal/kmer"
)

// lineFields is the fixed record width: kmer.Len bases plus two single-byte
// extension characters.
const lineFields = kmer.Len + 2

// LineCount returns the total number of k-mer records across the whole
// file, used to size the hash table before any rank reads its partition
// (hash_table_size = n_kmers / load_factor in the original driver).
func LineCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reader: line count: %w", err)
	}
	defer f.Close()

	n := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if len(scanner.Text()) == 0 {
			continue
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reader: line count: %w", err)
	}
	return n, nil
}

// KmerSize inspects the first record of the file and returns the k-mer
// width it encodes, without validating the rest of the file. Callers
// compare this against kmer.Len and fail fast on mismatch before any rank
// proceeds to construct a table, mirroring the compiled-width check the
// original driver performs ("this binary is compiled for N-mers").
func KmerSize(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("reader: kmer size: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if len(line) < 2 {
			return 0, fmt.Errorf("reader: kmer size: line %q too short", line)
		}
		return len(line) - 2, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("reader: kmer size: %w", err)
	}
	return 0, fmt.Errorf("reader: kmer size: %s is empty", path)
}

// ReadPartition parses path and returns only the records belonging to rank
// me out of rankN total ranks, selected by line index modulo rankN. Every
// rank must be called with the same path and rankN so the partitions
// across all ranks are disjoint and complete.
func ReadPartition(path string, rankN, me int) ([]kmer.Pair, error) {
	if rankN <= 0 {
		return nil, fmt.Errorf("reader: rank count must be positive, got %d", rankN)
	}
	if me < 0 || me >= rankN {
		return nil, fmt.Errorf("reader: rank index %d out of range [0, %d)", me, rankN)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: read partition: %w", err)
	}
	defer f.Close()

	var partition []kmer.Pair
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		text := scanner.Text()
		if len(text) == 0 {
			continue
		}
		idx := line
		line++
		if idx%rankN != me {
			continue
		}

		pair, err := parseLine(text)
		if err != nil {
			return nil, fmt.Errorf("reader: read partition: line %d: %w", idx, err)
		}
		partition = append(partition, pair)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reader: read partition: %w", err)
	}
	return partition, nil
}

func parseLine(text string) (kmer.Pair, error) {
	if len(text) != lineFields {
		return kmer.Pair{}, fmt.Errorf("expected %d characters, got %d", lineFields, len(text))
	}
	kmerStr := text[:kmer.Len]
	backward := text[kmer.Len]
	forward := text[kmer.Len+1]
	return kmer.NewPair(kmerStr, backward, forward)
}
