package hashtable

import (
	"context"

	"github.com/dreamware/debruijn/internal/kmer"
)

// findOptimistic is the early-terminating lookup variant: it stops probing
// at the first slot whose reservation counter reads zero instead of
// continuing to the end of the probe sequence. It is sound only when a
// barrier has already established happens-before against every writer —
// exactly the condition PhaseLookup guarantees — which is why it stays
// unexported and benchmark-only rather than replacing Find. Find keeps the
// defensive form so the table remains correct even if a caller someday
// interleaves insert and lookup against its documented contract.
func (m *DistributedHashMap) findOptimistic(ctx context.Context, key kmer.Pkmer) (bool, kmer.Pair, int, error) {
	assertPhase(m, PhaseLookup)
	return m.find(ctx, key, true)
}
