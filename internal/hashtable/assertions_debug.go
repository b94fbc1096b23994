//go:build debugAssertions

package hashtable

import "fmt"

// assertPhase panics if m is not currently in want, and if m has already
// been destroyed. Compiled in only under the debugAssertions build tag;
// release builds pay nothing for this check and simply rely on callers
// honoring the two-phase discipline, per the "implementations SHOULD
// assert where cheap" guidance for misuse.
func assertPhase(m *DistributedHashMap, want Phase) {
	if m.closed {
		panic("hashtable: operation on a destroyed table")
	}
	if m.phase != want {
		panic(fmt.Sprintf("hashtable: called during phase %s, want %s", m.phase, want))
	}
}
