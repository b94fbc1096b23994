//go:build !debugAssertions

package hashtable

// assertPhase is a no-op in release builds. See assertions_debug.go.
func assertPhase(m *DistributedHashMap, want Phase) {}
