// Package kmer implements the fixed-length k-mer key type used as the node
// in the de Bruijn graph: a packed DNA subsequence plus its single-base
// backward and forward extensions.
package kmer

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Len is the compile-time k-mer width. It must match the width of every
// k-mer in the input file; internal/reader checks this at load time and
// fails fast on mismatch rather than silently truncating or padding.
const Len = 19

const basesPerWord = 32 // 2 bits per base, 64 bits per word
const numWords = (Len + basesPerWord - 1) / basesPerWord

// ExtensionNone is the sentinel extension character marking a contig
// boundary: a k-mer with ExtensionNone as its backward extension starts a
// contig, and one with ExtensionNone as its forward extension ends one.
const ExtensionNone = 'F'

var baseCode = map[byte]uint64{'A': 0, 'C': 1, 'G': 2, 'T': 3}
var codeBase = [4]byte{'A', 'C', 'G', 'T'}

// Pkmer is the packed key portion of a k-mer: Len DNA bases, two bits each,
// stored in a fixed array of words. It is comparable with == and is used
// standalone as a lookup argument to the hash table's Find.
type Pkmer struct {
	packed [numWords]uint64
}

// Parse packs a Len-character ACGT string into a Pkmer.
func Parse(s string) (Pkmer, error) {
	var p Pkmer
	if len(s) != Len {
		return p, fmt.Errorf("kmer: want %d bases, got %d in %q", Len, len(s), s)
	}
	for i := 0; i < Len; i++ {
		code, ok := baseCode[s[i]]
		if !ok {
			return p, fmt.Errorf("kmer: invalid base %q at offset %d in %q", s[i], i, s)
		}
		word := i / basesPerWord
		shift := uint(i%basesPerWord) * 2
		p.packed[word] |= code << shift
	}
	return p, nil
}

// String unpacks the k-mer back into its ACGT representation.
func (p Pkmer) String() string {
	buf := make([]byte, Len)
	for i := 0; i < Len; i++ {
		word := i / basesPerWord
		shift := uint(i%basesPerWord) * 2
		code := (p.packed[word] >> shift) & 0x3
		buf[i] = codeBase[code]
	}
	return string(buf)
}

// Equal reports whether two packed keys hold the same bases. Lookups rely
// on this, not on the hash, to resolve collisions.
func (p Pkmer) Equal(other Pkmer) bool {
	return p.packed == other.packed
}

// Hash returns a 64-bit hash of the packed key, used to pick the initial
// probe slot. It has no cryptographic properties and needs none.
func (p Pkmer) Hash() uint64 {
	buf := make([]byte, numWords*8)
	for i, w := range p.packed {
		for b := 0; b < 8; b++ {
			buf[i*8+b] = byte(w >> (8 * b))
		}
	}
	return xxhash.Sum64(buf)
}

// shiftAppend drops the leading base and appends code as the new trailing
// base, producing the key of the k-mer that extends this one forward by one
// base. Used by Pair.Next.
func (p Pkmer) shiftAppend(code uint64) Pkmer {
	var next Pkmer
	for i := 1; i < Len; i++ {
		word := (i - 1) / basesPerWord
		shift := uint((i-1)%basesPerWord) * 2
		srcWord := i / basesPerWord
		srcShift := uint(i%basesPerWord) * 2
		base := (p.packed[srcWord] >> srcShift) & 0x3
		next.packed[word] |= base << shift
	}
	word := (Len - 1) / basesPerWord
	shift := uint((Len-1)%basesPerWord) * 2
	next.packed[word] |= code << shift
	return next
}

// Pair is a complete record stored in the hash table: a packed key plus its
// backward and forward single-base extensions. Pairs are copied by value
// into the table on insert and read by value on lookup.
type Pair struct {
	Kmer     Pkmer
	Backward byte
	Forward  byte
}

// NewPair builds a Pair from an unpacked k-mer string and its two extension
// characters.
func NewPair(kmerStr string, backward, forward byte) (Pair, error) {
	k, err := Parse(kmerStr)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Kmer: k, Backward: backward, Forward: forward}, nil
}

// wireLen is the fixed length of a marshaled Pair: the packed key words
// plus one byte for each extension character.
const wireLen = numWords*8 + 2

// Marshal encodes the pair into its fixed-length wire form for transport
// across the remote-memory substrate (internal/rma), where puts and gets
// carry opaque byte payloads rather than Go values.
func (kp Pair) Marshal() []byte {
	buf := make([]byte, wireLen)
	for i, w := range kp.Kmer.packed {
		for b := 0; b < 8; b++ {
			buf[i*8+b] = byte(w >> (8 * b))
		}
	}
	buf[wireLen-2] = kp.Backward
	buf[wireLen-1] = kp.Forward
	return buf
}

// UnmarshalPair decodes a Pair previously produced by Marshal.
func UnmarshalPair(buf []byte) (Pair, error) {
	var kp Pair
	if len(buf) != wireLen {
		return kp, fmt.Errorf("kmer: wire record is %d bytes, want %d", len(buf), wireLen)
	}
	for i := range kp.Kmer.packed {
		var w uint64
		for b := 0; b < 8; b++ {
			w |= uint64(buf[i*8+b]) << (8 * b)
		}
		kp.Kmer.packed[i] = w
	}
	kp.Backward = buf[wireLen-2]
	kp.Forward = buf[wireLen-1]
	return kp, nil
}

// Equal reports whether two pairs are byte-wise identical: same key and
// same extensions. Used by the round-trip tests.
func (kp Pair) Equal(other Pair) bool {
	return kp.Kmer.Equal(other.Kmer) && kp.Backward == other.Backward && kp.Forward == other.Forward
}

// StartsContig reports whether this k-mer's backward extension is the
// sentinel, i.e. it is a valid starting point for a forward contig walk.
func (kp Pair) StartsContig() bool {
	return kp.Backward == ExtensionNone
}

// EndsContig reports whether this k-mer's forward extension is the
// sentinel, i.e. the contig terminates here.
func (kp Pair) EndsContig() bool {
	return kp.Forward == ExtensionNone
}

// Next returns the packed key of the k-mer that should follow this one in a
// forward contig walk: this k-mer's bases shifted left by one, with the
// forward extension appended as the new trailing base. The caller looks
// this key up via the hash table's Find to continue the walk.
//
// Next panics if called when EndsContig is true; callers must check
// EndsContig first, exactly as the original contig loop checks
// forwardExt() != 'F' before calling next_kmer().
func (kp Pair) Next() Pkmer {
	if kp.EndsContig() {
		panic("kmer: Next called on a k-mer whose forward extension is the sentinel")
	}
	code, ok := baseCode[kp.Forward]
	if !ok {
		panic(fmt.Sprintf("kmer: invalid forward extension %q", kp.Forward))
	}
	return kp.Kmer.shiftAppend(code)
}
