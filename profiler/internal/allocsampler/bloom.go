package allocsampler

import (
	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
)

// DefaultBloomBits is the default size of the free-path short-circuit
// filter. At 2^20 bits (128KiB) and k=3, the filter stays under 1%
// false-positive probability for roughly 40k live entries.
const DefaultBloomBits = 1 << 20

// bloom is a fixed-size, never-cleared bit-array membership filter.
//
// A counting bloom filter would let entries be removed when their
// address is freed. This deliberately simplifies to a standard bit
// array that is only ever set, never cleared: removal would require a
// counter per bit (4x+ the memory) to avoid under-counting when two
// different addresses hash to the same bit, and the one property this
// filter's callers actually depend on --- "never produce a false
// negative for a freed address" --- holds either way, since clearing
// bits is a pure optimization (fewer map probes on free) and not a
// correctness requirement. See DESIGN.md.
type bloom struct {
	bits []atomic.Uint64 // 64 bits per word
	mask uint64          // len(bits)*64 - 1, requires power-of-two bit count
}

func newBloom(numBits uint64) *bloom {
	if numBits == 0 {
		numBits = DefaultBloomBits
	}
	numBits = nextPow2(numBits)
	words := numBits / 64
	if words == 0 {
		words = 1
	}
	return &bloom{bits: make([]atomic.Uint64, words), mask: numBits - 1}
}

func nextPow2(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}

// indices computes k=3 bit positions for addr via Kirsch-Mitzenmacher
// double hashing: h_i = h1 + i*h2, derived from a single xxhash digest
// split into two halves so only one hash evaluation is needed per key.
func (b *bloom) indices(addr uintptr) [3]uint64 {
	var buf [8]byte
	a := uint64(addr)
	for i := 0; i < 8; i++ {
		buf[i] = byte(a >> (8 * i))
	}
	h := xxhash.Sum64(buf[:])
	h1 := h & 0xffffffff
	h2 := h >> 32
	if h2 == 0 {
		h2 = 1
	}
	var out [3]uint64
	for i := uint64(0); i < 3; i++ {
		out[i] = (h1 + i*h2) & b.mask
	}
	return out
}

// add marks addr as present.
func (b *bloom) add(addr uintptr) {
	for _, bit := range b.indices(addr) {
		word, off := bit/64, bit%64
		for {
			old := b.bits[word].Load()
			next := old | (1 << off)
			if next == old || b.bits[word].CompareAndSwap(old, next) {
				break
			}
		}
	}
}

// mightContain reports whether addr may have been added. A false result
// is a hard guarantee of absence; a true result may be a false positive.
func (b *bloom) mightContain(addr uintptr) bool {
	for _, bit := range b.indices(addr) {
		word, off := bit/64, bit%64
		if b.bits[word].Load()&(1<<off) == 0 {
			return false
		}
	}
	return true
}
