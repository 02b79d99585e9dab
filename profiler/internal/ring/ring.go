// Package ring implements the fixed-capacity lock-free ring buffer that
// transports RawSamples from capture contexts (possibly signal handlers)
// to the single-consumer drain path.
package ring

import (
	"go.uber.org/atomic"

	"github.com/Periecle/spprof/profiler/internal/types"
)

const cacheLineSize = 64

// slotState values: a slot moves empty -> publishing -> committed ->
// consumed and back to empty on reuse.
const (
	slotEmpty uint32 = iota
	slotPublishing
	slotCommitted
	slotConsumed
)

type slot struct {
	state  atomic.Uint32
	sample types.RawSample
}

// paddedCounter isolates a counter on its own cache line so producer
// increments of head don't false-share with the consumer's reads of
// tail, and vice versa.
type paddedCounter struct {
	v   atomic.Uint64
	pad [cacheLineSize - 8]byte
}

// Buffer is a fixed-capacity power-of-two circular buffer. Many
// producers may call Publish concurrently (including from an
// async-signal handler); exactly one consumer may call Consume.
type Buffer struct {
	mask  uint64
	slots []slot

	head paddedCounter
	tail paddedCounter

	dropsFull atomic.Uint64
}

// DefaultCapacity is the recommended ring size (2^16 slots).
const DefaultCapacity = 1 << 16

// New creates a Buffer. capacity is rounded up to the next power of two;
// a non-positive capacity uses DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	capacity = nextPowerOfTwo(capacity)
	return &Buffer{
		mask:  uint64(capacity - 1),
		slots: make([]slot, capacity),
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Capacity returns the buffer's fixed slot count.
func (b *Buffer) Capacity() int { return len(b.slots) }

// DropsFull returns the number of samples dropped because the buffer was
// full at publish time.
func (b *Buffer) DropsFull() uint64 { return b.dropsFull.Load() }

// Publish reserves the next slot and writes sample into it. It returns
// false, without blocking, if the buffer is full — the only failure
// mode, always recoverable by counting (drop-newest: the producer's
// reservation is rolled back, never the consumer's next-to-read slot).
func (b *Buffer) Publish(sample types.RawSample) bool {
	h := b.head.v.Add(1) - 1
	tail := b.tail.v.Load()

	if h-tail >= uint64(len(b.slots)) {
		// Roll the reservation back; drop-newest policy.
		b.head.v.Sub(1)
		b.dropsFull.Inc()
		return false
	}

	s := &b.slots[h&b.mask]
	s.state.Store(slotPublishing)
	s.sample = sample
	s.state.Store(slotCommitted) // release-store commit
	return true
}

// Consume reads and removes the next committed sample, if any. Only the
// single designated consumer (the drain path) may call this. It returns
// false without blocking if the next slot is not yet committed — live
// producers may still be writing it.
func (b *Buffer) Consume() (types.RawSample, bool) {
	tail := b.tail.v.Load()
	s := &b.slots[tail&b.mask]

	if s.state.Load() != slotCommitted { // acquire-ordered load
		return types.RawSample{}, false
	}

	sample := s.sample
	s.sample = types.RawSample{}
	s.state.Store(slotConsumed)
	b.tail.v.Add(1)
	return sample, true
}

// Len returns an approximate count of committed-but-unconsumed samples.
// It is advisory only: producers and the consumer may race with it.
func (b *Buffer) Len() int {
	h := b.head.v.Load()
	t := b.tail.v.Load()
	if h < t {
		return 0
	}
	return int(h - t)
}
