package allocsampler

import (
	"go.uber.org/atomic"

	"github.com/Periecle/spprof/profiler/internal/types"
)

const (
	slotFree = iota
	slotOccupied
	slotTombstone
)

// DefaultHeapMapCapacity is the default number of slots in the open
// addressing table; rounded up to a power of two.
const DefaultHeapMapCapacity = 1 << 20

// DefaultProbeLimit bounds how many slots a single Insert or Lookup will
// examine before giving up.
const DefaultProbeLimit = 16

type slot struct {
	state atomic.Uint32
	addr  atomic.Uintptr
	rec   atomic.Pointer[types.AllocationRecord]
}

// HeapAddressMap is a lock-free open-addressing table mapping a live
// heap address to the AllocationRecord describing the sampled
// allocation that produced it.
type HeapAddressMap struct {
	slots      []slot
	mask       uint64
	probeLimit int

	live      atomic.Int64
	inserted  atomic.Int64
	dropsFull atomic.Int64
	zombie    atomic.Int64
	collision atomic.Int64
}

// NewHeapAddressMap creates a table with capacity slots (rounded up to a
// power of two) and the given bounded-probe limit.
func NewHeapAddressMap(capacity int, probeLimit int) *HeapAddressMap {
	if capacity <= 0 {
		capacity = DefaultHeapMapCapacity
	}
	if probeLimit <= 0 {
		probeLimit = DefaultProbeLimit
	}
	cap64 := nextPow2(uint64(capacity))
	return &HeapAddressMap{
		slots:      make([]slot, cap64),
		mask:       cap64 - 1,
		probeLimit: probeLimit,
	}
}

func (m *HeapAddressMap) hash(addr uintptr) uint64 {
	a := uint64(addr)
	a ^= a >> 33
	a *= 0xff51afd7ed558ccd
	a ^= a >> 33
	a *= 0xc4ceb9fe1a85ec53
	a ^= a >> 33
	return a & m.mask
}

// Insert records rec under its Address. When every slot within the
// probe bound is occupied by a live entry, the new record is abandoned
// and counted as a drop: existing records stay queryable and the table
// never evicts a live entry to make room for a new one.
func (m *HeapAddressMap) Insert(rec *types.AllocationRecord) {
	start := m.hash(rec.Address)

	for i := 0; i < m.probeLimit; i++ {
		idx := (start + uint64(i)) & m.mask
		s := &m.slots[idx]

		switch s.state.Load() {
		case slotFree, slotTombstone:
			if s.state.CompareAndSwap(slotFree, slotOccupied) ||
				s.state.CompareAndSwap(slotTombstone, slotOccupied) {
				s.addr.Store(rec.Address)
				s.rec.Store(rec)
				m.live.Inc()
				m.inserted.Inc()
				return
			}
			// Lost the race; fall through to re-examine this slot next
			// iteration.
			continue
		case slotOccupied:
			if s.addr.Load() == rec.Address {
				// Re-allocation at the same address before the previous
				// record's free was observed: overwrite in place.
				s.rec.Store(rec)
				m.collision.Inc()
				return
			}
		}
	}

	m.dropsFull.Inc()
}

// Lookup finds the live record for addr, if any is present within the
// probe bound.
func (m *HeapAddressMap) Lookup(addr uintptr) (*types.AllocationRecord, bool) {
	start := m.hash(addr)
	for i := 0; i < m.probeLimit; i++ {
		idx := (start + uint64(i)) & m.mask
		s := &m.slots[idx]
		if s.state.Load() == slotFree {
			return nil, false
		}
		if s.state.Load() == slotOccupied && s.addr.Load() == addr {
			if rec := s.rec.Load(); rec != nil {
				return rec, true
			}
		}
	}
	return nil, false
}

// MarkFreed marks the live record at addr as freed, provided the
// caller-supplied expectSeq matches the record's Sequence.
//
// expectSeq implements zombie-race detection. A post-hook callback
// racing with reuse of the same address is the usual source of this
// hazard; Go's allocation hooks are synchronous calls made by the
// caller, so there is no equivalent race inside this package. Instead,
// the caller captures the Sequence it observed when it decided to issue
// the free (e.g. from the last successful Lookup) and passes it back
// here; a mismatch means a newer sampled allocation at the same address
// has replaced the record the caller observed, which is counted as a
// zombie race rather than applied as a free. See DESIGN.md.
func (m *HeapAddressMap) MarkFreed(addr uintptr, expectSeq uint64) (freedSize int64, ok bool) {
	start := m.hash(addr)
	for i := 0; i < m.probeLimit; i++ {
		idx := (start + uint64(i)) & m.mask
		s := &m.slots[idx]
		if s.state.Load() == slotFree {
			return 0, false
		}
		if s.state.Load() == slotOccupied && s.addr.Load() == addr {
			rec := s.rec.Load()
			if rec == nil {
				return 0, false
			}
			if rec.Sequence != expectSeq {
				m.zombie.Inc()
				return 0, false
			}
			if !s.state.CompareAndSwap(slotOccupied, slotTombstone) {
				return 0, false
			}
			m.live.Dec()
			return rec.Size, true
		}
	}
	return 0, false
}

// LiveCount returns the number of currently-occupied slots.
func (m *HeapAddressMap) LiveCount() int64 { return m.live.Load() }

// InsertedCount returns the cumulative number of successful inserts.
func (m *HeapAddressMap) InsertedCount() int64 { return m.inserted.Load() }

// DropsFullCount returns how many inserts were abandoned because every
// slot within the probe bound was occupied by a different live address.
func (m *HeapAddressMap) DropsFullCount() int64 { return m.dropsFull.Load() }

// CollisionCount returns how many inserts overwrote a record in place
// because a new allocation reused an address whose previous record's
// free hadn't yet been observed.
func (m *HeapAddressMap) CollisionCount() int64 { return m.collision.Load() }

// Capacity returns the number of slots in the table.
func (m *HeapAddressMap) Capacity() int { return len(m.slots) }

// LoadFactorPct returns the percentage of slots currently occupied.
func (m *HeapAddressMap) LoadFactorPct() float64 {
	if len(m.slots) == 0 {
		return 0
	}
	return 100 * float64(m.live.Load()) / float64(len(m.slots))
}

// ZombieCount returns how many MarkFreed calls were rejected due to a
// sequence mismatch (address reused since the caller's last observation).
func (m *HeapAddressMap) ZombieCount() int64 { return m.zombie.Load() }

// Each calls fn for every currently-live record. fn must not retain the
// pointer beyond the call; the underlying slot may be reused afterward.
func (m *HeapAddressMap) Each(fn func(*types.AllocationRecord)) {
	for i := range m.slots {
		s := &m.slots[i]
		if s.state.Load() != slotOccupied {
			continue
		}
		if rec := s.rec.Load(); rec != nil {
			fn(rec)
		}
	}
}
