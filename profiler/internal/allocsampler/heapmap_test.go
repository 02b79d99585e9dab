package allocsampler

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Periecle/spprof/profiler/internal/types"
)

func TestHeapMapInsertLookup(t *testing.T) {
	m := NewHeapAddressMap(1024, 8)
	rec := &types.AllocationRecord{Address: 0x1000, Size: 64, Sequence: 1}
	m.Insert(rec)

	got, ok := m.Lookup(0x1000)
	require.True(t, ok)
	assert.Equal(t, int64(64), got.Size)
	assert.Equal(t, int64(1), m.LiveCount())
}

func TestHeapMapLookupMissing(t *testing.T) {
	m := NewHeapAddressMap(1024, 8)
	_, ok := m.Lookup(0xdead)
	assert.False(t, ok)
}

func TestHeapMapMarkFreedRemovesLiveEntry(t *testing.T) {
	m := NewHeapAddressMap(1024, 8)
	rec := &types.AllocationRecord{Address: 0x2000, Size: 128, Sequence: 7}
	m.Insert(rec)

	size, ok := m.MarkFreed(0x2000, 7)
	require.True(t, ok)
	assert.Equal(t, int64(128), size)
	assert.Equal(t, int64(0), m.LiveCount())

	_, ok = m.Lookup(0x2000)
	assert.False(t, ok)
}

func TestHeapMapMarkFreedSequenceMismatchIsZombie(t *testing.T) {
	m := NewHeapAddressMap(1024, 8)
	rec := &types.AllocationRecord{Address: 0x3000, Size: 32, Sequence: 5}
	m.Insert(rec)

	_, ok := m.MarkFreed(0x3000, 4)
	assert.False(t, ok)
	assert.Equal(t, int64(1), m.ZombieCount())
	assert.Equal(t, int64(1), m.LiveCount())
}

func TestHeapMapReinsertAtSameAddressOverwrites(t *testing.T) {
	m := NewHeapAddressMap(1024, 8)
	m.Insert(&types.AllocationRecord{Address: 0x4000, Size: 16, Sequence: 1})
	m.Insert(&types.AllocationRecord{Address: 0x4000, Size: 99, Sequence: 2})

	got, ok := m.Lookup(0x4000)
	require.True(t, ok)
	assert.Equal(t, int64(99), got.Size)
}

func TestHeapMapEachVisitsLiveEntries(t *testing.T) {
	m := NewHeapAddressMap(1024, 8)
	for i := uintptr(1); i <= 5; i++ {
		m.Insert(&types.AllocationRecord{Address: i * 0x100, Size: int64(i), Sequence: uint64(i)})
	}
	seen := 0
	var total int64
	m.Each(func(r *types.AllocationRecord) {
		seen++
		total += r.Size
	})
	assert.Equal(t, 5, seen)
	assert.Equal(t, int64(15), total)
}

func TestHeapMapCapacityRoundsToPowerOfTwo(t *testing.T) {
	m := NewHeapAddressMap(100, 8)
	assert.Equal(t, uint64(127), m.mask)
}

func TestHeapMapInsertDropsOnProbeExhaustion(t *testing.T) {
	// A single-slot table: every address hashes into slot 0, so the
	// second Insert finds the probe bound exhausted by the first's
	// still-live record.
	m := NewHeapAddressMap(1, 1)
	first := &types.AllocationRecord{Address: 0x1000, Size: 1, Sequence: 1}
	second := &types.AllocationRecord{Address: 0x2000, Size: 2, Sequence: 2}
	m.Insert(first)
	m.Insert(second)

	assert.Equal(t, int64(1), m.LiveCount())
	assert.Equal(t, int64(1), m.InsertedCount())
	assert.Equal(t, int64(1), m.DropsFullCount())

	got, ok := m.Lookup(0x1000)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Size)

	_, ok = m.Lookup(0x2000)
	assert.False(t, ok)
}

func TestHeapMapConcurrentInsertLookup(t *testing.T) {
	m := NewHeapAddressMap(4096, 8)
	var wg sync.WaitGroup
	for i := uintptr(1); i <= 200; i++ {
		wg.Add(1)
		go func(addr uintptr) {
			defer wg.Done()
			m.Insert(&types.AllocationRecord{Address: addr, Size: 8, Sequence: uint64(addr)})
		}(i * 8)
	}
	wg.Wait()
	assert.GreaterOrEqual(t, m.InsertedCount(), int64(200))
}
