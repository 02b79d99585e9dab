// Package goalloc is a reference host adapter wiring
// profiler/internal/allocsampler to a real allocator without cgo: it hands
// out byte slices from Go's own heap and reports each one to a
// vm.Runtime's allocation hooks, the way a CPython build wires spprof's
// sampler to PyMem_SetAllocator. It exists for the allocation sampler's
// own tests and benchmarks, not as something a production host must use;
// any host allocator that can report an address and a size at alloc/free
// time works equally well.
package goalloc

import (
	"sync"
	"unsafe"

	"github.com/Periecle/spprof/vm"
)

// Allocator hands out tracked buffers and reports them to rt's allocation
// hooks. It is safe for concurrent use.
type Allocator struct {
	rt *vm.Runtime

	mu   sync.Mutex
	live map[uintptr][]byte
}

// New creates an Allocator that reports every Alloc/Free through rt.
func New(rt *vm.Runtime) *Allocator {
	return &Allocator{rt: rt, live: make(map[uintptr][]byte)}
}

// addrOf returns the address of a slice's backing array, used as the
// stable identity the allocation sampler's heap map keys on.
func addrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Alloc allocates a size-byte buffer, reports it to the runtime's
// allocation hook, and returns it. The caller owns the returned slice
// until it calls Free with the same slice.
func (a *Allocator) Alloc(size int) []byte {
	buf := make([]byte, size)
	addr := addrOf(buf)
	if addr == 0 {
		return buf
	}

	a.mu.Lock()
	a.live[addr] = buf
	a.mu.Unlock()

	a.rt.Alloc(addr, size)
	return buf
}

// Free reports buf as deallocated and releases the adapter's own
// reference to it so the real Go GC can reclaim it.
func (a *Allocator) Free(buf []byte) {
	addr := addrOf(buf)
	if addr == 0 {
		return
	}

	a.mu.Lock()
	delete(a.live, addr)
	a.mu.Unlock()

	a.rt.Free(addr)
}

// LiveCount returns how many buffers this adapter currently believes are
// outstanding, independent of what the allocation sampler itself sampled.
func (a *Allocator) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}
