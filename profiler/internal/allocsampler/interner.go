package allocsampler

import (
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/Periecle/spprof/profiler/internal/types"
)

// internedStack is one entry of the content-addressed stack table:
// stacks are interned by content hash so repeated allocation sites
// share one stack record.
type internedStack struct {
	id     uint64
	frames []types.CapturedFrame
}

// Interner deduplicates captured stacks by content, handing back a
// stable uint64 ID a caller can store in an AllocationRecord instead of
// a full frame slice.
type Interner struct {
	mu    sync.RWMutex
	byKey map[string]*internedStack
	byID  map[uint64]*internedStack
}

// NewInterner creates an empty stack interner.
func NewInterner() *Interner {
	return &Interner{
		byKey: make(map[string]*internedStack),
		byID:  make(map[uint64]*internedStack),
	}
}

// contentKey builds a stable string key from a captured stack's code
// pointers and instruction indices, so two physically distinct captures
// of the same call path collapse to the same entry.
func contentKey(frames []types.CapturedFrame) string {
	var b strings.Builder
	for _, f := range frames {
		b.WriteString(strconv.FormatUint(uint64(uintptr(unsafe.Pointer(f.Code))), 16))
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(int64(f.InstrIndex), 10))
		b.WriteByte('|')
	}
	return b.String()
}

// Intern returns the stable ID for frames, creating a new entry if this
// exact content hasn't been seen before.
func (in *Interner) Intern(frames []types.CapturedFrame) uint64 {
	key := contentKey(frames)

	in.mu.RLock()
	if s, ok := in.byKey[key]; ok {
		in.mu.RUnlock()
		return s.id
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if s, ok := in.byKey[key]; ok {
		return s.id
	}

	id := xxhash.Sum64String(key)
	// Defend against the astronomically unlikely case of an ID
	// collision between two distinct contents by perturbing until
	// unique; contentKey equality was already ruled out above.
	for {
		if _, exists := in.byID[id]; !exists {
			break
		}
		id++
	}

	cp := make([]types.CapturedFrame, len(frames))
	copy(cp, frames)
	s := &internedStack{id: id, frames: cp}
	in.byKey[key] = s
	in.byID[id] = s
	return id
}

// Get resolves a previously interned ID back to its frame slice. The
// returned slice must not be mutated by the caller.
func (in *Interner) Get(id uint64) ([]types.CapturedFrame, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	s, ok := in.byID[id]
	if !ok {
		return nil, false
	}
	return s.frames, true
}

// Len returns the number of distinct stacks currently interned.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.byID)
}
