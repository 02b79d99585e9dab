package vm

import (
	"sync"
	"sync/atomic"
)

// ThreadID identifies a logical thread of execution inside the vm: an
// opaque, monotonically increasing counter assigned by NewThread. It is
// not an OS thread id.
type ThreadID uint64

var nextThreadID atomic.Uint64

// Thread is a logical thread of execution: a name, an id, and a call
// stack of Frames. Hosts create one Thread per goroutine (or OS thread)
// they want observable to the profiler and call Enter/Exit around
// function boundaries.
type Thread struct {
	id   ThreadID
	name atomic.Pointer[string]

	current atomic.Pointer[Frame]
	pool    framePool
	poolMu  sync.Mutex // guards pool; only contended when a frame is reused cross-goroutine, which never happens in the steady state

	// captureMu is taken by the supervisor sampler backend to emulate
	// "suspend": while held, the thread promises not to advance its
	// frame stack past the point the walker observed.
	captureMu sync.Mutex
}

// NewThread allocates a new logical thread with the given display name.
// It is not added to any Registry; Registry.Register does that.
func NewThread(name string) *Thread {
	t := &Thread{id: ThreadID(nextThreadID.Add(1))}
	t.name.Store(&name)
	return t
}

// ID returns the thread's identifier.
func (t *Thread) ID() ThreadID { return t.id }

// Name returns the thread's display name.
func (t *Thread) Name() string {
	if p := t.name.Load(); p != nil {
		return *p
	}
	return ""
}

// SetName updates the thread's display name.
func (t *Thread) SetName(name string) { t.name.Store(&name) }

// CurrentFrame returns the innermost (leaf) frame, or nil if the thread
// is not currently executing any instrumented code. Safe to call
// concurrently with the owning thread calling Enter/Exit — this is the
// read the stack walker performs from a capture context.
func (t *Thread) CurrentFrame() *Frame {
	return t.current.Load()
}

// Enter pushes a new frame executing code onto the thread's stack and
// returns a handle used to pop it. Must be called only by the thread
// itself (never concurrently with another Enter/Exit on the same
// Thread).
func (t *Thread) Enter(code *CodeObject) *ActiveFrame {
	t.poolMu.Lock()
	f := t.pool.get()
	t.poolMu.Unlock()

	f.code.Store(code)
	f.instrIdx.Store(0)
	f.prev.Store(t.current.Load())
	t.current.Store(f)

	return &ActiveFrame{thread: t, frame: f}
}

func (t *Thread) exit(f *Frame) {
	prev := f.prev.Load()
	t.current.Store(prev)

	t.poolMu.Lock()
	t.pool.put(f)
	t.poolMu.Unlock()
}

// Lock acquires the thread's capture mutex, used by the supervisor
// sampler backend to emulate suspending the thread before inspecting its
// state.
func (t *Thread) Lock() { t.captureMu.Lock() }

// Unlock releases the thread's capture mutex.
func (t *Thread) Unlock() { t.captureMu.Unlock() }

// Registry tracks the set of Threads a profiling session observes. It
// is the target of the CPU sampler's register_thread()/
// unregister_thread() control-surface operations; unlike CPython, a Go
// program has no ambient notion of "the current thread" the runtime can
// hand back, so callers register an explicit *Thread handle obtained
// from NewThread.
type Registry struct {
	mu      sync.RWMutex
	threads map[ThreadID]*Thread
}

// NewRegistry creates an empty thread registry.
func NewRegistry() *Registry {
	return &Registry{threads: make(map[ThreadID]*Thread)}
}

// Register adds th to the registry. Returns false if th is nil.
func (r *Registry) Register(th *Thread) bool {
	if th == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[th.id] = th
	return true
}

// Unregister removes th from the registry. Returns false if th was not
// registered.
func (r *Registry) Unregister(th *Thread) bool {
	if th == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.threads[th.id]; !ok {
		return false
	}
	delete(r.threads, th.id)
	return true
}

// Each calls fn for every currently registered thread. fn must not
// register or unregister threads.
func (r *Registry) Each(fn func(*Thread)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, th := range r.threads {
		fn(th)
	}
}

// Len returns the number of registered threads.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.threads)
}

// Names returns a thread-id -> display-name snapshot, used by the drain
// path to attach thread names to resolved samples: names are looked up
// from a host-provided mapping at drain time, not in the handler.
func (r *Registry) Names() map[ThreadID]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ThreadID]string, len(r.threads))
	for id, th := range r.threads {
		out[id] = th.Name()
	}
	return out
}
