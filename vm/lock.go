package vm

import "sync"

// GlobalLock models the host's global execution lock (CPython's GIL, or
// an equivalent single-writer lock in other managed runtimes). Two of
// the three CPU sampler backends (supervisor-thread and
// host-runtime-callback) run while this lock is held by the capturing
// context, which is what lets them take strong code-object references
// directly instead of going through the shadow-table/epoch validation
// path the itimer backend needs.
type GlobalLock struct {
	mu sync.Mutex
}

// NewGlobalLock returns an unlocked GlobalLock.
func NewGlobalLock() *GlobalLock { return &GlobalLock{} }

// Lock acquires the lock, blocking until no thread holds it.
func (l *GlobalLock) Lock() { l.mu.Lock() }

// Unlock releases the lock.
func (l *GlobalLock) Unlock() { l.mu.Unlock() }

// Held runs fn with the lock held and releases it afterward, mirroring
// the contract a host-runtime timer callback or a supervisor-thread
// capture runs under.
func (l *GlobalLock) Held(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn()
}
