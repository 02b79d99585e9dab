// Package coderegistry turns raw captured vm.CodeObject pointers into
// references the drain path can safely dereference, even though vm's
// GC may reclaim code objects between capture and drain.
package coderegistry

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/Periecle/spprof/vm"
)

// strongEntry backs the lock-held branch: the first capture of a
// descriptor under the global lock grants a strong reference; later
// captures of the same descriptor just bump the counter.
type strongEntry struct {
	refcount atomic.Int64
}

// shadowEntry backs the itimer branch: a record of "this descriptor was
// known alive as of bornEpoch", consulted instead of taking a reference.
type shadowEntry struct {
	bornEpoch uint64
}

// Registry is the code-object registry.
type Registry struct {
	gc *vm.GC

	strong sync.Map // map[*vm.CodeObject]*strongEntry
	shadow sync.Map // map[*vm.CodeObject]shadowEntry

	validated  atomic.Uint64
	staleCount atomic.Uint64
}

// New creates a Registry validating against gc's epoch.
func New(gc *vm.GC) *Registry {
	return &Registry{gc: gc}
}

// Retain grants (or bumps) a strong reference to code. Must only be
// called from a context that holds the host's global execution lock —
// never from the itimer signal handler.
func (r *Registry) Retain(code *vm.CodeObject) {
	if code == nil {
		return
	}
	if v, loaded := r.strong.Load(code); loaded {
		v.(*strongEntry).refcount.Inc()
		return
	}
	e := &strongEntry{}
	e.refcount.Store(1)
	actual, loaded := r.strong.LoadOrStore(code, e)
	if loaded {
		actual.(*strongEntry).refcount.Inc()
	}
}

// ReleaseAll drops every strong reference held by the registry in bulk.
// Called after a session's drain completes; insertion order need not be
// reversed.
func (r *Registry) ReleaseAll() {
	r.strong.Range(func(key, _ any) bool {
		r.strong.Delete(key)
		return true
	})
}

// SnapshotAlive records code as known-alive as of the current epoch, in
// the shadow table the validate path checks against when a capture's
// grace window has expired. No sampler backend calls it; without such
// calls the shadow table holds only descriptors that Validate accepted
// within their grace window.
func (r *Registry) SnapshotAlive(code *vm.CodeObject) {
	if code == nil {
		return
	}
	r.shadow.LoadOrStore(code, shadowEntry{bornEpoch: r.gc.Epoch()})
}

// Validate reports whether code, captured when the GC was at bornEpoch,
// is still safe to dereference at drain time. It never panics and never
// dereferences code itself beyond pointer comparison; the caller decides
// what to do with a false result (resolve to a sentinel name).
//
// Double-validation is idempotent: once a descriptor validates, it's
// cached in the shadow table, so a later call for it still succeeds
// after the grace window has passed.
func (r *Registry) Validate(code *vm.CodeObject, bornEpoch uint64) bool {
	if code == nil {
		return false
	}
	if _, ok := r.strong.Load(code); ok {
		return true
	}
	if !r.gc.StaleAt(bornEpoch) {
		// Within the one-collection grace window: safe without further
		// validation.
		r.validated.Inc()
		r.shadow.LoadOrStore(code, shadowEntry{bornEpoch: bornEpoch})
		return true
	}
	if _, ok := r.shadow.Load(code); ok {
		r.validated.Inc()
		return true
	}
	r.staleCount.Inc()
	return false
}

// ValidatedCount returns how many validations succeeded this session.
func (r *Registry) ValidatedCount() uint64 { return r.validated.Load() }

// StaleCount returns how many validations failed (resolved as stale).
func (r *Registry) StaleCount() uint64 { return r.staleCount.Load() }

// StrongCount returns the number of distinct descriptors currently held
// with a strong reference.
func (r *Registry) StrongCount() int {
	n := 0
	r.strong.Range(func(_, _ any) bool { n++; return true })
	return n
}
