package vm

import (
	"runtime"
	"sync/atomic"
)

// GC models the host's tracing collector for the purposes of the
// code-object registry: a monotonically increasing epoch counter that
// advances on each collection cycle. A CodeObject registered in epoch N
// is safe to dereference without further validation while the current
// epoch is ≤ N+1 ("one full collection of grace").
type GC struct {
	epoch atomic.Uint64
}

// NewGC returns a GC starting at epoch 0.
func NewGC() *GC { return &GC{} }

// Epoch returns the current collection epoch.
func (g *GC) Epoch() uint64 { return g.epoch.Load() }

// Collect advances the epoch by one, as if a collection cycle just ran,
// and returns the new epoch.
func (g *GC) Collect() uint64 { return g.epoch.Add(1) }

// StaleAt reports whether a CodeObject registered in bornEpoch must be
// treated as possibly reclaimed given the current epoch — true once more
// than one full collection has elapsed since registration.
func (g *GC) StaleAt(bornEpoch uint64) bool {
	return g.Epoch() > bornEpoch+1
}

// HostGC is a GC whose Collect also triggers a real collection of the
// host Go process, so a test or embedder that wants the epoch to track
// genuine GC activity (rather than only synthetic test-driven bumps) can
// use it as a drop-in GC.
type HostGC struct {
	GC
}

// NewHostGC returns a HostGC tied to the current Go process's collector.
func NewHostGC() *HostGC { return &HostGC{} }

// Collect runs a real garbage collection and advances the epoch.
func (g *HostGC) Collect() uint64 {
	runtime.GC()
	return g.GC.Collect()
}
