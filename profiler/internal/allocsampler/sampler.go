// Package allocsampler implements Poisson-by-bytes sampled heap
// allocation profiling, independent of and concurrent with the CPU
// sampler.
package allocsampler

import (
	"errors"
	"time"

	"go.uber.org/atomic"

	"github.com/Periecle/spprof/profiler/internal/stackwalk"
	"github.com/Periecle/spprof/profiler/internal/types"
	"github.com/Periecle/spprof/vm"
)

// ErrAlreadyRunning is returned by Start when the sampler is already
// armed.
var ErrAlreadyRunning = errors.New("allocsampler: already running")

// ErrShutdown is returned by any call made after Shutdown.
var ErrShutdown = errors.New("allocsampler: shut down")

const (
	stateIdle int32 = iota
	stateRunning
	stateStopped
	stateShutdown
)

// Config configures an AllocationSampler.
type Config struct {
	// RateBytes is the mean sampling interval in bytes (default
	// 512KiB).
	RateBytes int64
	// Shards is the number of independent Poisson-decision shards; a
	// caller routes each logical thread to one via a stable key (e.g.
	// its vm.ThreadID) to avoid contending a single counter.
	Shards int
	// HeapMapCapacity sizes the live-address table.
	HeapMapCapacity int
	// BloomBits sizes the free-path short-circuit filter.
	BloomBits uint64
	// NativeFrames enables capturing a native instruction-pointer suffix
	// alongside each sampled allocation's interpreter frames.
	NativeFrames bool
}

// DefaultConfig returns the allocation sampler's default settings.
func DefaultConfig() Config {
	return Config{
		RateBytes:       DefaultSamplingRateBytes,
		Shards:          32,
		HeapMapCapacity: DefaultHeapMapCapacity,
		BloomBits:       DefaultBloomBits,
	}
}

// Guard is a thread-local re-entrancy flag. Go has no thread-local
// storage, so instead of faking one, each calling goroutine owns and
// passes its own Guard (typically stored alongside its *vm.Thread).
// OnAlloc refuses to recurse through a Guard that's already active,
// preventing the sampler's own bookkeeping allocations from
// re-triggering itself.
type Guard struct {
	active bool
}

// AllocationSampler is the heap allocation profiler.
type AllocationSampler struct {
	cfg Config

	decider  *shardedDecider
	heap     *HeapAddressMap
	freeSet  *bloom
	interner *Interner

	state         atomic.Int32
	seq           atomic.Uint64
	sampled       atomic.Int64
	freed         atomic.Int64
	reentrant     atomic.Int64
	shallowNative atomic.Int64
}

// New creates an AllocationSampler that is not yet started.
func New(cfg Config) *AllocationSampler {
	if cfg.RateBytes <= 0 {
		cfg.RateBytes = DefaultSamplingRateBytes
	}
	if cfg.Shards <= 0 {
		cfg.Shards = 32
	}
	return &AllocationSampler{
		cfg:      cfg,
		decider:  newShardedDecider(cfg.Shards, cfg.RateBytes),
		heap:     NewHeapAddressMap(cfg.HeapMapCapacity, DefaultProbeLimit),
		freeSet:  newBloom(cfg.BloomBits),
		interner: NewInterner(),
	}
}

// Start arms the sampler. It fails if already running or shut down.
func (s *AllocationSampler) Start() error {
	if s.state.Load() == stateShutdown {
		return ErrShutdown
	}
	if !s.state.CompareAndSwap(stateIdle, stateRunning) &&
		!s.state.CompareAndSwap(stateStopped, stateRunning) {
		return ErrAlreadyRunning
	}
	return nil
}

// Stop disarms the allocation-sampling decision. It is safe to call at
// any time and leaves the free path active so already-sampled
// allocations are still tracked to their eventual free. Idempotent.
func (s *AllocationSampler) Stop() error {
	if s.state.Load() == stateShutdown {
		return ErrShutdown
	}
	s.state.CompareAndSwap(stateRunning, stateStopped)
	return nil
}

// Shutdown permanently disables the sampler. One-way; subsequent Start,
// OnAlloc and OnFree calls are no-ops returning ErrShutdown where they
// return an error at all.
func (s *AllocationSampler) Shutdown() error {
	s.state.Store(stateShutdown)
	return nil
}

// running reports whether new allocations are currently being sampled.
func (s *AllocationSampler) running() bool {
	return s.state.Load() == stateRunning
}

// OnAlloc is called synchronously by the host's allocation path with
// the returned address, requested size, the calling thread, and a
// per-goroutine Guard. It runs in ordinary thread context, never inside
// a signal handler, so unlike the CPU sampler's capture path it is safe
// to resolve frames immediately.
func (s *AllocationSampler) OnAlloc(addr uintptr, size int64, th *vm.Thread, gc *vm.GC, guard *Guard) {
	if !s.running() {
		return
	}
	if guard.active {
		s.reentrant.Inc()
		return
	}
	guard.active = true
	defer func() { guard.active = false }()

	shardKey := uint64(0)
	if th != nil {
		shardKey = uint64(th.ID())
	}
	sampled, weight := s.decider.shouldSample(shardKey, size)
	if !sampled {
		return
	}

	var stackID uint64
	if th != nil {
		walk := stackwalk.Walk(th, gc, stackwalk.Config{
			MaxDepth:     types.MaxStackDepth,
			NativeFrames: s.cfg.NativeFrames,
		})
		if walk.ShallowNativeStack {
			s.shallowNative.Inc()
		}
		stackID = s.interner.Intern(walk.Frames)
	} else {
		stackID = s.interner.Intern(nil)
	}

	var epoch uint64
	if gc != nil {
		epoch = gc.Epoch()
	}

	rec := &types.AllocationRecord{
		Address:  addr,
		Size:     size,
		Weight:   weight,
		BirthNS:  time.Now().UnixNano(),
		StackID:  stackID,
		GCEpoch:  epoch,
		Sequence: s.seq.Inc(),
	}
	s.heap.Insert(rec)
	s.freeSet.add(addr)
	s.sampled.Inc()
}

// OnFree is called synchronously when the host frees addr. expectSeq is
// the Sequence the caller last observed for addr (e.g. from Lookup),
// used to detect the address-reuse race described in heapmap.go's
// MarkFreed doc comment. Callers with no sequence to offer should use
// OnFreeLatest instead.
func (s *AllocationSampler) OnFree(addr uintptr, expectSeq uint64) {
	if s.state.Load() == stateShutdown {
		return
	}
	if !s.freeSet.mightContain(addr) {
		return
	}
	if _, ok := s.heap.MarkFreed(addr, expectSeq); !ok {
		return
	}
	s.freed.Inc()
}

// OnFreeLatest frees addr using whatever Sequence is currently on record
// for it, for callers that have no independent zombie-race detection of
// their own.
func (s *AllocationSampler) OnFreeLatest(addr uintptr) {
	if s.state.Load() == stateShutdown {
		return
	}
	if !s.freeSet.mightContain(addr) {
		return
	}
	rec, ok := s.heap.Lookup(addr)
	if !ok {
		return
	}
	s.OnFree(addr, rec.Sequence)
}

// Snapshot returns every currently-live sampled allocation, symbolized
// via the interner.
//
// Unlike the CPU sampler's drain path, symbolization happens here
// without consulting a code-object registry: OnAlloc runs in ordinary
// synchronous thread context, so the code descriptors it captured are
// guaranteed reachable (the allocating thread itself still holds a
// frame referencing them) and safe to dereference directly.
func (s *AllocationSampler) Snapshot() []types.AllocationSample {
	var out []types.AllocationSample
	s.heap.Each(func(rec *types.AllocationRecord) {
		captured, _ := s.interner.Get(rec.StackID)
		out = append(out, types.AllocationSample{
			Address: rec.Address,
			Size:    rec.Size,
			Weight:  rec.Weight,
			BirthNS: rec.BirthNS,
			Freed:   rec.Freed,
			Frames:  resolveCapturedFrames(captured),
		})
	})
	return out
}

// resolveCapturedFrames dereferences each captured code pointer into an
// immutable types.Frame.
func resolveCapturedFrames(captured []types.CapturedFrame) []types.Frame {
	if len(captured) == 0 {
		return nil
	}
	out := make([]types.Frame, len(captured))
	for i, c := range captured {
		if c.Code == nil {
			out[i] = types.Frame{FunctionName: "<unknown>"}
			continue
		}
		out[i] = types.Frame{
			FunctionName: c.Code.Name,
			FileName:     c.Code.File,
			Line:         c.Code.Line,
		}
	}
	return out
}

// EstimatedHeapBytes returns the unbiased estimate of total live heap
// bytes attributable to sampled allocations (sum of Weight over live
// entries).
func (s *AllocationSampler) EstimatedHeapBytes() int64 {
	var total int64
	s.heap.Each(func(rec *types.AllocationRecord) { total += rec.Weight })
	return total
}

// SampledCount returns the cumulative number of allocations sampled.
func (s *AllocationSampler) SampledCount() int64 { return s.sampled.Load() }

// FreedCount returns the cumulative number of sampled allocations freed.
func (s *AllocationSampler) FreedCount() int64 { return s.freed.Load() }

// ReentrantCount returns how many OnAlloc calls were skipped because
// they re-entered through an already-active Guard.
func (s *AllocationSampler) ReentrantCount() int64 { return s.reentrant.Load() }

// ZombieRaceCount returns how many OnFree calls were rejected due to a
// sequence mismatch.
func (s *AllocationSampler) ZombieRaceCount() int64 { return s.heap.ZombieCount() }

// UniqueStackCount returns the number of distinct stacks interned across
// every allocation sampled so far.
func (s *AllocationSampler) UniqueStackCount() int64 { return int64(s.interner.Len()) }

// LoadFactorPct returns the live-address table's current occupancy as a
// percentage of its capacity.
func (s *AllocationSampler) LoadFactorPct() float64 { return s.heap.LoadFactorPct() }

// CollisionCount returns how many inserts overwrote a record in place
// due to address reuse raced ahead of the matching free.
func (s *AllocationSampler) CollisionCount() int64 { return s.heap.CollisionCount() }

// DropsHeapFullCount returns how many sampled allocations were abandoned
// because the live-address table's probe bound was exhausted.
func (s *AllocationSampler) DropsHeapFullCount() int64 { return s.heap.DropsFullCount() }

// ShallowNativeStackCount returns how many native unwinds (only captured
// when Config.NativeFrames is set) returned an implausibly short stack.
func (s *AllocationSampler) ShallowNativeStackCount() int64 { return s.shallowNative.Load() }

// RateBytes returns the configured mean sampling interval in bytes.
func (s *AllocationSampler) RateBytes() int64 { return s.cfg.RateBytes }
