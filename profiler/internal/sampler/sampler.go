// Package sampler implements the three CPU sampler backends and the
// shared capture path that walks a vm.Thread, stamps the result with
// the code-object registry's retention/validation rules, and publishes
// it to the ring buffer for the drain path to consume.
package sampler

import (
	"errors"
	"time"

	"go.uber.org/atomic"

	"github.com/Periecle/spprof/profiler/internal/allocsampler"
	"github.com/Periecle/spprof/profiler/internal/coderegistry"
	"github.com/Periecle/spprof/profiler/internal/ring"
	"github.com/Periecle/spprof/profiler/internal/stackwalk"
	"github.com/Periecle/spprof/profiler/internal/types"
	"github.com/Periecle/spprof/vm"
)

// Backend selects which of the three capture mechanisms drives the
// sampler.
type Backend int

const (
	// BackendItimer arms one process-wide ITIMER_PROF timer and, on each
	// SIGPROF, captures every registered thread from a signal-notification
	// goroutine. It does not arm a separate timer per thread.
	BackendItimer Backend = iota
	// BackendSupervisor polls registered threads from a dedicated
	// goroutine that holds the global execution lock, taking each
	// thread's capture mutex to emulate suspend.
	BackendSupervisor
	// BackendCallback captures only the calling thread, synchronously,
	// from inside the host's global execution lock.
	BackendCallback
)

// DefaultIntervalMS is the default sampling interval.
const DefaultIntervalMS = 10

// DefaultMaxStackDepth is the default max_stack_depth.
const DefaultMaxStackDepth = types.MaxStackDepth

// stopBound is the hard cap on how long Stop may block waiting for an
// in-flight capture to quiesce.
const stopBound = 100 * time.Millisecond

// ErrAlreadyRunning is returned by Start when the sampler is already
// armed.
var ErrAlreadyRunning = errors.New("sampler: already running")

// ErrPlatformUnsupported is returned when BackendItimer is selected on a
// platform with no itimer/SIGPROF support.
var ErrPlatformUnsupported = errors.New("sampler: platform does not support this backend")

// Config controls one CPU sampling session.
type Config struct {
	IntervalMS         int
	MaxStackDepth      int32
	EnableNativeFrames bool
	Backend            Backend
	RingCapacity       int
}

// DefaultConfig returns the sampler's defaults with BackendSupervisor,
// the one backend with no platform constraints.
func DefaultConfig() Config {
	return Config{
		IntervalMS:    DefaultIntervalMS,
		MaxStackDepth: DefaultMaxStackDepth,
		Backend:       BackendSupervisor,
		RingCapacity:  ring.DefaultCapacity,
	}
}

// Stats is a point-in-time snapshot of the sampler's counters.
type Stats struct {
	Captured            uint64
	DropsFull           uint64
	DropsInvalidState   uint64
	DropsNoThreadState  uint64
	UniqueStacks        int64
	ShallowNativeStacks uint64
	IntervalMS          int
}

// backend is the internal driver contract; callback.go, supervisor.go
// and itimer_unix.go (itimer_unsupported.go elsewhere) implement it.
type backend interface {
	arm(cfg Config, onTick func(lockHeld bool, th *vm.Thread)) error
	disarm() error
}

// CPUSampler owns one CPU sampling session: backend selection, the
// shared capture/publish path, and the session counters.
type CPUSampler struct {
	cfg      Config
	threads  *vm.Registry
	gc       *vm.GC
	lock     *vm.GlobalLock
	ringBuf  *ring.Buffer
	registry *coderegistry.Registry

	interner *allocsampler.Interner

	drv     backend
	running atomic.Bool

	captured      atomic.Uint64
	dropsInvalid  atomic.Uint64
	dropsNoThread atomic.Uint64
	shallowNative atomic.Uint64
}

// New creates a CPUSampler bound to threads, gc and lock, which are
// typically the fields of one vm.Runtime.
func New(cfg Config, threads *vm.Registry, gc *vm.GC, lock *vm.GlobalLock) *CPUSampler {
	if cfg.IntervalMS <= 0 {
		cfg.IntervalMS = DefaultIntervalMS
	}
	if cfg.MaxStackDepth <= 0 {
		cfg.MaxStackDepth = DefaultMaxStackDepth
	}
	return &CPUSampler{
		cfg:      cfg,
		threads:  threads,
		gc:       gc,
		lock:     lock,
		ringBuf:  ring.New(cfg.RingCapacity),
		registry: coderegistry.New(gc),
		interner: allocsampler.NewInterner(),
	}
}

// RingBuffer exposes the ring buffer samples are published to, for the
// drain path.
func (s *CPUSampler) RingBuffer() *ring.Buffer { return s.ringBuf }

// Registry exposes the code-object registry this session uses to
// resolve captured frames at drain time.
func (s *CPUSampler) Registry() *coderegistry.Registry { return s.registry }

// Start arms the configured backend. Timer/OS-resource creation failure
// is fatal to starting the session.
func (s *CPUSampler) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	switch s.cfg.Backend {
	case BackendItimer:
		s.drv = newItimerBackend(s.threads)
	case BackendCallback:
		s.drv = newCallbackBackend(s.lock)
	default:
		s.drv = newSupervisorBackend(s.threads, s.lock)
	}

	if err := s.drv.arm(s.cfg, s.onTick); err != nil {
		s.running.Store(false)
		return err
	}
	return nil
}

// Stop disarms the backend. Idempotent and bounded by stopBound; a
// backend whose disarm blocks past that is a bug in that backend, not a
// caller error.
func (s *CPUSampler) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- s.drv.disarm() }()
	select {
	case err := <-done:
		return err
	case <-time.After(stopBound):
		return nil
	}
}

// onTick is the shared capture path every backend drives: lockHeld
// indicates whether the caller currently holds the global execution
// lock (backends 2 and 3), which determines whether captured code
// descriptors get a strong reference (Registry.Retain) or only a
// shadow-table/epoch stamp (itimer's no-retain path).
func (s *CPUSampler) onTick(lockHeld bool, th *vm.Thread) {
	if th == nil {
		s.dropsNoThread.Inc()
		return
	}

	walk := stackwalk.Walk(th, s.gc, stackwalk.Config{
		MaxDepth:        s.cfg.MaxStackDepth,
		NativeFrames:    s.cfg.EnableNativeFrames,
		EpochCrossCheck: !lockHeld,
	})
	if walk.Invalid {
		s.dropsInvalid.Inc()
		return
	}
	if len(walk.Frames) == 0 {
		return
	}
	if walk.ShallowNativeStack {
		s.shallowNative.Inc()
	}

	if lockHeld {
		for _, f := range walk.Frames {
			s.registry.Retain(f.Code)
		}
	}

	s.interner.Intern(walk.Frames)

	sample := types.RawSample{
		TimestampNS: time.Now().UnixNano(),
		ThreadID:    th.ID(),
		Frames:      walk.Frames,
		NativeIPs:   walk.NativeIPs,
		Truncated:   walk.Truncated,
	}
	if s.ringBuf.Publish(sample) {
		s.captured.Inc()
	}
}

// CaptureNow drives one synchronous capture of th through the callback
// backend. It is a no-op unless the sampler was started with
// BackendCallback.
func (s *CPUSampler) CaptureNow(th *vm.Thread) {
	if cb, ok := s.drv.(*callbackBackend); ok {
		cb.Capture(th)
	}
}

// Stats returns a snapshot of the sampler's counters.
func (s *CPUSampler) Stats() Stats {
	return Stats{
		Captured:            s.captured.Load(),
		DropsFull:           s.ringBuf.DropsFull(),
		DropsInvalidState:   s.dropsInvalid.Load(),
		DropsNoThreadState:  s.dropsNoThread.Load(),
		UniqueStacks:        int64(s.interner.Len()),
		ShallowNativeStacks: s.shallowNative.Load(),
		IntervalMS:          s.cfg.IntervalMS,
	}
}
