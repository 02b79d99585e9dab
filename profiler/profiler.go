// Package profiler is the control surface: it wires together the CPU
// sampler, the allocation sampler, and their drain paths around one
// vm.Runtime, exposing the lifecycle operations a host calls to
// start/stop/drain a profiling session.
package profiler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Periecle/spprof/profiler/internal/allocsampler"
	"github.com/Periecle/spprof/profiler/internal/drain"
	"github.com/Periecle/spprof/profiler/internal/sampler"
	"github.com/Periecle/spprof/profiler/internal/types"
	"github.com/Periecle/spprof/vm"
)

// cpuState tracks the CPU subsystem's session state. The transient
// stopping transition collapses into CPUSampler.Stop itself; the
// Profiler only needs to distinguish idle/running/stopped from a
// caller's point of view.
type cpuState int32

const (
	cpuIdle cpuState = iota
	cpuRunning
	cpuStopped
)

// Profiler owns one profiling session over a vm.Runtime: independent CPU
// and memory subsystems, each with its own lifecycle, sharing only the
// runtime's thread registry, GC epoch counter and global lock.
type Profiler struct {
	rt  *vm.Runtime
	cfg *config

	cpuMu      sync.Mutex
	cpuState   cpuState
	cpu        *sampler.CPUSampler
	cpuDrain   *drain.CPUDrain
	cpuStartNS int64

	memMu    sync.Mutex
	memAlive bool // false once MemShutdown has been called (one-way)
	mem      *allocsampler.AllocationSampler

	metrics *metrics
}

// New builds a Profiler bound to rt. No subsystem is started; call
// StartCPU/StartMem to begin a session.
func New(rt *vm.Runtime, opts ...Option) *Profiler {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	p := &Profiler{
		rt:      rt,
		cfg:     cfg,
		metrics: newMetrics(),
	}
	p.mem = allocsampler.New(allocsampler.Config{
		RateBytes:       cfg.rateBytes,
		Shards:          cfg.shards,
		HeapMapCapacity: cfg.heapMapCapacity,
		BloomBits:       cfg.bloomBits,
		NativeFrames:    cfg.nativeFrames,
	})
	p.memAlive = true
	rt.SetAllocHook(func(addr uintptr, size int) { p.onAlloc(addr, size) })
	rt.SetFreeHook(func(addr uintptr) { p.onFree(addr) })
	return p
}

// RegisterThread adds th to the runtime's thread registry, making it
// observable to the CPU sampler's supervisor and itimer backends.
func (p *Profiler) RegisterThread(th *vm.Thread) bool {
	return p.rt.Threads.Register(th)
}

// UnregisterThread removes th from the runtime's thread registry.
func (p *Profiler) UnregisterThread(th *vm.Thread) bool {
	return p.rt.Threads.Unregister(th)
}

// WithThread registers th, runs fn, and unregisters th afterward even if
// fn panics, giving scoped thread registration without a defer at every
// call site.
func (p *Profiler) WithThread(th *vm.Thread, fn func()) {
	p.RegisterThread(th)
	defer p.UnregisterThread(th)
	fn()
}

// StartCPU begins a CPU sampling session. Returns a ConfigurationInvalid
// if interval_ms or max_stack_depth are out of range, a
// LifecycleViolation if a session is already running, or a
// PlatformUnsupported if the configured backend cannot be armed here.
func (p *Profiler) StartCPU() error {
	if p.cfg.intervalMS < 1 {
		return &ConfigurationInvalid{Field: "interval_ms", Reason: "must be >= 1"}
	}
	if p.cfg.maxStackDepth < 1 {
		return &ConfigurationInvalid{Field: "max_stack_depth", Reason: "must be >= 1"}
	}

	p.cpuMu.Lock()
	defer p.cpuMu.Unlock()
	if p.cpuState == cpuRunning {
		return &LifecycleViolation{Op: "start_cpu", Reason: "already running"}
	}

	p.cpu = sampler.New(sampler.Config{
		IntervalMS:         p.cfg.intervalMS,
		MaxStackDepth:      p.cfg.maxStackDepth,
		EnableNativeFrames: p.cfg.nativeFrames,
		Backend:            p.cfg.backend,
		RingCapacity:       p.cfg.ringCapacity,
	}, p.rt.Threads, p.rt.GC, p.rt.Lock)
	p.cpuDrain = drain.NewCPUDrain(p.cpu.RingBuffer(), p.cpu.Registry())

	if err := p.cpu.Start(); err != nil {
		if errors.Is(err, sampler.ErrPlatformUnsupported) {
			return &PlatformUnsupported{Backend: backendName(p.cfg.backend)}
		}
		return &LifecycleViolation{Op: "start_cpu", Reason: err.Error()}
	}

	p.cpuState = cpuRunning
	p.cpuStartNS = time.Now().UnixNano()
	p.metrics.sample(time.Now())
	p.cfg.logger.Log(fmt.Sprintf("cpu profiling started (interval=%dms backend=%s)", p.cfg.intervalMS, backendName(p.cfg.backend)))
	return nil
}

// StopCPU disarms the CPU sampler. Idempotent: calling it while not
// running is a no-op.
func (p *Profiler) StopCPU() error {
	p.cpuMu.Lock()
	defer p.cpuMu.Unlock()
	if p.cpuState != cpuRunning {
		return nil
	}
	err := p.cpu.Stop()
	p.cpuState = cpuStopped
	p.metrics.sample(time.Now())

	stats := p.cpu.Stats()
	// CPU sessions have no heap map, so there is no load factor to report.
	reportPoints(p.cfg.statsd, sessionPoints(stats.Captured, stats.DropsFull+stats.DropsInvalidState+stats.DropsNoThreadState, 0, 0), nil)
	return err
}

// DrainCPU pops up to max resolved samples accumulated by the CPU
// sampler, reporting thread names as of the call: names are resolved at
// drain time, not in the capture handler.
func (p *Profiler) DrainCPU(max int) (samples []types.ResolvedSample, hasMore bool) {
	p.cpuMu.Lock()
	d := p.cpuDrain
	p.cpuMu.Unlock()
	if d == nil {
		return nil, false
	}
	d.SetThreadNames(p.rt.Threads.Names())
	return d.Drain(max)
}

// CPUStatsSnapshot is the control surface's cpu_stats() result.
type CPUStatsSnapshot struct {
	Collected            uint64
	Dropped              uint64
	DurationNS           int64
	OverheadEstimate     float64
	UniqueStacks         int64
	SamplingIntervalMS   int
	ShallowStackWarnings uint64
}

// CPUStats returns the current CPU sampler's counters.
func (p *Profiler) CPUStats() CPUStatsSnapshot {
	p.cpuMu.Lock()
	defer p.cpuMu.Unlock()
	if p.cpu == nil {
		return CPUStatsSnapshot{}
	}
	stats := p.cpu.Stats()
	dropped := stats.DropsFull + stats.DropsInvalidState + stats.DropsNoThreadState
	duration := time.Now().UnixNano() - p.cpuStartNS
	return CPUStatsSnapshot{
		Collected:            stats.Captured,
		Dropped:              dropped,
		DurationNS:           duration,
		OverheadEstimate:     overheadEstimate(stats.Captured, duration),
		UniqueStacks:         stats.UniqueStacks,
		SamplingIntervalMS:   stats.IntervalMS,
		ShallowStackWarnings: stats.ShallowNativeStacks,
	}
}

// CaptureCPUNow drives one synchronous capture of th. Only meaningful
// when StartCPU selected sampler.BackendCallback; a no-op otherwise,
// matching CPUSampler.CaptureNow's own contract.
func (p *Profiler) CaptureCPUNow(th *vm.Thread) {
	p.cpuMu.Lock()
	cpu := p.cpu
	p.cpuMu.Unlock()
	if cpu != nil {
		cpu.CaptureNow(th)
	}
}

// StartMem begins (or resumes, if previously Stopped) allocation
// sampling. rateBytes is checked (it must be at least 1024) and logged,
// but it does not change the sampling rate: the sampler keeps the mean
// byte rate set with WithSamplingRateBytes when the Profiler was built.
func (p *Profiler) StartMem(rateBytes int64) error {
	if rateBytes < 1024 {
		return &ConfigurationInvalid{Field: "rate_bytes", Reason: "must be >= 1024"}
	}

	p.memMu.Lock()
	defer p.memMu.Unlock()
	if !p.memAlive {
		return &LifecycleViolation{Op: "start_mem", Reason: "shut down"}
	}
	if err := p.mem.Start(); err != nil {
		return &LifecycleViolation{Op: "start_mem", Reason: err.Error()}
	}
	p.cfg.logger.Log(fmt.Sprintf("memory profiling started (rate_bytes=%d)", rateBytes))
	return nil
}

// StopMem disarms allocation sampling. Idempotent; the free path stays
// active so already-sampled allocations still have their eventual free
// tracked.
func (p *Profiler) StopMem() error {
	p.memMu.Lock()
	defer p.memMu.Unlock()
	err := p.mem.Stop()
	reportPoints(p.cfg.statsd, sessionPoints(
		uint64(p.mem.SampledCount()),
		0,
		uint64(p.mem.ZombieRaceCount()),
		p.mem.LoadFactorPct(),
	), nil)
	return err
}

// MemSnapshot returns every currently-live sampled allocation.
func (p *Profiler) MemSnapshot() []types.AllocationSample {
	snap := drain.MemDrain(p.mem)
	reportPoints(p.cfg.statsd, sessionPoints(
		uint64(p.mem.SampledCount()),
		0,
		uint64(p.mem.ZombieRaceCount()),
		p.mem.LoadFactorPct(),
	), nil)
	return snap
}

// MemStatsSnapshot is the control surface's mem_stats() result.
type MemStatsSnapshot struct {
	Sampled              int64
	Freed                int64
	EstimatedLiveBytes   int64
	ReentrantSkipped     int64
	ZombieRaces          int64
	UniqueStacks         int64
	LoadFactorPct        float64
	CollisionCount       int64
	DropsHeapFull        int64
	SamplingRateBytes    int64
	ShallowStackWarnings int64
}

// MemStats returns the allocation sampler's current counters.
func (p *Profiler) MemStats() MemStatsSnapshot {
	return MemStatsSnapshot{
		Sampled:              p.mem.SampledCount(),
		Freed:                p.mem.FreedCount(),
		EstimatedLiveBytes:   p.mem.EstimatedHeapBytes(),
		ReentrantSkipped:     p.mem.ReentrantCount(),
		ZombieRaces:          p.mem.ZombieRaceCount(),
		UniqueStacks:         p.mem.UniqueStackCount(),
		LoadFactorPct:        p.mem.LoadFactorPct(),
		CollisionCount:       p.mem.CollisionCount(),
		DropsHeapFull:        p.mem.DropsHeapFullCount(),
		SamplingRateBytes:    p.mem.RateBytes(),
		ShallowStackWarnings: p.mem.ShallowNativeStackCount(),
	}
}

// MemShutdown permanently disables allocation sampling. One-way: after
// this call, StartMem always returns a LifecycleViolation. Internal
// tables are deliberately left allocated rather than freed, since
// freeing them while any in-flight free-hook callback could still be
// running would race.
func (p *Profiler) MemShutdown() error {
	p.memMu.Lock()
	defer p.memMu.Unlock()
	if !p.memAlive {
		return nil
	}
	p.memAlive = false
	return p.mem.Shutdown()
}

// onAlloc adapts vm.Runtime's AllocHook shape (no thread identity, no
// guarantee of which goroutine calls it or how many call concurrently)
// to AllocationSampler.OnAlloc. It passes a fresh Guard per call rather
// than a shared one: a Guard shared across concurrent callers would
// race on its unsynchronized bool. OnAlloc's own bookkeeping
// allocations never reach back through this hook, since the sampler's
// internal maps allocate through Go's own allocator, not rt.Alloc. A
// host whose allocator wrapper genuinely can recurse through this same
// hook on one goroutine should call AllocationSampler.OnAlloc directly
// with a Guard it owns across that goroutine's calls (see the
// allocsampler/goalloc package for that pattern) rather than go through
// this convenience wiring.
func (p *Profiler) onAlloc(addr uintptr, size int) {
	p.mem.OnAlloc(addr, int64(size), nil, p.rt.GC, &allocsampler.Guard{})
}

func (p *Profiler) onFree(addr uintptr) {
	p.mem.OnFreeLatest(addr)
}

func backendName(b sampler.Backend) string {
	switch b {
	case sampler.BackendItimer:
		return "itimer"
	case sampler.BackendCallback:
		return "callback"
	default:
		return "supervisor"
	}
}
