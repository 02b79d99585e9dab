package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/Periecle/spprof/profiler/internal/sampler"
	"github.com/Periecle/spprof/vm"
)

func newTestRuntime() *vm.Runtime {
	return vm.NewRuntime()
}

func TestStartStopCPULifecycle(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime()
	p := New(rt, WithInterval(1), WithBackend(sampler.BackendSupervisor))

	th := vm.NewThread("worker")
	p.RegisterThread(th)
	af := th.Enter(vm.NewCodeObject("busy", "a.go", 1))
	defer af.Exit()

	require.NoError(t, p.StartCPU())
	require.Eventually(t, func() bool {
		return p.CPUStats().Collected > 0
	}, time.Second, time.Millisecond)

	assert.Greater(t, p.CPUStats().UniqueStacks, int64(0))
	assert.Equal(t, 1, p.CPUStats().SamplingIntervalMS)

	require.NoError(t, p.StopCPU())
	assert.NoError(t, p.StopCPU()) // idempotent

	samples, _ := p.DrainCPU(100)
	assert.NotEmpty(t, samples)
}

func TestStartCPUTwiceIsLifecycleViolation(t *testing.T) {
	defer goleak.VerifyNone(t)

	rt := newTestRuntime()
	p := New(rt, WithInterval(1))
	require.NoError(t, p.StartCPU())
	defer p.StopCPU()

	err := p.StartCPU()
	require.Error(t, err)
	var lv *LifecycleViolation
	assert.ErrorAs(t, err, &lv)
}

func TestStartCPUInvalidIntervalIsConfigurationInvalid(t *testing.T) {
	rt := newTestRuntime()
	p := New(rt, WithInterval(0))

	err := p.StartCPU()
	require.Error(t, err)
	var ci *ConfigurationInvalid
	assert.ErrorAs(t, err, &ci)
}

func TestStartMemStopMemLifecycle(t *testing.T) {
	rt := newTestRuntime()
	p := New(rt, WithSamplingRateBytes(1024))

	require.NoError(t, p.StartMem(1024))

	for i := 0; i < 2000; i++ {
		buf := make([]byte, 2048)
		addr := uintptr(0x1000 + i*8)
		rt.Alloc(addr, len(buf))
	}

	assert.NoError(t, p.StopMem())
	assert.NoError(t, p.StopMem()) // idempotent
}

func TestStartMemInvalidRateIsConfigurationInvalid(t *testing.T) {
	rt := newTestRuntime()
	p := New(rt)

	err := p.StartMem(100)
	require.Error(t, err)
	var ci *ConfigurationInvalid
	assert.ErrorAs(t, err, &ci)
}

func TestMemShutdownIsOneWay(t *testing.T) {
	rt := newTestRuntime()
	p := New(rt)

	require.NoError(t, p.MemShutdown())
	assert.NoError(t, p.MemShutdown()) // idempotent

	err := p.StartMem(2048)
	require.Error(t, err)
	var lv *LifecycleViolation
	assert.ErrorAs(t, err, &lv)
}

func TestWithThreadRegistersAndUnregisters(t *testing.T) {
	rt := newTestRuntime()
	p := New(rt)
	th := vm.NewThread("scoped")

	ran := false
	p.WithThread(th, func() {
		ran = true
		assert.Equal(t, 1, rt.Threads.Len())
	})

	assert.True(t, ran)
	assert.Equal(t, 0, rt.Threads.Len())
}

func TestCaptureCPUNowNoopWithoutCallbackBackend(t *testing.T) {
	rt := newTestRuntime()
	p := New(rt, WithBackend(sampler.BackendSupervisor))
	require.NoError(t, p.StartCPU())
	defer p.StopCPU()

	th := vm.NewThread("t")
	assert.NotPanics(t, func() { p.CaptureCPUNow(th) })
}

func TestAllocationReportedThroughRuntimeHooksReachesSnapshot(t *testing.T) {
	rt := newTestRuntime()
	p := New(rt, WithSamplingRateBytes(1024))
	require.NoError(t, p.StartMem(1024))
	defer p.MemShutdown()

	for i := 0; i < 500; i++ {
		rt.Alloc(uintptr(0x2000+i*8), 128)
	}

	require.Eventually(t, func() bool {
		return p.MemStats().Sampled > 0
	}, time.Second, time.Millisecond)

	stats := p.MemStats()
	assert.Greater(t, stats.UniqueStacks, int64(0))
	assert.Greater(t, stats.LoadFactorPct, float64(0))
	assert.Equal(t, int64(1024), stats.SamplingRateBytes)

	snap := p.MemSnapshot()
	assert.NotEmpty(t, snap)
}
