package goalloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Periecle/spprof/profiler/internal/allocsampler"
	"github.com/Periecle/spprof/vm"
)

func TestAllocatorReportsToSampler(t *testing.T) {
	rt := vm.NewRuntime()
	cfg := allocsampler.DefaultConfig()
	cfg.RateBytes = 256
	sampler := allocsampler.New(cfg)
	require.NoError(t, sampler.Start())

	th := vm.NewThread("t")
	af := th.Enter(vm.NewCodeObject("f", "a.go", 1))
	defer af.Exit()
	guard := &allocsampler.Guard{}

	rt.SetAllocHook(func(addr uintptr, size int) {
		sampler.OnAlloc(addr, int64(size), th, rt.GC, guard)
	})
	rt.SetFreeHook(func(addr uintptr) {
		sampler.OnFreeLatest(addr)
	})

	alloc := New(rt)
	buf := alloc.Alloc(8 * 1024 * 1024)
	assert.Equal(t, int64(1), sampler.SampledCount())

	alloc.Free(buf)
	assert.Equal(t, int64(1), sampler.FreedCount())
	assert.Equal(t, 0, alloc.LiveCount())
}

func TestAllocatorLiveCountTracksOutstandingBuffers(t *testing.T) {
	rt := vm.NewRuntime()
	alloc := New(rt)

	a := alloc.Alloc(16)
	b := alloc.Alloc(32)
	assert.Equal(t, 2, alloc.LiveCount())

	alloc.Free(a)
	assert.Equal(t, 1, alloc.LiveCount())
	alloc.Free(b)
	assert.Equal(t, 0, alloc.LiveCount())
}
