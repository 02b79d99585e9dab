//go:build linux || darwin || freebsd

package sampler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Periecle/spprof/vm"
)

func TestItimerBackendArmsAndDisarms(t *testing.T) {
	threads, gc, lock := newTestRuntime()
	th := vm.NewThread("worker")
	threads.Register(th)
	af := th.Enter(vm.NewCodeObject("busy", "a.go", 1))
	defer af.Exit()

	cfg := DefaultConfig()
	cfg.Backend = BackendItimer
	cfg.IntervalMS = 5
	s := New(cfg, threads, gc, lock)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		return s.Stats().Captured > 0
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
}
