//go:build !(linux || darwin || freebsd)

package sampler

import "github.com/Periecle/spprof/vm"

// itimerBackend on platforms without ITIMER_PROF/SIGPROF support always
// fails to arm with ErrPlatformUnsupported, which Start() surfaces
// directly to the caller rather than degrading silently to a different
// backend.
type itimerBackend struct{}

func newItimerBackend(_ *vm.Registry) *itimerBackend { return &itimerBackend{} }

func (b *itimerBackend) arm(cfg Config, onTick func(lockHeld bool, th *vm.Thread)) error {
	return ErrPlatformUnsupported
}

func (b *itimerBackend) disarm() error { return nil }
