package sampler

import "github.com/Periecle/spprof/vm"

// callbackBackend drives capture synchronously: the host calls Capture
// from inside its own global execution lock, rather than any timer this
// package owns.
type callbackBackend struct {
	lock   *vm.GlobalLock
	onTick func(lockHeld bool, th *vm.Thread)
	armed  bool
}

func newCallbackBackend(lock *vm.GlobalLock) *callbackBackend {
	return &callbackBackend{lock: lock}
}

func (b *callbackBackend) arm(cfg Config, onTick func(lockHeld bool, th *vm.Thread)) error {
	b.onTick = onTick
	b.armed = true
	return nil
}

func (b *callbackBackend) disarm() error {
	b.armed = false
	b.onTick = nil
	return nil
}

// Capture runs one capture of th, synchronously, under the caller's
// hold of the global execution lock. It is a no-op if the backend isn't
// armed. Hosts using BackendCallback call this from wherever they'd
// otherwise deliver a SIGPROF tick — typically a bytecode-eval-loop
// counter threshold.
func (b *callbackBackend) Capture(th *vm.Thread) {
	if !b.armed || b.onTick == nil {
		return
	}
	b.lock.Held(func() {
		b.onTick(true, th)
	})
}
