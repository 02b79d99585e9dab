package sampler

import (
	"sync"
	"time"

	"github.com/Periecle/spprof/vm"
)

// supervisorBackend runs a dedicated goroutine that wakes every
// interval_ms and, with the host's global execution lock held, iterates
// registered threads and captures each one while holding its capture
// mutex to emulate suspending it.
type supervisorBackend struct {
	threads *vm.Registry
	lock    *vm.GlobalLock

	stopCh chan struct{}
	doneWg sync.WaitGroup
}

func newSupervisorBackend(threads *vm.Registry, lock *vm.GlobalLock) *supervisorBackend {
	return &supervisorBackend{threads: threads, lock: lock}
}

func (b *supervisorBackend) arm(cfg Config, onTick func(lockHeld bool, th *vm.Thread)) error {
	b.stopCh = make(chan struct{})
	ticker := time.NewTicker(time.Duration(cfg.IntervalMS) * time.Millisecond)

	b.doneWg.Add(1)
	go func() {
		defer b.doneWg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-b.stopCh:
				return
			case <-ticker.C:
				b.lock.Held(func() {
					b.threads.Each(func(th *vm.Thread) {
						th.Lock()
						onTick(true, th)
						th.Unlock()
					})
				})
			}
		}
	}()
	return nil
}

func (b *supervisorBackend) disarm() error {
	close(b.stopCh)
	b.doneWg.Wait()
	return nil
}
