//go:build linux || darwin || freebsd

package sampler

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/Periecle/spprof/vm"
)

// itimerBackend drives capture the way Go's own runtime/pprof CPU
// profiler is driven: ITIMER_PROF delivers SIGPROF each time the process
// has used one interval of CPU time, and os/signal.Notify hands each
// delivery to a regular goroutine rather than a true signal-handler
// context. onTick therefore runs as ordinary Go code (it allocates and
// takes locks), and there is no C-style signal-handler frame to stay
// safe inside of.
type itimerBackend struct {
	threads *vm.Registry

	sigCh  chan os.Signal
	stopCh chan struct{}
	doneWg sync.WaitGroup
}

func newItimerBackend(threads *vm.Registry) *itimerBackend {
	return &itimerBackend{threads: threads}
}

func (b *itimerBackend) arm(cfg Config, onTick func(lockHeld bool, th *vm.Thread)) error {
	interval := time.Duration(cfg.IntervalMS) * time.Millisecond
	usec := interval.Microseconds()

	it := unix.Itimerval{
		Interval: unix.Timeval{Sec: usec / 1e6, Usec: usec % 1e6},
		Value:    unix.Timeval{Sec: usec / 1e6, Usec: usec % 1e6},
	}

	b.sigCh = make(chan os.Signal, 16)
	signal.Notify(b.sigCh, syscall.SIGPROF)

	if err := unix.Setitimer(unix.ITIMER_PROF, &it, nil); err != nil {
		signal.Stop(b.sigCh)
		return err
	}

	b.stopCh = make(chan struct{})
	b.doneWg.Add(1)
	go func() {
		defer b.doneWg.Done()
		for {
			select {
			case <-b.stopCh:
				return
			case <-b.sigCh:
				b.threads.Each(func(th *vm.Thread) {
					onTick(false, th)
				})
			}
		}
	}()
	return nil
}

func (b *itimerBackend) disarm() error {
	zero := unix.Itimerval{}
	_ = unix.Setitimer(unix.ITIMER_PROF, &zero, nil)
	signal.Stop(b.sigCh)
	close(b.stopCh)
	b.doneWg.Wait()
	return nil
}
