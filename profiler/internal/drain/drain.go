// Package drain converts the sampler's raw, unresolved captures into
// fully symbolized samples the output formats can serialize, run only
// after the capturing backend is fully disarmed and quiesced.
package drain

import (
	"sync"

	"github.com/Periecle/spprof/profiler/internal/allocsampler"
	"github.com/Periecle/spprof/profiler/internal/coderegistry"
	"github.com/Periecle/spprof/profiler/internal/ring"
	"github.com/Periecle/spprof/profiler/internal/stackwalk"
	"github.com/Periecle/spprof/profiler/internal/types"
	"github.com/Periecle/spprof/vm"
)

// stale and unknown are the sentinel names assigned to frames whose
// code descriptor failed registry validation, or was never captured at
// all.
const (
	stale   = "<stale>"
	unknown = "<unknown>"
)

// CPUDrain resolves RawSamples accumulated in a ring.Buffer into
// ResolvedSamples, using a coderegistry.Registry to decide whether each
// frame's code descriptor is still safe to dereference.
type CPUDrain struct {
	buf      *ring.Buffer
	registry *coderegistry.Registry

	mu    sync.RWMutex
	names map[vm.ThreadID]string
}

// NewCPUDrain creates a drain reading from buf and validating against
// registry.
func NewCPUDrain(buf *ring.Buffer, registry *coderegistry.Registry) *CPUDrain {
	return &CPUDrain{buf: buf, registry: registry, names: map[vm.ThreadID]string{}}
}

// SetThreadNames installs the thread-id -> display-name snapshot the
// drain path attaches to resolved samples: thread names are looked up
// at drain time, not in the capture handler.
func (d *CPUDrain) SetThreadNames(names map[vm.ThreadID]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.names = names
}

// Drain pops up to max committed samples from the ring buffer, resolves
// each one, and reports whether more committed samples remain.
func (d *CPUDrain) Drain(max int) (samples []types.ResolvedSample, hasMore bool) {
	if max <= 0 {
		max = 1
	}

	d.mu.RLock()
	names := d.names
	d.mu.RUnlock()

	for i := 0; i < max; i++ {
		raw, ok := d.buf.Consume()
		if !ok {
			break
		}
		samples = append(samples, d.resolve(raw, names))
	}

	return samples, d.buf.Len() > 0
}

func (d *CPUDrain) resolve(raw types.RawSample, names map[vm.ThreadID]string) types.ResolvedSample {
	frames := make([]types.Frame, 0, len(raw.Frames))
	for _, cf := range raw.Frames {
		frames = append(frames, d.resolveFrame(cf))
	}
	for _, ip := range raw.NativeIPs {
		fn, file, line, ok := stackwalk.ResolveNative(ip)
		if !ok {
			continue
		}
		frames = append(frames, types.Frame{
			FunctionName: fn,
			FileName:     file,
			Line:         line,
			IsNative:     true,
			IP:           ip,
		})
	}

	name, hasName := names[raw.ThreadID]
	return types.ResolvedSample{
		TimestampNS: raw.TimestampNS,
		ThreadID:    raw.ThreadID,
		ThreadName:  name,
		HasName:     hasName,
		Frames:      frames,
	}
}

func (d *CPUDrain) resolveFrame(cf types.CapturedFrame) types.Frame {
	if cf.Code == nil {
		return types.Frame{FunctionName: unknown, Line: int(cf.InstrIndex)}
	}
	if !d.registry.Validate(cf.Code, cf.BornEpoch) {
		return types.Frame{FunctionName: stale, Line: int(cf.InstrIndex)}
	}
	return types.Frame{
		FunctionName: cf.Code.Name,
		FileName:     cf.Code.File,
		Line:         cf.Code.Line,
	}
}

// MemDrain produces the set of live sampled allocations from an
// allocation sampler, with stacks already resolved. Unlike CPUDrain,
// there is no separate resolution step here: allocsampler.Snapshot
// already dereferences its captured code descriptors safely, because
// OnAlloc runs in synchronous thread context rather than a capture
// context racing against the GC (see allocsampler's own doc comments).
func MemDrain(sampler *allocsampler.AllocationSampler) []types.AllocationSample {
	return sampler.Snapshot()
}
