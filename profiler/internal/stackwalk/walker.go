// Package stackwalk implements the bounded, leaf-first frame capture
// algorithm against a vm.Thread's frame chain. It never dereferences
// captured code descriptors (that's deferred to profiler/internal/drain
// via the code-object registry); it does allocate the result's frame
// slice, and native capture calls runtime.Callers.
package stackwalk

import (
	"github.com/Periecle/spprof/profiler/internal/types"
	"github.com/Periecle/spprof/vm"
)

// Config controls one walk.
type Config struct {
	// MaxDepth bounds the number of interpreter frames captured
	// (default 256).
	MaxDepth int32
	// NativeFrames enables capturing a native instruction-pointer
	// suffix after the interpreter frames.
	NativeFrames bool
	// NativeDepth bounds the native suffix length.
	NativeDepth int32
	// EpochCrossCheck rejects the walk if the GC epoch advances between
	// the start and end of capture. Optional: only worth enabling when
	// the backend can read the epoch cheaply.
	EpochCrossCheck bool
}

// DefaultMaxDepth is the default interpreter frame capture ceiling.
const DefaultMaxDepth = types.MaxStackDepth

// shallowNativeThreshold is the native-frame count below which a
// requested native unwind is considered implausibly short, e.g. a
// frame-pointer walk that terminated early because a C extension frame
// lacked a standard prologue.
const shallowNativeThreshold = 2

// Result is the product of one walk: captured frames are leaf-first,
// i.e. Frames[0] is the innermost (currently executing) frame.
type Result struct {
	Frames    []types.CapturedFrame
	NativeIPs []uintptr
	Truncated bool
	// Invalid is true when the walk must be discarded and counted as
	// drops_invalid_state rather than published.
	Invalid bool
	// ShallowNativeStack is true when native frames were requested but
	// the unwinder returned fewer than shallowNativeThreshold frames.
	ShallowNativeStack bool
}

// Walk captures th's current frame chain. gc may be nil if the host
// doesn't want the epoch cross-check; it is always used to stamp each
// captured frame with its birth epoch for the code-object registry.
func Walk(th *vm.Thread, gc *vm.GC, cfg Config) Result {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	var startEpoch uint64
	if gc != nil {
		startEpoch = gc.Epoch()
	}

	leaf := th.CurrentFrame()
	if leaf == nil {
		return Result{}
	}

	frames := make([]types.CapturedFrame, 0, maxDepth)
	f := leaf
	depth := int32(0)
	cycleBound := maxDepth * 2

	for f != nil {
		if depth >= maxDepth {
			return Result{Frames: frames, Truncated: true}
		}
		if depth >= cycleBound {
			// Chain never terminated within 2x max_stack_depth: treat
			// as corrupt rather than loop forever.
			return Result{Invalid: true}
		}

		code := f.Code()
		born := startEpoch
		if gc != nil {
			born = gc.Epoch()
		}
		frames = append(frames, types.CapturedFrame{
			Code:       code,
			InstrIndex: f.InstrIndex(),
			BornEpoch:  born,
		})

		f = f.Prev()
		depth++
	}

	if cfg.EpochCrossCheck && gc != nil && gc.Epoch() != startEpoch {
		return Result{Invalid: true}
	}

	var natives []uintptr
	var shallow bool
	if cfg.NativeFrames {
		natives = captureNative(cfg.NativeDepth)
		shallow = len(natives) < shallowNativeThreshold
	}

	return Result{Frames: frames, NativeIPs: natives, Truncated: false, ShallowNativeStack: shallow}
}
