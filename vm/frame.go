package vm

import "sync/atomic"

// Frame is one entry of a thread's call stack: an atomic pointer to the
// CodeObject it's executing, the index of the currently executing
// instruction (used by the walker as the "line" for that frame), and an
// atomic pointer to the frame below it.
//
// Frame uses plain sync/atomic rather than a third-party wrapper
// deliberately: this struct plays the role of interpreter-internal state
// (the Go analog of PyFrameObject), not application code, and the
// capture path that reads it must work from an async-signal handler
// where no library call outside a small audited allowlist is permitted.
// That's the same reasoning CPython and the Go runtime itself apply to
// their own frame/goroutine structures.
type Frame struct {
	code     atomic.Pointer[CodeObject]
	instrIdx atomic.Int32
	prev     atomic.Pointer[Frame]
}

// Code returns the frame's code object using an acquire-ordered load,
// safe to call concurrently with the owning thread advancing the frame.
func (f *Frame) Code() *CodeObject {
	if f == nil {
		return nil
	}
	return f.code.Load()
}

// InstrIndex returns the currently executing instruction/line index.
func (f *Frame) InstrIndex() int32 {
	if f == nil {
		return 0
	}
	return f.instrIdx.Load()
}

// Prev returns the caller's frame, or nil at the bottom of the stack.
func (f *Frame) Prev() *Frame {
	if f == nil {
		return nil
	}
	return f.prev.Load()
}

// SetInstrIndex updates the currently executing instruction/line index.
// Called by the host as execution proceeds within the frame; safe to
// call only from the frame's owning thread.
func (f *Frame) SetInstrIndex(idx int32) {
	f.instrIdx.Store(idx)
}

// framePool is a per-thread free list of Frame structs, so Enter/Exit do
// not allocate on the steady-state path: growing the frame stack itself
// under the allocation sampler's own hook would recurse, the same
// cyclic-dependency hazard the allocator hooks themselves have to avoid.
type framePool struct {
	free []*Frame
}

func (p *framePool) get() *Frame {
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		return f
	}
	return &Frame{}
}

func (p *framePool) put(f *Frame) {
	f.code.Store(nil)
	f.instrIdx.Store(0)
	f.prev.Store(nil)
	p.free = append(p.free, f)
}

// ActiveFrame is a handle returned by (*Thread).Enter; calling Exit pops
// the frame and returns it to the thread's pool.
type ActiveFrame struct {
	thread *Thread
	frame  *Frame
}

// Exit pops this frame from the thread's stack. Must be called exactly
// once, by the thread that pushed it (typically via defer).
func (a *ActiveFrame) Exit() {
	a.thread.exit(a.frame)
}

// SetInstrIndex updates the line/instruction index recorded for this
// still-active frame.
func (a *ActiveFrame) SetInstrIndex(idx int32) {
	a.frame.SetInstrIndex(idx)
}
