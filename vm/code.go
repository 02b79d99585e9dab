// Package vm is the managed runtime that profiler samples.
//
// A native profiler for an interpreted language typically walks the
// frame linked list belonging to whatever interpreter it's loaded
// into (CPython's PyFrameObject chain, for example). A standalone Go
// module has no such interpreter to reach into, so vm provides one: a
// small, embeddable frame stack per logical thread, content-addressed
// code descriptors, and a GC epoch counter that a host instruments the
// way an interpreter is instrumented via a trace hook or a JIT's frame
// callbacks.
//
// profiler/internal/stackwalk and profiler/internal/coderegistry walk
// and validate against vm the same way an equivalent profiler would
// walk and validate against a real interpreter's thread state.
package vm

import "sync/atomic"

// CodeObject is the Go analog of a CPython code object: an immutable
// descriptor of a callable, identified by pointer equality and reachable
// from any number of Frames. The GC (see gc.go) may reclaim a CodeObject
// once nothing references it and a full collection has passed.
type CodeObject struct {
	// Name is the fully qualified function name.
	Name string
	// File is the source filename.
	File string
	// Line is the first line of the function definition.
	Line int

	refs   atomic.Int64
	epoch  uint64 // epoch this code object was registered in
	hash   uint64 // content hash, computed once and cached
	hashed bool
}

// NewCodeObject builds a CodeObject. Host applications create exactly one
// per distinct function/closure and reuse it across calls.
func NewCodeObject(name, file string, line int) *CodeObject {
	return &CodeObject{Name: name, File: file, Line: line}
}

func (c *CodeObject) retain() int64 { return c.refs.Add(1) }
func (c *CodeObject) release() int64 { return c.refs.Add(-1) }
func (c *CodeObject) refcount() int64 { return c.refs.Load() }
