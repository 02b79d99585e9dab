// Package types holds the data model shared across the sampling
// engine's subsystems, kept in its own package so ring, stackwalk,
// coderegistry, allocsampler, and drain can all depend on it without
// creating import cycles between each other.
package types

import "github.com/Periecle/spprof/vm"

// CapturedFrame is one entry of a RawSample's frame array: a reference to
// a code descriptor copied from a vm.Frame without dereferencing it, plus
// the instruction/line index it was executing. Dereferencing the code
// pointer is deferred to the drain path.
type CapturedFrame struct {
	Code       *vm.CodeObject
	InstrIndex int32
	// BornEpoch is the GC epoch in effect when this frame was captured,
	// recorded so the code-object registry can bound how stale a
	// dereference may be.
	BornEpoch uint64
}

// MaxStackDepth is the recommended hard ceiling on captured frames per
// RawSample.
const MaxStackDepth = 256

// RawSample is what a capture context writes into the ring buffer: a
// monotonic capture timestamp, the thread id, a leaf-first bounded array
// of captured frames, an optional native-frame instruction-pointer
// suffix, and a truncation flag.
type RawSample struct {
	TimestampNS int64
	ThreadID    vm.ThreadID
	Frames      []CapturedFrame
	NativeIPs   []uintptr
	Truncated   bool
}

// Frame is an immutable, fully resolved stack frame.
type Frame struct {
	FunctionName string
	FileName     string
	Line         int
	IsNative     bool

	// Native-only fields.
	IP         uintptr
	Symbol     string
	ObjectFile string
	Offset     int64
}

// ResolvedSample is the drain-side product of a RawSample: capture
// timestamp, thread id and (possibly unknown) name, and a leaf-first
// sequence of resolved Frames.
type ResolvedSample struct {
	TimestampNS int64
	ThreadID    vm.ThreadID
	ThreadName  string
	HasName     bool
	Frames      []Frame
}

// AggregatedStack pairs a stack (frames + thread identity) with a
// positive occurrence count, compressing identical stacks.
type AggregatedStack struct {
	Frames     []Frame
	ThreadID   vm.ThreadID
	ThreadName string
	HasName    bool
	Count      int64
}

// AllocationRecord is keyed by the returned heap address.
type AllocationRecord struct {
	Address       uintptr
	Size          int64
	Weight        int64
	BirthNS       int64
	StackID       uint64
	GCEpoch       uint64
	Sequence      uint64
	Freed         bool
	FreeNS        int64
}

// AllocationSample is a drained, symbolized AllocationRecord.
type AllocationSample struct {
	Address  uintptr
	Size     int64
	Weight   int64
	BirthNS  int64
	FreeNS   int64
	Freed    bool
	Lifetime int64
	Frames   []Frame
}
