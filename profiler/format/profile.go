// Package format implements the two bit-exact output formats (nested
// flame-graph JSON and collapsed-stack text) plus a supplemental
// google/pprof-compatible adapter for operators already consuming
// pprof-format profiles.
package format

// Frame is one entry of a Stack, independent of profiler/internal/types
// so this package has no dependency on the sampling engine's internals —
// only on the data a drained profile actually needs to render.
type Frame struct {
	FunctionName string
	FileName     string
	Line         int
	IsNative     bool
}

// Stack is one occurrence group: a thread identity, a weighted sample
// count, and its frames in leaf-first order (matching how the rest of
// the engine represents stacks; root-leaf conversion happens at
// serialization time, once, per format).
type Stack struct {
	ThreadName string
	Frames     []Frame // leaf-first: Frames[0] is the innermost frame
	Weight     int64
}

// Profile is the serialization-ready input both output formats share.
type Profile struct {
	Name string
	// Unit is "nanoseconds" for CPU profiles, "bytes" for memory
	// profiles.
	Unit       string
	StartValue int64
	EndValue   int64
	Stacks     []Stack
}

// byThread groups a Profile's stacks by thread name, the unit JSON's
// per-thread profile objects serialize around.
func (p Profile) byThread() map[string][]Stack {
	out := make(map[string][]Stack)
	for _, s := range p.Stacks {
		out[s.ThreadName] = append(out[s.ThreadName], s)
	}
	return out
}

// reversed returns frames in root-leaf order, the order both output
// formats require, from the engine's native leaf-first order.
func reversed(frames []Frame) []Frame {
	out := make([]Frame, len(frames))
	for i, f := range frames {
		out[len(frames)-1-i] = f
	}
	return out
}
