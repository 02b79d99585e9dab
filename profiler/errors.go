package profiler

import "fmt"

// LifecycleViolation is returned by the control surface when a call is
// made in a session state that doesn't allow it: starting an
// already-running session, or starting one that was already shut down.
// It is reported, never fatal to the host process.
type LifecycleViolation struct {
	Op     string
	Reason string
}

func (e *LifecycleViolation) Error() string {
	return fmt.Sprintf("profiler: lifecycle violation in %s: %s", e.Op, e.Reason)
}

// ConfigurationInvalid is returned when a control-surface call is given
// a parameter that fails validation before the session activates (e.g.
// interval_ms < 1, rate_bytes < 1024).
type ConfigurationInvalid struct {
	Field  string
	Reason string
}

func (e *ConfigurationInvalid) Error() string {
	return fmt.Sprintf("profiler: invalid configuration for %s: %s", e.Field, e.Reason)
}

// PlatformUnsupported is returned when the selected CPU sampler backend
// cannot be created on the current platform (e.g. BackendItimer
// requested on a GOOS with no SIGPROF/itimer support).
type PlatformUnsupported struct {
	Backend string
}

func (e *PlatformUnsupported) Error() string {
	return fmt.Sprintf("profiler: backend %s unsupported on this platform", e.Backend)
}

// CaptureDegraded counts capture-path failures that are absorbed rather
// than surfaced as errors: inconsistent walker state, a full ring
// buffer, a full heap map, an exhausted probe sequence, or an invalid
// sample weight. It is never returned from the control surface, and no
// control-surface call fills it in: CPUStats and MemStats report the
// corresponding counters in their own snapshot fields.
type CaptureDegraded struct {
	InvalidState uint64
	RingFull     uint64
	HeapMapFull  uint64
	NoThreadSeen uint64
}

// ResolutionDegraded counts drain-path symbolization that fell back to a
// sentinel name rather than a resolved one: a stale or unknown code
// descriptor, a symbol the native unwinder couldn't resolve, or a native
// unwind the platform refused. Never returned as an error, and no
// control-surface call fills it in.
type ResolutionDegraded struct {
	StaleFrames   uint64
	UnknownFrames uint64
}
