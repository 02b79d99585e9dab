package profiler

import (
	"runtime"
	"sync"
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// estimatedCaptureNS is a conservative per-sample cost estimate for a
// CPU sampler capture (stack walk plus ring-buffer publish), used only
// to produce CPUStats.OverheadEstimate. It is a heuristic, not a
// measurement: actual cost varies with stack depth and backend.
const estimatedCaptureNS = 2000

// ringLen bounds the metrics ring size: enough history to compute a
// rate without holding every sample ever taken.
const ringLen = 256

// metrics keeps a small ring of recent runtime.MemStats snapshots so the
// profiler can report host memory/GC pressure alongside its own
// counters, independent of whatever the allocation sampler is tracking.
type metrics struct {
	mu    sync.Mutex
	snaps [ringLen]runtime.MemStats
	times [ringLen]time.Time
	next  int
	count int
}

func newMetrics() *metrics {
	return &metrics{}
}

// sample reads the current runtime.MemStats and appends it to the ring.
func (m *metrics) sample(now time.Time) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[m.next] = ms
	m.times[m.next] = now
	m.next = (m.next + 1) % ringLen
	if m.count < ringLen {
		m.count++
	}
}

// latest returns the most recently recorded snapshot, or the zero value
// and false if none has been taken yet.
func (m *metrics) latest() (runtime.MemStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return runtime.MemStats{}, false
	}
	idx := (m.next - 1 + ringLen) % ringLen
	return m.snaps[idx], true
}

// point is one named gauge value reported to statsd.
type point struct {
	metric string
	value  float64
}

// overheadEstimate produces a rough fraction of wall-clock time spent
// capturing, derived from the collected count and estimatedCaptureNS.
// It is exposed via CPUStats.OverheadEstimate, never used internally to
// gate behavior.
func overheadEstimate(collected uint64, durationNS int64) float64 {
	if durationNS <= 0 {
		return 0
	}
	return float64(collected) * estimatedCaptureNS / float64(durationNS)
}

// sessionPoints builds the statsd gauge points reported on every
// Stop/Snapshot call: internal telemetry for the profiler itself,
// shipped alongside the profile data.
func sessionPoints(collected, dropped, zombieRaces uint64, loadFactorPct float64) []point {
	return []point{
		{metric: "spprof.collected", value: float64(collected)},
		{metric: "spprof.dropped", value: float64(dropped)},
		{metric: "spprof.load_factor_pct", value: loadFactorPct},
		{metric: "spprof.zombie_races", value: float64(zombieRaces)},
	}
}

// reportPoints sends every point to client as a gauge; errors returned
// by the client are ignored.
func reportPoints(client statsd.ClientInterface, pts []point, tags []string) {
	if client == nil {
		return
	}
	for _, p := range pts {
		_ = client.Gauge(p.metric, p.value, tags, 1)
	}
}
