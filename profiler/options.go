package profiler

import (
	"github.com/DataDog/datadog-go/v5/statsd"

	"github.com/Periecle/spprof/internal/log"
	"github.com/Periecle/spprof/profiler/internal/allocsampler"
	"github.com/Periecle/spprof/profiler/internal/sampler"
)

// config is the profiler's resolved configuration, built by applying
// every Option over defaultConfig's result.
type config struct {
	intervalMS    int
	maxStackDepth int32
	nativeFrames  bool
	backend       sampler.Backend
	ringCapacity  int

	rateBytes       int64
	shards          int
	heapMapCapacity int
	bloomBits       uint64

	logger log.Logger
	statsd statsd.ClientInterface
}

// defaultConfig mirrors sampler.DefaultConfig/allocsampler.DefaultConfig,
// plus a discard logger and a no-op statsd client so a Profiler built
// with no options never needs a nil check on either.
func defaultConfig() *config {
	sc := sampler.DefaultConfig()
	ac := allocsampler.DefaultConfig()
	return &config{
		intervalMS:      sc.IntervalMS,
		maxStackDepth:   sc.MaxStackDepth,
		nativeFrames:    sc.EnableNativeFrames,
		backend:         sc.Backend,
		ringCapacity:    sc.RingCapacity,
		rateBytes:       ac.RateBytes,
		shards:          ac.Shards,
		heapMapCapacity: ac.HeapMapCapacity,
		bloomBits:       ac.BloomBits,
		logger:          log.DiscardLogger{},
		statsd:          &statsd.NoOpClient{},
	}
}

// Option configures a Profiler at construction time.
type Option func(*config)

// WithInterval sets the CPU sampler's interval in milliseconds.
func WithInterval(ms int) Option {
	return func(c *config) { c.intervalMS = ms }
}

// WithMaxStackDepth caps how many frames the CPU sampler captures per
// sample.
func WithMaxStackDepth(depth int32) Option {
	return func(c *config) { c.maxStackDepth = depth }
}

// WithNativeFrames enables capturing a native instruction-pointer
// suffix on CPU samples, resolved at drain time.
func WithNativeFrames(enabled bool) Option {
	return func(c *config) { c.nativeFrames = enabled }
}

// WithBackend selects which of the three CPU sampler backends to use.
func WithBackend(b sampler.Backend) Option {
	return func(c *config) { c.backend = b }
}

// WithRingCapacity overrides the CPU sampler's ring buffer capacity.
func WithRingCapacity(n int) Option {
	return func(c *config) { c.ringCapacity = n }
}

// WithSamplingRateBytes sets the allocation sampler's mean sampling
// interval in bytes.
func WithSamplingRateBytes(n int64) Option {
	return func(c *config) { c.rateBytes = n }
}

// WithAllocShards sets the allocation sampler's Poisson-decision shard
// count.
func WithAllocShards(n int) Option {
	return func(c *config) { c.shards = n }
}

// WithHeapMapCapacity overrides the allocation sampler's live-address
// table capacity.
func WithHeapMapCapacity(n int) Option {
	return func(c *config) { c.heapMapCapacity = n }
}

// WithBloomBits overrides the allocation sampler's free-path
// short-circuit filter size.
func WithBloomBits(n uint64) Option {
	return func(c *config) { c.bloomBits = n }
}

// WithLogger installs l as this Profiler's logger, used in place of the
// package-level log functions so multiple Profilers in one process don't
// fight over a shared global logger.
func WithLogger(l log.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStatsd installs a statsd client the Profiler reports session
// gauges to on every Stop/Snapshot.
func WithStatsd(client statsd.ClientInterface) Option {
	return func(c *config) {
		if client != nil {
			c.statsd = client
		}
	}
}
