package allocsampler

import (
	"math"
	"sync"
)

// prng is a xorshift128+ generator, fast enough to call on every
// allocation. It is not safe for concurrent use; each shard of decider
// owns one behind its own mutex.
type prng struct {
	s0, s1 uint64
}

func newPRNG(seed uint64) *prng {
	if seed == 0 {
		seed = 0x9e3779b97f4a7c15
	}
	// splitmix64 to spread a possibly-weak seed across both words.
	z := seed
	next := func() uint64 {
		z += 0x9e3779b97f4a7c15
		x := z
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		return x ^ (x >> 31)
	}
	return &prng{s0: next(), s1: next()}
}

func (p *prng) next() uint64 {
	x := p.s0
	y := p.s1
	p.s0 = y
	x ^= x << 23
	x ^= x >> 17
	x ^= y ^ (y >> 26)
	p.s1 = x
	return x + y
}

// float64 returns a uniform value in [0, 1).
func (p *prng) float64() float64 {
	return float64(p.next()>>11) / (1 << 53)
}

// exponential draws from an exponential distribution with the given
// mean, used to refill bytes_until_next_sample after a sampled
// allocation.
func (p *prng) exponential(mean float64) int64 {
	u := p.float64()
	for u == 0 {
		u = p.float64()
	}
	return int64(-mean * math.Log(u))
}

// DefaultSamplingRateBytes is the default mean sampling interval.
const DefaultSamplingRateBytes = 512 * 1024

// decider implements the Poisson-process-over-bytes sampling decision
// for one shard: if the allocation's size s >= bytesUntilNext, the
// allocation is sampled and bytesUntilNext is refilled by drawing from
// Exp(mean=rateBytes); otherwise s is subtracted from bytesUntilNext.
type decider struct {
	mu             sync.Mutex
	rng            *prng
	rateBytes      int64
	bytesUntilNext int64
}

func newDecider(seed uint64, rateBytes int64) *decider {
	d := &decider{rng: newPRNG(seed), rateBytes: rateBytes}
	d.bytesUntilNext = d.rng.exponential(float64(rateBytes))
	return d
}

// shouldSample reports whether an allocation of size bytes should be
// recorded, and returns the sample weight to assign it if so:
// max(size, sampling_rate_bytes).
func (d *decider) shouldSample(size int64) (sampled bool, weight int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if size >= d.bytesUntilNext {
		d.bytesUntilNext = d.rng.exponential(float64(d.rateBytes))
		w := size
		if d.rateBytes > w {
			w = d.rateBytes
		}
		return true, w
	}
	d.bytesUntilNext -= size
	return false, 0
}

// shardedDecider spreads per-thread bytes_until_next_sample counters
// across a fixed number of shards, so independent goroutines making
// concurrent allocations don't serialize on one counter. A caller picks
// its shard with a stable key (e.g. a vm.ThreadID), giving effectively
// per-thread counters without requiring Go goroutine-local storage,
// which doesn't exist.
type shardedDecider struct {
	shards []*decider
}

func newShardedDecider(shardCount int, rateBytes int64) *shardedDecider {
	if shardCount <= 0 {
		shardCount = 1
	}
	shards := make([]*decider, shardCount)
	for i := range shards {
		shards[i] = newDecider(uint64(i+1)*0x2545f4914f6cdd1d, rateBytes)
	}
	return &shardedDecider{shards: shards}
}

func (s *shardedDecider) shouldSample(shardKey uint64, size int64) (bool, int64) {
	idx := shardKey % uint64(len(s.shards))
	return s.shards[idx].shouldSample(size)
}
