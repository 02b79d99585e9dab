package allocsampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPRNGDeterministicForSeed(t *testing.T) {
	a := newPRNG(42)
	b := newPRNG(42)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.next(), b.next())
	}
}

func TestPRNGZeroSeedDoesNotStick(t *testing.T) {
	p := newPRNG(0)
	first := p.next()
	second := p.next()
	assert.NotEqual(t, first, second)
}

func TestPRNGFloat64InUnitInterval(t *testing.T) {
	p := newPRNG(7)
	for i := 0; i < 1000; i++ {
		f := p.float64()
		assert.GreaterOrEqual(t, f, 0.0)
		assert.Less(t, f, 1.0)
	}
}

func TestDeciderEventuallySamples(t *testing.T) {
	d := newDecider(1, 1024)
	sampled := false
	for i := 0; i < 100000 && !sampled; i++ {
		var w int64
		sampled, w = d.shouldSample(64)
		if sampled {
			assert.GreaterOrEqual(t, w, int64(1024))
		}
	}
	assert.True(t, sampled, "expected at least one sample within 100000 allocations")
}

func TestDeciderLargeAllocationAlwaysSamples(t *testing.T) {
	d := newDecider(2, 1024)
	sampled, weight := d.shouldSample(10 * 1024 * 1024)
	assert.True(t, sampled)
	assert.Equal(t, int64(10*1024*1024), weight)
}

func TestDeciderWeightIsUnbiasedEstimator(t *testing.T) {
	d := newDecider(3, 4096)
	_, weight := d.shouldSample(4 * 1024 * 1024)
	assert.GreaterOrEqual(t, weight, int64(4096))
}

func TestShardedDeciderDistributesAcrossShards(t *testing.T) {
	s := newShardedDecider(4, 1024)
	assert.Len(t, s.shards, 4)
	// Different shard keys must not panic and must route modulo shard count.
	for k := uint64(0); k < 10; k++ {
		s.shouldSample(k, 16)
	}
}

func TestShardedDeciderZeroShardCountDefaultsToOne(t *testing.T) {
	s := newShardedDecider(0, 1024)
	assert.Len(t, s.shards, 1)
}
