package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Periecle/spprof/profiler/internal/types"
)

func TestNewRoundsUpToPowerOfTwo(t *testing.T) {
	b := New(10)
	assert.Equal(t, 16, b.Capacity())

	b = New(0)
	assert.Equal(t, DefaultCapacity, b.Capacity())
}

func TestPublishConsumeOrder(t *testing.T) {
	b := New(8)
	for i := 0; i < 5; i++ {
		ok := b.Publish(types.RawSample{TimestampNS: int64(i)})
		require.True(t, ok)
	}

	for i := 0; i < 5; i++ {
		s, ok := b.Consume()
		require.True(t, ok)
		assert.Equal(t, int64(i), s.TimestampNS)
	}

	_, ok := b.Consume()
	assert.False(t, ok)
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New(4)
	for i := 0; i < 4; i++ {
		require.True(t, b.Publish(types.RawSample{TimestampNS: int64(i)}))
	}
	assert.False(t, b.Publish(types.RawSample{TimestampNS: 99}))
	assert.Equal(t, uint64(1), b.DropsFull())

	// The dropped publish must not have corrupted ordering of what's
	// already queued.
	s, ok := b.Consume()
	require.True(t, ok)
	assert.Equal(t, int64(0), s.TimestampNS)
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	b := New(1 << 12)
	const producers = 8
	const perProducer = 500

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				for !b.Publish(types.RawSample{TimestampNS: int64(p*perProducer + i)}) {
				}
			}
		}(p)
	}
	wg.Wait()

	seen := 0
	for {
		_, ok := b.Consume()
		if !ok {
			break
		}
		seen++
	}
	assert.Equal(t, producers*perProducer, seen)
	assert.Equal(t, uint64(0), b.DropsFull())
}
