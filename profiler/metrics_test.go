package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsLatestReflectsMostRecentSample(t *testing.T) {
	m := newMetrics()
	_, ok := m.latest()
	assert.False(t, ok)

	m.sample(time.Now())
	snap, ok := m.latest()
	require.True(t, ok)
	assert.NotNil(t, snap)
}

func TestMetricsRingWrapsWithoutGrowing(t *testing.T) {
	m := newMetrics()
	for i := 0; i < ringLen+10; i++ {
		m.sample(time.Now())
	}
	assert.Equal(t, ringLen, m.count)
}

func TestOverheadEstimateZeroDurationIsZero(t *testing.T) {
	assert.Equal(t, 0.0, overheadEstimate(1000, 0))
}

func TestOverheadEstimateScalesWithCollected(t *testing.T) {
	low := overheadEstimate(10, int64(time.Second))
	high := overheadEstimate(1000, int64(time.Second))
	assert.Less(t, low, high)
}

func TestSessionPointsIncludesAllCounters(t *testing.T) {
	pts := sessionPoints(10, 2, 1, 50.0)
	byMetric := map[string]float64{}
	for _, p := range pts {
		byMetric[p.metric] = p.value
	}
	assert.Equal(t, 10.0, byMetric["spprof.collected"])
	assert.Equal(t, 2.0, byMetric["spprof.dropped"])
	assert.Equal(t, 1.0, byMetric["spprof.zombie_races"])
	assert.Equal(t, 50.0, byMetric["spprof.load_factor_pct"])
}

func TestReportPointsNilClientIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		reportPoints(nil, sessionPoints(1, 1, 1, 1), nil)
	})
}
