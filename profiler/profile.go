package profiler

import (
	"strconv"
	"time"

	"github.com/Periecle/spprof/profiler/format"
	"github.com/Periecle/spprof/profiler/internal/types"
)

// Profile is a drained, not-yet-aggregated CPU profiling result: every
// resolved sample collected between StartNS and EndNS.
type Profile struct {
	Samples []types.ResolvedSample
	StartNS int64
	EndNS   int64
}

// TotalDuration returns the wall-clock span the profile covers.
func (p Profile) TotalDuration() time.Duration {
	if p.EndNS <= p.StartNS {
		return 0
	}
	return time.Duration(p.EndNS - p.StartNS)
}

// EffectiveRateHz returns the observed sampling rate: samples collected
// divided by the profile's wall-clock duration.
func (p Profile) EffectiveRateHz() float64 {
	d := p.TotalDuration()
	if d <= 0 {
		return 0
	}
	return float64(len(p.Samples)) / d.Seconds()
}

// stackKey identifies a unique (thread, frame sequence) combination for
// aggregation purposes.
type stackKey struct {
	threadName string
	hasName    bool
	frames     string
}

func keyOf(s types.ResolvedSample) stackKey {
	var b []byte
	for _, f := range s.Frames {
		b = append(b, f.FunctionName...)
		b = append(b, '\x00')
		b = strconv.AppendInt(b, int64(f.Line), 10)
		b = append(b, '\x00')
	}
	return stackKey{threadName: s.ThreadName, hasName: s.HasName, frames: string(b)}
}

// Aggregate compresses Profile's samples into AggregatedStacks, summing
// occurrence counts for identical (thread, stack) pairs.
func (p Profile) Aggregate() AggregatedProfile {
	order := make([]stackKey, 0)
	byKey := make(map[stackKey]*types.AggregatedStack)

	for _, s := range p.Samples {
		k := keyOf(s)
		agg, ok := byKey[k]
		if !ok {
			agg = &types.AggregatedStack{
				Frames:     s.Frames,
				ThreadID:   s.ThreadID,
				ThreadName: s.ThreadName,
				HasName:    s.HasName,
			}
			byKey[k] = agg
			order = append(order, k)
		}
		agg.Count++
	}

	stacks := make([]types.AggregatedStack, 0, len(order))
	for _, k := range order {
		stacks = append(stacks, *byKey[k])
	}

	return AggregatedProfile{Stacks: stacks, TotalSamples: int64(len(p.Samples))}
}

// ToFormat converts p into the format package's wire-agnostic Profile,
// ready for format.JSON/format.Collapsed/format.Pprof.
func (p Profile) ToFormat(name, unit string) format.Profile {
	out := format.Profile{
		Name:       name,
		Unit:       unit,
		StartValue: p.StartNS,
		EndValue:   p.EndNS,
	}
	for _, s := range p.Samples {
		frames := make([]format.Frame, len(s.Frames))
		for i, f := range s.Frames {
			frames[i] = format.Frame{
				FunctionName: f.FunctionName,
				FileName:     f.FileName,
				Line:         f.Line,
				IsNative:     f.IsNative,
			}
		}
		out.Stacks = append(out.Stacks, format.Stack{
			ThreadName: s.ThreadName,
			Frames:     frames,
			Weight:     1,
		})
	}
	return out
}

// AggregatedProfile is the product of Profile.Aggregate: identical
// stacks compressed into one entry with a count (unique_stacks ≤
// samples always holds).
type AggregatedProfile struct {
	Stacks       []types.AggregatedStack
	TotalSamples int64
}

// CompressionRatio returns samples collected divided by unique stacks
// retained. A tight hot loop should see a ratio of 10x or more.
func (a AggregatedProfile) CompressionRatio() float64 {
	if len(a.Stacks) == 0 {
		return 0
	}
	return float64(a.TotalSamples) / float64(len(a.Stacks))
}

// MemoryReductionPct returns the percentage reduction in distinct stack
// storage aggregation achieves relative to keeping one entry per sample.
func (a AggregatedProfile) MemoryReductionPct() float64 {
	if a.TotalSamples == 0 {
		return 0
	}
	return (1 - float64(len(a.Stacks))/float64(a.TotalSamples)) * 100
}
