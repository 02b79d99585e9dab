package format

import (
	"github.com/google/pprof/profile"
)

// Pprof converts p into a github.com/google/pprof/profile.Profile, a
// supplemental adapter for operators already consuming pprof-format
// profiles via `go tool pprof` or an APM backend's own profiling
// ingestion. It is additive and sits alongside JSON/Collapsed rather
// than replacing either.
func Pprof(p Profile, sampleType, sampleUnit string) *profile.Profile {
	funcs := map[string]*profile.Function{}
	locs := map[string]*profile.Location{}
	var nextFuncID, nextLocID uint64

	out := &profile.Profile{
		DurationNanos: p.EndValue - p.StartValue,
		SampleType: []*profile.ValueType{
			{Type: sampleType, Unit: sampleUnit},
		},
	}

	locFor := func(f Frame) *profile.Location {
		key := displayFrame(f)
		if loc, ok := locs[key]; ok {
			return loc
		}
		fn, ok := funcs[f.FunctionName]
		if !ok {
			nextFuncID++
			fn = &profile.Function{
				ID:       nextFuncID,
				Name:     f.FunctionName,
				Filename: f.FileName,
			}
			funcs[f.FunctionName] = fn
			out.Function = append(out.Function, fn)
		}
		nextLocID++
		loc := &profile.Location{
			ID: nextLocID,
			Line: []profile.Line{
				{Function: fn, Line: int64(f.Line)},
			},
		}
		locs[key] = loc
		out.Location = append(out.Location, loc)
		return loc
	}

	for _, s := range p.Stacks {
		// pprof's Sample.Location is leaf-first, matching this engine's
		// native stack order; no root-leaf reversal needed here.
		var locations []*profile.Location
		for _, f := range s.Frames {
			locations = append(locations, locFor(f))
		}
		out.Sample = append(out.Sample, &profile.Sample{
			Location: locations,
			Value:    []int64{s.Weight},
			Label:    map[string][]string{"thread": {s.ThreadName}},
		})
	}

	return out
}
