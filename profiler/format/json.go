package format

import (
	"encoding/json"
	"sort"

	"github.com/Periecle/spprof/profiler/internal/compressio"
)

// SchemaURL is the fixed $schema value embedded in every JSON document.
const SchemaURL = "https://spprof.dev/schema/flamegraph/v1"

// jsonFrame mirrors shared.frames' {name, file, line} shape.
type jsonFrame struct {
	Name string `json:"name"`
	File string `json:"file"`
	Line int    `json:"line"`
}

// jsonThreadProfile mirrors one entry of the top-level profiles array.
type jsonThreadProfile struct {
	Type       string  `json:"type"`
	Name       string  `json:"name"`
	Unit       string  `json:"unit"`
	StartValue int64   `json:"startValue"`
	EndValue   int64   `json:"endValue"`
	Samples    [][]int `json:"samples"`
	Weights    []int64 `json:"weights"`
}

// jsonDocument is the full nested flame-graph document, field names
// matching the wire schema key-for-key.
type jsonDocument struct {
	Schema   string              `json:"$schema"`
	Version  string              `json:"version"`
	Shared   jsonShared          `json:"shared"`
	Profiles []jsonThreadProfile `json:"profiles"`
	Name     string              `json:"name"`
	Exporter string              `json:"exporter"`
}

type jsonShared struct {
	Frames []jsonFrame `json:"frames"`
}

// Version is the exporter version string embedded in JSON output and
// the "spprof <version>" exporter field.
const Version = "0.1.0"

// frameTable deduplicates Frames into a single shared.frames array,
// returning the array plus a lookup from frame identity to index.
type frameTable struct {
	frames []jsonFrame
	index  map[Frame]int
}

func newFrameTable() *frameTable {
	return &frameTable{index: make(map[Frame]int)}
}

func (t *frameTable) id(f Frame) int {
	if idx, ok := t.index[f]; ok {
		return idx
	}
	idx := len(t.frames)
	t.frames = append(t.frames, jsonFrame{Name: f.FunctionName, File: f.FileName, Line: f.Line})
	t.index[f] = idx
	return idx
}

// Option configures JSON/Collapsed serialization.
type Option func(*options)

type options struct {
	compression compressio.Kind
}

// WithCompression wraps the serialized document with the given codec
// before returning it. Use compressio.None (the default) for
// uncompressed output.
func WithCompression(kind compressio.Kind) Option {
	return func(o *options) { o.compression = kind }
}

func applyOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// JSON serializes p into the nested flame-graph document.
func JSON(p Profile, opts ...Option) ([]byte, error) {
	o := applyOptions(opts)

	table := newFrameTable()
	byThread := p.byThread()

	threadNames := make([]string, 0, len(byThread))
	for name := range byThread {
		threadNames = append(threadNames, name)
	}
	sort.Strings(threadNames)

	doc := jsonDocument{
		Schema:   SchemaURL,
		Version:  Version,
		Name:     p.Name,
		Exporter: "spprof " + Version,
	}

	for _, name := range threadNames {
		stacks := byThread[name]
		tp := jsonThreadProfile{
			Type:       "sampled",
			Name:       name,
			Unit:       p.Unit,
			StartValue: p.StartValue,
			EndValue:   p.EndValue,
			Samples:    make([][]int, 0, len(stacks)),
			Weights:    make([]int64, 0, len(stacks)),
		}
		for _, s := range stacks {
			rootLeaf := reversed(s.Frames)
			ids := make([]int, len(rootLeaf))
			for i, f := range rootLeaf {
				ids[i] = table.id(f)
			}
			tp.Samples = append(tp.Samples, ids)
			tp.Weights = append(tp.Weights, s.Weight)
		}
		doc.Profiles = append(doc.Profiles, tp)
	}
	doc.Shared.Frames = table.frames

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return compressio.Compress(o.compression, data)
}

// ParseJSON decodes a document previously produced by JSON back into a
// Profile, the inverse of JSON. Distinct threads become distinct
// Profile.Stacks groups; thread-level
// StartValue/EndValue/Unit collapse onto the single returned Profile
// (every per-thread profile in one session shares them).
func ParseJSON(data []byte, compression compressio.Kind) (Profile, error) {
	raw, err := compressio.Decompress(compression, data)
	if err != nil {
		return Profile{}, err
	}

	var doc jsonDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Profile{}, err
	}

	p := Profile{Name: doc.Name}
	for _, tp := range doc.Profiles {
		p.Unit = tp.Unit
		p.StartValue = tp.StartValue
		p.EndValue = tp.EndValue
		for i, sample := range tp.Samples {
			rootLeaf := make([]Frame, len(sample))
			for j, idx := range sample {
				jf := doc.Shared.Frames[idx]
				rootLeaf[j] = Frame{FunctionName: jf.Name, FileName: jf.File, Line: jf.Line}
			}
			p.Stacks = append(p.Stacks, Stack{
				ThreadName: tp.Name,
				Frames:     reversed(rootLeaf), // back to leaf-first
				Weight:     tp.Weights[i],
			})
		}
	}
	return p, nil
}
