package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Periecle/spprof/profiler/internal/compressio"
)

// TestCollapsedKnownStacks checks that three leaf-first samples
// [A,B,C], [A,B,C], [A,B,D] collapse to "C;B;A 2\nD;B;A 1\n".
func TestCollapsedKnownStacks(t *testing.T) {
	a := Frame{FunctionName: "A"}
	b := Frame{FunctionName: "B"}
	c := Frame{FunctionName: "C"}
	d := Frame{FunctionName: "D"}

	p := Profile{
		Stacks: []Stack{
			{ThreadName: "t", Weight: 1, Frames: []Frame{a, b, c}},
			{ThreadName: "t", Weight: 1, Frames: []Frame{a, b, c}},
			{ThreadName: "t", Weight: 1, Frames: []Frame{a, b, d}},
		},
	}

	data, err := Collapsed(p)
	require.NoError(t, err)
	assert.Equal(t, "C;B;A 2\nD;B;A 1\n", string(data))
}

func TestCollapsedRootLeafOrder(t *testing.T) {
	p := Profile{
		Stacks: []Stack{{
			ThreadName: "t",
			Weight:     1,
			Frames: []Frame{
				{FunctionName: "leaf", FileName: "a.go", Line: 3},
				{FunctionName: "root", FileName: "a.go", Line: 1},
			},
		}},
	}
	data, err := Collapsed(p)
	require.NoError(t, err)
	assert.Equal(t, "root (a.go:1);leaf (a.go:3) 1\n", string(data))
}

func TestCollapsedNativeFrameDisplay(t *testing.T) {
	p := Profile{
		Stacks: []Stack{{
			ThreadName: "t",
			Weight:     1,
			Frames:     []Frame{{FunctionName: "runtime.asmcgocall", IsNative: true}},
		}},
	}
	data, err := Collapsed(p)
	require.NoError(t, err)
	assert.Equal(t, "[native] runtime.asmcgocall 1\n", string(data))
}

func TestCollapsedRoundTrip(t *testing.T) {
	a := Frame{FunctionName: "A"}
	b := Frame{FunctionName: "B"}
	c := Frame{FunctionName: "C"}

	p := Profile{
		Stacks: []Stack{
			{ThreadName: "t", Weight: 2, Frames: []Frame{c, b, a}},
			{ThreadName: "t", Weight: 5, Frames: []Frame{c, b, a}},
		},
	}
	data, err := Collapsed(p)
	require.NoError(t, err)

	hist, err := ParseCollapsed(data, compressio.None)
	require.NoError(t, err)
	assert.Equal(t, int64(7), hist["A;B;C"])
}

func TestCollapsedLinesSortedLexicographically(t *testing.T) {
	p := Profile{
		Stacks: []Stack{
			{ThreadName: "t", Weight: 1, Frames: []Frame{{FunctionName: "z"}}},
			{ThreadName: "t", Weight: 1, Frames: []Frame{{FunctionName: "a"}}},
		},
	}
	data, err := Collapsed(p)
	require.NoError(t, err)
	assert.Equal(t, "a 1\nz 1\n", string(data))
}
