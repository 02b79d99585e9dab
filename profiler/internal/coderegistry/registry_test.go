package coderegistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Periecle/spprof/vm"
)

func TestRetainAndReleaseAll(t *testing.T) {
	gc := vm.NewGC()
	r := New(gc)
	code := vm.NewCodeObject("f", "f.go", 1)

	r.Retain(code)
	r.Retain(code)
	assert.Equal(t, 1, r.StrongCount())

	r.ReleaseAll()
	assert.Equal(t, 0, r.StrongCount())
}

func TestValidateWithinGraceWindow(t *testing.T) {
	gc := vm.NewGC()
	r := New(gc)
	code := vm.NewCodeObject("f", "f.go", 1)

	born := gc.Epoch()
	assert.True(t, r.Validate(code, born))

	gc.Collect()
	assert.True(t, r.Validate(code, born)) // one collection of grace
}

func TestValidateStaleAfterTwoCollections(t *testing.T) {
	gc := vm.NewGC()
	r := New(gc)
	code := vm.NewCodeObject("f", "f.go", 1)

	born := gc.Epoch()
	gc.Collect()
	gc.Collect()

	assert.False(t, r.Validate(code, born))
	assert.Equal(t, uint64(1), r.StaleCount())
}

func TestValidateShadowTableKeepsAliveAcrossEpochs(t *testing.T) {
	gc := vm.NewGC()
	r := New(gc)
	code := vm.NewCodeObject("f", "f.go", 1)

	r.SnapshotAlive(code)
	gc.Collect()
	gc.Collect()
	gc.Collect()

	require.True(t, r.Validate(code, gc.Epoch()-3))
}

func TestValidateDoubleValidationIdempotent(t *testing.T) {
	gc := vm.NewGC()
	r := New(gc)
	code := vm.NewCodeObject("f", "f.go", 1)
	born := gc.Epoch()

	assert.True(t, r.Validate(code, born))
	assert.True(t, r.Validate(code, born))
	assert.Equal(t, uint64(2), r.ValidatedCount())
}

func TestValidateNilCode(t *testing.T) {
	gc := vm.NewGC()
	r := New(gc)
	assert.False(t, r.Validate(nil, 0))
}

func TestRetainNilIsNoop(t *testing.T) {
	gc := vm.NewGC()
	r := New(gc)
	r.Retain(nil)
	assert.Equal(t, 0, r.StrongCount())
}
