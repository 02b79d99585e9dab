package compressio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTripAllKinds(t *testing.T) {
	data := []byte(`{"hello":"world","n":12345}` + string(make([]byte, 256)))
	for _, k := range []Kind{None, Gzip, KlauspostGzip, Zstd} {
		t.Run(k.String(), func(t *testing.T) {
			compressed, err := Compress(k, data)
			require.NoError(t, err)

			decompressed, err := Decompress(k, compressed)
			require.NoError(t, err)
			assert.Equal(t, data, decompressed)
		})
	}
}

func TestGzipActuallyCompresses(t *testing.T) {
	data := make([]byte, 4096) // all zero bytes, highly compressible
	compressed, err := Compress(Gzip, data)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(data))
}

func TestUnknownKindErrors(t *testing.T) {
	_, err := Compress(Kind(99), []byte("x"))
	assert.Error(t, err)

	_, err = Decompress(Kind(99), []byte("x"))
	assert.Error(t, err)
}

func TestNoneIsPassthrough(t *testing.T) {
	data := []byte("unchanged")
	out, err := Compress(None, data)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}
