package profiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Periecle/spprof/profiler/internal/compressio"
)

func TestNewCompressionPipelineKnownCodecs(t *testing.T) {
	cases := map[string]compressio.Kind{
		"":               compressio.None,
		"none":           compressio.None,
		"gzip":           compressio.Gzip,
		"klauspost-gzip": compressio.KlauspostGzip,
		"zstd":           compressio.Zstd,
	}
	for name, want := range cases {
		got, err := newCompressionPipeline(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestNewCompressionPipelineUnknownCodec(t *testing.T) {
	_, err := newCompressionPipeline("lz4")
	require.Error(t, err)
	var ci *ConfigurationInvalid
	assert.ErrorAs(t, err, &ci)
}
