package profiler

import "github.com/Periecle/spprof/profiler/internal/compressio"

// newCompressionPipeline resolves a codec name into a compressio.Kind,
// the same mapping format.WithCompression expects, kept here so
// validation of a user-supplied codec name happens once at the
// control-surface boundary rather than inside every format call.
func newCompressionPipeline(name string) (compressio.Kind, error) {
	switch name {
	case "", "none":
		return compressio.None, nil
	case "gzip":
		return compressio.Gzip, nil
	case "klauspost-gzip":
		return compressio.KlauspostGzip, nil
	case "zstd":
		return compressio.Zstd, nil
	default:
		return compressio.None, &ConfigurationInvalid{Field: "compression", Reason: "unknown codec " + name}
	}
}
