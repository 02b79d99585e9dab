// Package compressio implements the output-compression pipeline: a
// selectable codec applied to serialized profile output, never to
// anything on disk (the module never touches a filesystem).
package compressio

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	kgzip "github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Kind selects a compression codec.
type Kind int

const (
	// None passes data through unchanged.
	None Kind = iota
	// Gzip uses the standard library's compress/gzip.
	Gzip
	// KlauspostGzip uses klauspost/compress's faster gzip implementation.
	KlauspostGzip
	// Zstd uses klauspost/compress/zstd.
	Zstd
)

// Compress encodes data with the given codec.
func Compress(kind Kind, data []byte) ([]byte, error) {
	switch kind {
	case None:
		return data, nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case KlauspostGzip:
		var buf bytes.Buffer
		w := kgzip.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case Zstd:
		w, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer w.Close()
		return w.EncodeAll(data, nil), nil
	default:
		return nil, fmt.Errorf("compressio: unknown kind %d", kind)
	}
}

// Decompress decodes data previously produced by Compress with the same
// kind.
func Decompress(kind Kind, data []byte) ([]byte, error) {
	switch kind {
	case None:
		return data, nil
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case KlauspostGzip:
		r, err := kgzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case Zstd:
		r, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("compressio: unknown kind %d", kind)
	}
}

// String returns the codec's display name.
func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case KlauspostGzip:
		return "klauspost-gzip"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}
