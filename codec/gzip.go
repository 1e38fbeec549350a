package codec

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

func gzipCompress(_ context.Context, data []byte, opts Options) ([]byte, error) {
	o, _ := opts.(ZlibOptions)
	return encode("gzip", data, func(w io.Writer) (io.WriteCloser, error) {
		return gzip.NewWriterLevel(w, intValue(o.Level))
	})
}

// deflateCompress writes a zlib stream.
func deflateCompress(_ context.Context, data []byte, opts Options) ([]byte, error) {
	o, _ := opts.(ZlibOptions)
	return encode("deflate", data, func(w io.Writer) (io.WriteCloser, error) {
		return zlib.NewWriterLevel(w, intValue(o.Level))
	})
}

func deflateRawCompress(_ context.Context, data []byte, opts Options) ([]byte, error) {
	o, _ := opts.(ZlibOptions)
	return encode("deflateRaw", data, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, intValue(o.Level))
	})
}

func encode(name string, data []byte, newWriter func(w io.Writer) (io.WriteCloser, error)) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) / 2)

	w, err := newWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s writer: %w", name, err)
	}

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write %s content: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", name, err)
	}

	return buf.Bytes(), nil
}
