package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Decompress reverses a built-in codec. Aliases are accepted.
func Decompress(token string, data []byte) ([]byte, error) {
	name := Default.Canonical(token)
	r := bytes.NewReader(data)

	var (
		zr  io.Reader
		err error
	)
	switch name {
	case "gzip":
		zr, err = gzip.NewReader(r)
	case "deflate":
		zr, err = zlib.NewReader(r)
	case "deflateRaw":
		zr = flate.NewReader(r)
	case "brotliCompress":
		zr = brotli.NewReader(r)
	case "zstandard":
		var d *zstd.Decoder
		d, err = zstd.NewReader(r)
		if err == nil {
			defer d.Close()
			zr = d
		}
	case "lz4":
		zr = lz4.NewReader(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s reader: %w", name, err)
	}

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s content: %w", name, err)
	}
	return out, nil
}
