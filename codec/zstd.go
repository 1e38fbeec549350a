package codec

import (
	"context"
	"io"

	"github.com/klauspost/compress/zstd"
)

func zstdCompress(_ context.Context, data []byte, opts Options) ([]byte, error) {
	o, _ := opts.(ZstdOptions)
	return encode("zstd", data, func(w io.Writer) (io.WriteCloser, error) {
		zopts := []zstd.EOption{
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(intValue(o.Level))),
		}
		if n := intValue(o.Concurrency); n > 0 {
			zopts = append(zopts, zstd.WithEncoderConcurrency(n))
		}
		return zstd.NewWriter(w, zopts...)
	})
}
