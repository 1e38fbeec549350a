package codec

import (
	"context"
	"io"

	"github.com/andybalholm/brotli"
)

func brotliCompress(_ context.Context, data []byte, opts Options) ([]byte, error) {
	o, _ := opts.(BrotliOptions)
	return encode("brotli", data, func(w io.Writer) (io.WriteCloser, error) {
		return brotli.NewWriterOptions(w, brotli.WriterOptions{
			Quality: intValue(o.Quality),
			LGWin:   intValue(o.LGWin),
		}), nil
	})
}
