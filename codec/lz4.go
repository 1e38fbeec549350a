package codec

import (
	"context"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

var lz4Levels = []lz4.CompressionLevel{
	lz4.Fast,
	lz4.Level1,
	lz4.Level2,
	lz4.Level3,
	lz4.Level4,
	lz4.Level5,
	lz4.Level6,
	lz4.Level7,
	lz4.Level8,
	lz4.Level9,
}

func lz4Compress(_ context.Context, data []byte, opts Options) ([]byte, error) {
	o, _ := opts.(LZ4Options)
	level := min(max(intValue(o.Level), 0), len(lz4Levels)-1)

	return encode("lz4", data, func(w io.Writer) (io.WriteCloser, error) {
		zw := lz4.NewWriter(w)
		if err := zw.Apply(lz4.CompressionLevelOption(lz4Levels[level])); err != nil {
			return nil, fmt.Errorf("failed to set level %d: %w", level, err)
		}
		return zw, nil
	})
}
