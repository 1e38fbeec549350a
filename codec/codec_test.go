package codec

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sample() []byte {
	return bytes.Repeat([]byte("export const answer = 42;\n"), 200)
}

func TestDefineRoundTrip(t *testing.T) {
	var tests = []struct {
		token string
		name  string
		ext   string
	}{
		{token: "gzip", name: "gzip", ext: ".gz"},
		{token: "gz", name: "gzip", ext: ".gz"},
		{token: "deflate", name: "deflate", ext: ".gz"},
		{token: "deflateRaw", name: "deflateRaw", ext: ".gz"},
		{token: "brotliCompress", name: "brotliCompress", ext: ".br"},
		{token: "brotli", name: "brotliCompress", ext: ".br"},
		{token: "br", name: "brotliCompress", ext: ".br"},
		{token: "zstandard", name: "zstandard", ext: ".zst"},
		{token: "zstd", name: "zstandard", ext: ".zst"},
		{token: "lz4", name: "lz4", ext: ".lz4"},
	}
	var inputs = []struct {
		name string
		data []byte
	}{
		{name: "text", data: sample()},
		{name: "empty", data: []byte{}},
	}
	for _, tt := range tests {
		for _, in := range inputs {
			t.Run(tt.token+"/"+in.name, func(t *testing.T) {
				assert := assert.New(t)

				a, err := Define(tt.token, nil)
				if !assert.NoError(err) {
					return
				}
				assert.Equal(tt.name, a.Name)
				assert.Equal(tt.ext, a.Ext)

				out, err := a.Compress(context.Background(), in.data)
				if !assert.NoError(err) {
					return
				}
				if len(in.data) > 0 {
					assert.Less(len(out), len(in.data))
				}

				back, err := Decompress(tt.token, out)
				if !assert.NoError(err) {
					return
				}
				assert.Equal(in.data, back)
			})
		}
	}
}

func TestDefineUnsupported(t *testing.T) {
	assert := assert.New(t)

	_, err := Define("snappy", nil)
	assert.ErrorIs(err, ErrUnsupportedAlgorithm)
	assert.ErrorContains(err, "snappy")

	_, err = Decompress("snappy", nil)
	assert.ErrorIs(err, ErrUnsupportedAlgorithm)
}

func TestDefineMergesOptions(t *testing.T) {
	var tests = []struct {
		name     string
		token    string
		opts     Options
		expected Options
	}{
		{
			name:     "defaults",
			token:    "gzip",
			expected: ZlibOptions{Level: Int(9)},
		},
		{
			name:     "user level wins",
			token:    "gzip",
			opts:     ZlibOptions{Level: Int(1)},
			expected: ZlibOptions{Level: Int(1)},
		},
		{
			name:     "explicit zero level",
			token:    "gzip",
			opts:     ZlibOptions{Level: Int(0)},
			expected: ZlibOptions{Level: Int(0)},
		},
		{
			name:     "unset level",
			token:    "deflateRaw",
			opts:     ZlibOptions{},
			expected: ZlibOptions{Level: Int(9)},
		},
		{
			name:     "partial brotli",
			token:    "br",
			opts:     BrotliOptions{LGWin: Int(20)},
			expected: BrotliOptions{Quality: Int(11), LGWin: Int(20)},
		},
		{
			name:     "explicit zero quality",
			token:    "br",
			opts:     BrotliOptions{Quality: Int(0)},
			expected: BrotliOptions{Quality: Int(0)},
		},
		{
			name:     "partial zstd",
			token:    "zstd",
			opts:     ZstdOptions{Level: Int(3)},
			expected: ZstdOptions{Level: Int(3), Concurrency: Int(1)},
		},
		{
			name:     "explicit zero lz4 level",
			token:    "lz4",
			opts:     LZ4Options{Level: Int(0)},
			expected: LZ4Options{Level: Int(0)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert := assert.New(t)

			a, err := Define(tt.token, tt.opts)
			if !assert.NoError(err) {
				return
			}
			assert.Equal(tt.expected, a.Options)
		})
	}
}

func TestDefineKeepsDefaultsIntact(t *testing.T) {
	assert := assert.New(t)

	a := MustDefine("gzip", nil)
	*a.Options.(ZlibOptions).Level = 1

	b := MustDefine("gzip", nil)
	assert.Equal(ZlibOptions{Level: Int(9)}, b.Options)
}

func TestGzipLevelZeroStores(t *testing.T) {
	assert := assert.New(t)

	data := sample()
	out, err := MustDefine("gzip", ZlibOptions{Level: Int(0)}).Compress(context.Background(), data)
	if !assert.NoError(err) {
		return
	}
	assert.Greater(len(out), len(data))

	back, err := Decompress("gzip", out)
	if !assert.NoError(err) {
		return
	}
	assert.Equal(data, back)
}

func TestDefineRejectsForeignOptions(t *testing.T) {
	assert := assert.New(t)

	_, err := Define("gzip", BrotliOptions{Quality: Int(4)})
	assert.ErrorIs(err, ErrOptions)
}

func TestDefineIsRepeatable(t *testing.T) {
	assert := assert.New(t)

	a := MustDefine("gzip", nil)
	b := MustDefine("gzip", nil)

	data := sample()
	x, err := a.Compress(context.Background(), data)
	assert.NoError(err)
	y, err := b.Compress(context.Background(), data)
	assert.NoError(err)
	assert.Equal(x, y)
}

func TestCustom(t *testing.T) {
	assert := assert.New(t)

	var seen Options
	upper := func(_ context.Context, data []byte, opts Options) ([]byte, error) {
		seen = opts
		return bytes.ToUpper(data), nil
	}

	a := Custom("upper", upper, CustomOptions{"mode": "loud"})
	out, err := a.Compress(context.Background(), []byte("abc"))
	assert.NoError(err)
	assert.Equal([]byte("ABC"), out)
	assert.Equal(CustomOptions{"mode": "loud"}, seen)
	assert.Equal(".gz", a.Ext)
}

func TestCompressCanceled(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := MustDefine("gzip", nil).Compress(ctx, sample())
	assert.ErrorIs(err, context.Canceled)
}

func TestRegistryVersionGate(t *testing.T) {
	noop := func(_ context.Context, data []byte, _ Options) ([]byte, error) {
		return data, nil
	}
	r := NewRegistry(
		Builtin{Name: "fancy", Ext: ".f", Since: []string{"v22.15.0", "v23.8.0"}, Compress: noop},
		Builtin{Name: "missing", Ext: ".m"},
	)

	var tests = []struct {
		version string
		ok      bool
	}{
		{version: "", ok: true},
		{version: "devel", ok: true},
		{version: "v21.9.0", ok: false},
		{version: "v22.14.0", ok: false},
		{version: "v22.15.0", ok: true},
		{version: "v23.7.0", ok: false},
		{version: "v23.9.1", ok: true},
		{version: "v24.0.0", ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			assert := assert.New(t)

			a, err := r.Define("fancy", nil, tt.version)
			if tt.ok {
				assert.NoError(err)
				assert.Equal("fancy", a.Name)
				return
			}
			assert.ErrorIs(err, ErrUnavailable)
			assert.True(strings.Contains(err.Error(), "v22.15.0 or v23.8.0"))
		})
	}

	_, err := r.Ensure("missing", "")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRegistryNames(t *testing.T) {
	assert := assert.New(t)

	assert.Equal([]string{"brotliCompress", "deflate", "deflateRaw", "gzip", "lz4", "zstandard"}, Default.Names())
	assert.Equal("zstandard", Default.Canonical("zstd"))
	assert.Equal("gzip", Default.Canonical("gzip"))
}
