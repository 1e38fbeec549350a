package postbuild

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"

	"github.com/testlabtools/postbuild/codec"
	"github.com/testlabtools/postbuild/fake"
)

func newTestBuild(p *fake.Project, b *Bundle) *Build {
	return &Build{
		OutDirs:   p.OutDirs,
		PublicDir: p.PublicDir,
		Bundle:    b,
		Host:      HostInfo{Name: "test"},
	}
}

func algorithms(tokens ...string) []codec.Algorithm {
	var list []codec.Algorithm
	for _, token := range tokens {
		list = append(list, codec.MustDefine(token, nil))
	}
	return list
}

func names(files map[string][]byte) []string {
	var list []string
	for name := range files {
		list = append(list, name)
	}
	sort.Strings(list)
	return list
}

func decompress(t *testing.T, token string, data []byte) []byte {
	t.Helper()

	out, err := codec.Decompress(token, data)
	assert.NoError(t, err)
	return out
}

func TestCompressionThresholdAndExclude(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	p := fake.NewProject(t, l, 1, nil)
	main := fake.Text(5000)

	b := newTestBuild(p, NewBundle(
		&VirtualFile{Name: "main.js", Kind: KindChunk, Contents: main},
		&VirtualFile{Name: "style.css", Contents: fake.Text(50)},
		&VirtualFile{Name: "index.html", Contents: fake.Text(5000)},
	))
	b.Log = l

	c := NewCompression(CompressionOptions{
		Exclude:    []Pattern{MustPattern("*.html")},
		Threshold:  100,
		Algorithms: algorithms("gzip"),
		Logger:     l,
	})

	if !assert.NoError(Run(context.Background(), b, c)) {
		return
	}

	files := fake.Tree(t, p.OutDirs[0])
	assert.Equal([]string{"index.html", "main.js", "main.js.gz", "style.css"}, names(files))
	assert.Equal(main, files["main.js"])
	assert.Equal(main, decompress(t, "gzip", files["main.js.gz"]))
}

func TestCompressionDeleteOriginalWithTwoAlgorithms(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	p := fake.NewProject(t, l, 1, nil)
	content := fake.Text(5000)

	b := newTestBuild(p, NewBundle(
		&VirtualFile{Name: "file.js", Kind: KindChunk, Contents: content},
	))

	c := NewCompression(CompressionOptions{
		Algorithms:           algorithms("gzip", "brotliCompress"),
		DeleteOriginalAssets: true,
		Logger:               l,
	})

	if !assert.NoError(Run(context.Background(), b, c)) {
		return
	}

	files := fake.Tree(t, p.OutDirs[0])
	assert.Equal([]string{"file.js.br", "file.js.gz"}, names(files))
	assert.Equal(content, decompress(t, "gzip", files["file.js.gz"]))
	assert.Equal(content, decompress(t, "br", files["file.js.br"]))
}

func TestCompressionDefersDynamicImports(t *testing.T) {
	main := append([]byte("import('__BASE__lazy.js');\n"), fake.Text(3000)...)
	lazy := append([]byte("export const base = '__BASE__';\n"), fake.Text(3000)...)
	vendor := fake.Text(3000)

	bundle := func() *Bundle {
		return NewBundle(
			&VirtualFile{Name: "main.js", Kind: KindChunk, Contents: main, DynamicImports: []string{"lazy.js"}},
			&VirtualFile{Name: "lazy.js", Kind: KindChunk, Contents: lazy},
			&VirtualFile{Name: "vendor.js", Kind: KindChunk, Contents: vendor},
		)
	}
	render := func(f *VirtualFile) []byte {
		return bytes.ReplaceAll(f.Contents, []byte("__BASE__"), []byte("/static/"))
	}

	l := slogt.New(t)
	assert := assert.New(t)

	plain := fake.NewProject(t, l, 1, nil)
	pb := newTestBuild(plain, bundle())
	pb.Render = render
	if !assert.NoError(Run(context.Background(), pb)) {
		return
	}
	expected := fake.Tree(t, plain.OutDirs[0])

	p := fake.NewProject(t, l, 1, nil)
	b := newTestBuild(p, bundle())
	b.Render = render

	c := NewCompression(CompressionOptions{
		Algorithms:           algorithms("gzip"),
		DeleteOriginalAssets: true,
		Logger:               l,
	})
	if !assert.NoError(Run(context.Background(), b, c)) {
		return
	}

	files := fake.Tree(t, p.OutDirs[0])
	assert.Equal([]string{"lazy.js.gz", "main.js.gz", "vendor.js.gz"}, names(files))

	gzip := codec.MustDefine("gzip", nil)
	for _, name := range []string{"main.js", "lazy.js"} {
		want, err := gzip.Compress(context.Background(), expected[name])
		if !assert.NoError(err) {
			return
		}
		assert.Equal(want, files[name+".gz"], name)
		assert.True(c.Result().Deferred(name))
	}
	assert.Equal(vendor, decompress(t, "gzip", files["vendor.js.gz"]))
	assert.False(c.Result().Deferred("vendor.js"))
}

func TestCompressionMultipleOutDirs(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	data := fake.Text(2000)
	p := fake.NewProject(t, l, 3, map[string][]byte{
		"data/config.json": data,
		"logo.png":         fake.Noise(2000, 1),
	})

	b := newTestBuild(p, NewBundle(
		&VirtualFile{Name: "main.js", Kind: KindChunk, Contents: fake.Text(4000)},
	))

	c := NewCompression(CompressionOptions{
		Algorithms: algorithms("gzip", "zstd"),
		Logger:     l,
	})
	if !assert.NoError(Run(context.Background(), b, c)) {
		return
	}

	for _, dir := range p.OutDirs {
		files := fake.Tree(t, dir)
		assert.Equal([]string{
			"data/config.json",
			"data/config.json.gz",
			"data/config.json.zst",
			"logo.png",
			"main.js",
			"main.js.gz",
			"main.js.zst",
		}, names(files), dir)
		assert.Equal(data, decompress(t, "zstd", files["data/config.json.zst"]))
	}

	assert.Equal([]string{
		"data/config.json",
		"data/config.json.gz",
		"data/config.json.zst",
		"logo.png",
	}, c.Result().Outputs())
}

func TestCompressionSkipIfLargerOrEqual(t *testing.T) {
	var tests = []struct {
		name     string
		skip     *bool
		expected []string
	}{
		{
			name:     "default skips",
			expected: []string{"blob.js", "text.js", "text.js.gz"},
		},
		{
			name:     "disabled keeps every output",
			skip:     new(bool),
			expected: []string{"blob.js", "blob.js.gz", "text.js", "text.js.gz"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := slogt.New(t)
			assert := assert.New(t)

			p := fake.NewProject(t, l, 1, nil)
			b := newTestBuild(p, NewBundle(
				&VirtualFile{Name: "blob.js", Kind: KindChunk, Contents: fake.Noise(5000, 7)},
				&VirtualFile{Name: "text.js", Kind: KindChunk, Contents: fake.Text(5000)},
			))

			c := NewCompression(CompressionOptions{
				Algorithms:           algorithms("gzip"),
				DeleteOriginalAssets: false,
				SkipIfLargerOrEqual:  tt.skip,
				Logger:               l,
			})
			if !assert.NoError(Run(context.Background(), b, c)) {
				return
			}

			assert.Equal(tt.expected, names(fake.Tree(t, p.OutDirs[0])))
		})
	}
}

func TestCompressionSkippedOutputKeepsOriginal(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	noise := fake.Noise(3000, 3)
	p := fake.NewProject(t, l, 1, map[string][]byte{"noise.json": noise})
	b := newTestBuild(p, NewBundle(
		&VirtualFile{Name: "blob.js", Kind: KindChunk, Contents: fake.Noise(3000, 4)},
	))

	c := NewCompression(CompressionOptions{
		Algorithms:           algorithms("gzip"),
		DeleteOriginalAssets: true,
		Logger:               l,
	})
	if !assert.NoError(Run(context.Background(), b, c)) {
		return
	}

	files := fake.Tree(t, p.OutDirs[0])
	assert.Equal([]string{"blob.js", "noise.json"}, names(files))
	assert.Equal(noise, files["noise.json"])
}

func TestCompressionSameNameReplacesOriginal(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	static := fake.Text(3000)
	main := fake.Text(4000)
	p := fake.NewProject(t, l, 1, map[string][]byte{"static.js": static})
	b := newTestBuild(p, NewBundle(
		&VirtualFile{Name: "main.js", Kind: KindChunk, Contents: main},
	))

	c := NewCompression(CompressionOptions{
		Algorithms: algorithms("gzip"),
		Filename:   Template("[path][base]"),
		Logger:     l,
	})
	if !assert.NoError(Run(context.Background(), b, c)) {
		return
	}

	files := fake.Tree(t, p.OutDirs[0])
	assert.Equal([]string{"main.js", "static.js"}, names(files))
	assert.Equal(main, decompress(t, "gzip", files["main.js"]))
	assert.Equal(static, decompress(t, "gzip", files["static.js"]))
}

func TestCompressionCustomFilename(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	p := fake.NewProject(t, l, 1, nil)
	b := newTestBuild(p, NewBundle(
		&VirtualFile{Name: "assets/app.js", Kind: KindChunk, Contents: fake.Text(3000)},
	))

	c := NewCompression(CompressionOptions{
		Algorithms: algorithms("gzip", "br"),
		Filename: func(name string, meta Meta) string {
			return fmt.Sprintf("compressed/%s/[base]", meta.Algorithm)
		},
		Logger: l,
	})
	if !assert.NoError(Run(context.Background(), b, c)) {
		return
	}

	assert.Equal([]string{
		"assets/app.js",
		"compressed/brotliCompress/app.js",
		"compressed/gzip/app.js",
	}, names(fake.Tree(t, p.OutDirs[0])))
}

func TestCompressionAggregatesFileErrors(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	broken := codec.Custom("broken", func(_ context.Context, data []byte, _ codec.Options) ([]byte, error) {
		if bytes.HasPrefix(data, []byte("bad")) {
			return nil, errors.New("corrupt input")
		}
		return data[:1], nil
	}, nil)

	p := fake.NewProject(t, l, 1, nil)
	b := newTestBuild(p, NewBundle(
		&VirtualFile{Name: "bad.js", Kind: KindChunk, Contents: []byte("bad bytes")},
		&VirtualFile{Name: "good.js", Kind: KindChunk, Contents: []byte("good bytes")},
		&VirtualFile{Name: "worse.js", Kind: KindChunk, Contents: []byte("bad again")},
	))

	c := NewCompression(CompressionOptions{
		Algorithms: []codec.Algorithm{broken},
		Logger:     l,
	})
	err := Run(context.Background(), b, c)

	var agg *AggregateError
	if !assert.True(errors.As(err, &agg)) {
		return
	}
	if !assert.Len(agg.Errors, 2) {
		return
	}

	var fe *FileError
	assert.True(errors.As(agg.Errors[0], &fe))
	assert.Equal("bad.js", fe.Name)
	assert.ErrorContains(agg.Errors[1], "worse.js")

	detail := fmt.Sprintf("%+v", agg)
	assert.Contains(detail, "corrupt input")
	assert.Contains(detail, "compression.go")

	_, ok := b.Bundle.Get("good.js.gz")
	assert.True(ok)
}

func TestCompressionConfigErrors(t *testing.T) {
	var tests = []struct {
		name    string
		options CompressionOptions
	}{
		{
			name:    "negative threshold",
			options: CompressionOptions{Threshold: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := slogt.New(t)
			assert := assert.New(t)

			p := fake.NewProject(t, l, 1, nil)
			b := newTestBuild(p, NewBundle())

			err := Run(context.Background(), b, NewCompression(tt.options))

			var ce *ConfigError
			assert.True(errors.As(err, &ce))
		})
	}
}

func TestCompressionDefaultAlgorithms(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	p := fake.NewProject(t, l, 1, nil)
	b := newTestBuild(p, NewBundle(
		&VirtualFile{Name: "index.html", Contents: fake.Text(3000)},
		&VirtualFile{Name: "logo.png", Contents: fake.Text(3000)},
	))

	if !assert.NoError(Run(context.Background(), b, NewCompression(CompressionOptions{Logger: l}))) {
		return
	}

	assert.Equal([]string{"index.html", "index.html.br", "index.html.gz", "logo.png"}, names(fake.Tree(t, p.OutDirs[0])))
}

func TestCompressionStandaloneDiskPass(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	p := fake.NewProject(t, l, 1, map[string][]byte{
		"a.css":       fake.Text(1000),
		"nested/b.js": fake.Text(1000),
	})
	b := &Build{
		OutDirs:   []string{p.PublicDir},
		PublicDir: p.PublicDir,
		Bundle:    NewBundle(),
	}

	c := NewCompression(CompressionOptions{Algorithms: algorithms("gzip"), Logger: l})
	if !assert.NoError(Run(context.Background(), b, c)) {
		return
	}

	assert.Equal([]string{"a.css", "a.css.gz", "nested/b.js", "nested/b.js.gz"}, names(fake.Tree(t, p.PublicDir)))

	_, err := os.Stat(filepath.Join(p.PublicDir, "nested", "b.js.gz"))
	assert.NoError(err)
}

func TestCompressionRebuild(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	c := NewCompression(CompressionOptions{Algorithms: algorithms("gzip"), Logger: l})
	assert.Nil(c.Result())

	var tests = []struct {
		name     string
		bundle   *Bundle
		deferred []string
		expected []string
	}{
		{
			name: "with dynamic import",
			bundle: NewBundle(
				&VirtualFile{Name: "main.js", Kind: KindChunk, Contents: fake.Text(3000), DynamicImports: []string{"lazy.js"}},
				&VirtualFile{Name: "lazy.js", Kind: KindChunk, Contents: fake.Text(2000)},
			),
			deferred: []string{"lazy.js", "main.js"},
			expected: []string{"config.json", "config.json.gz", "lazy.js", "lazy.js.gz", "main.js", "main.js.gz"},
		},
		{
			name: "without dynamic import",
			bundle: NewBundle(
				&VirtualFile{Name: "main.js", Kind: KindChunk, Contents: fake.Text(3000)},
			),
			deferred: []string{},
			expected: []string{"config.json", "config.json.gz", "main.js", "main.js.gz"},
		},
		{
			name: "same bundle again",
			bundle: NewBundle(
				&VirtualFile{Name: "main.js", Kind: KindChunk, Contents: fake.Text(3000)},
			),
			deferred: []string{},
			expected: []string{"config.json", "config.json.gz", "main.js", "main.js.gz"},
		},
	}

	var prev *CompressionResult
	for _, tt := range tests {
		p := fake.NewProject(t, l, 1, map[string][]byte{"config.json": fake.Text(1000)})
		b := newTestBuild(p, tt.bundle)
		b.Log = l

		if !assert.NoError(Run(context.Background(), b, c), tt.name) {
			return
		}

		r := c.Result()
		if !assert.NotNil(r, tt.name) {
			return
		}
		assert.NotSame(prev, r, tt.name)
		prev = r

		assert.NoError(r.Wait(context.Background()), tt.name)
		assert.Equal(tt.deferred, r.DeferredNames(), tt.name)
		assert.Equal(tt.expected, names(fake.Tree(t, p.OutDirs[0])), tt.name)
	}
}

func TestCompressionConcurrentBuilds(t *testing.T) {
	l := slogt.New(t)
	assert := assert.New(t)

	c := NewCompression(CompressionOptions{Algorithms: algorithms("gzip"), Logger: l})

	var (
		projects = make([]*fake.Project, 4)
		builds   = make([]*Build, 4)
		errs     = make([]error, 4)
	)
	for i := range builds {
		projects[i] = fake.NewProject(t, l, 1, map[string][]byte{"config.json": fake.Text(1000)})
		builds[i] = newTestBuild(projects[i], NewBundle(
			&VirtualFile{Name: "main.js", Kind: KindChunk, Contents: fake.Text(3000), DynamicImports: []string{"lazy.js"}},
			&VirtualFile{Name: "lazy.js", Kind: KindChunk, Contents: fake.Text(2000)},
		))
	}

	done := make(chan int)
	for i := range builds {
		go func() {
			errs[i] = Run(context.Background(), builds[i], c)
			done <- i
		}()
	}
	for range builds {
		<-done
	}

	for i, p := range projects {
		assert.NoError(errs[i])
		assert.Equal([]string{"config.json", "config.json.gz", "lazy.js", "lazy.js.gz", "main.js", "main.js.gz"}, names(fake.Tree(t, p.OutDirs[0])))
	}
}
