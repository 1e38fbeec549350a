package postbuild

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/testlabtools/postbuild/codec"
)

// CompressionCapability is the name the compression result is published
// under.
const CompressionCapability = "postbuild:compression"

// DefaultAlgorithms are used when CompressionOptions.Algorithms is empty.
var DefaultAlgorithms = []string{"gzip", "brotliCompress"}

type CompressionOptions struct {
	// Include defaults to DefaultInclude.
	Include []Pattern
	Exclude []Pattern
	// Threshold is the minimum size in bytes of a file to compress.
	Threshold int64
	// Algorithms run one after another on every file. Each produces its
	// own output.
	Algorithms []codec.Algorithm
	// Filename computes output names. If nil, the algorithm extension is
	// appended to the original name.
	Filename Rename
	// DeleteOriginalAssets removes a file once at least one compressed
	// output of it has been written.
	DeleteOriginalAssets bool
	// SkipIfLargerOrEqual drops outputs that are not smaller than their
	// input. Nil means true.
	SkipIfLargerOrEqual *bool
	// Concurrency limits the number of files compressed at once.
	Concurrency int
	Logger      *slog.Logger
}

// CompressionResult is published by Compression for cooperating plugins.
// It is complete once Done is closed.
type CompressionResult struct {
	mu       sync.Mutex
	outputs  map[string]struct{}
	deferred map[string]struct{}
	done     chan struct{}
	once     sync.Once
	err      error
}

func newCompressionResult() *CompressionResult {
	return &CompressionResult{
		outputs:  make(map[string]struct{}),
		deferred: make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

func (r *CompressionResult) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the disk pass has finished and returns its error.
func (r *CompressionResult) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Outputs returns the final names of every file handled by the disk pass,
// whether compressed or kept as is.
func (r *CompressionResult) Outputs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.outputs)
}

// Deferred reports whether name was left to the disk pass.
func (r *CompressionResult) Deferred(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.deferred[name]
	return ok
}

func (r *CompressionResult) DeferredNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return sortedKeys(r.deferred)
}

func (r *CompressionResult) addOutput(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outputs[name] = struct{}{}
}

func (r *CompressionResult) setDeferred(names map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name := range names {
		r.deferred[name] = struct{}{}
	}
}

// finish records the outcome of the disk pass. Only the first call counts.
func (r *CompressionResult) finish(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

type compressStat struct {
	name   string
	output string
	before int
	after  int
}

// compressionRun is the state of one build.
type compressionRun struct {
	result   *CompressionResult
	deferred map[string]struct{}

	mu    sync.Mutex
	stats []compressStat
}

func (r *compressionRun) record(name, out string, before, after int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stats = append(r.stats, compressStat{
		name:   name,
		output: out,
		before: before,
		after:  after,
	})
}

// takeStats returns the files compressed since the last call.
func (r *compressionRun) takeStats() []compressStat {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := r.stats
	r.stats = nil
	return stats
}

// Compression writes compressed copies of build outputs. Bundle entries are
// compressed in memory during the bundle pass. Static files and chunks
// involved in dynamic imports are compressed on disk once the build has
// been written.
//
// A Compression may serve many builds, one after another or at the same
// time. Each build gets its own CompressionResult.
type Compression struct {
	options CompressionOptions
	log     *slog.Logger
	filter  Filter
	skip    bool

	mu      sync.Mutex
	current *CompressionResult
}

func NewCompression(o CompressionOptions) *Compression {
	l := o.Logger
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	include := o.Include
	if include == nil {
		include = DefaultInclude
	}

	skip := true
	if o.SkipIfLargerOrEqual != nil {
		skip = *o.SkipIfLargerOrEqual
	}

	return &Compression{
		options: o,
		log:     l.With("plugin", "compression"),
		filter:  Filter{Include: include, Exclude: o.Exclude},
		skip:    skip,
	}
}

func (c *Compression) Name() string {
	return "compression"
}

// Result returns the capability published by the most recent Configure,
// or nil before the first build.
func (c *Compression) Result() *CompressionResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

func (c *Compression) run(b *Build) (*compressionRun, error) {
	v, ok := b.loadState(c)
	if !ok {
		return nil, fmt.Errorf("%s was not configured for this build", c.Name())
	}
	return v.(*compressionRun), nil
}

func (c *Compression) Configure(ctx context.Context, b *Build) error {
	if c.options.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative: %d", c.options.Threshold)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.options.Algorithms) == 0 {
		for _, token := range DefaultAlgorithms {
			a, err := codec.Default.Define(token, nil, b.Host.Version)
			if err != nil {
				return err
			}
			c.options.Algorithms = append(c.options.Algorithms, a)
		}
	}

	for _, a := range c.options.Algorithms {
		if a.IsCustom() {
			continue
		}
		if _, err := codec.Default.Ensure(a.Name, b.Host.Version); err != nil {
			return err
		}
	}

	c.log.Debug("configured",
		"algorithms", c.options.Algorithms,
		"threshold", c.options.Threshold,
		"deleteOriginal", c.options.DeleteOriginalAssets,
		"skipIfLargerOrEqual", c.skip,
	)

	r := &compressionRun{
		result:   newCompressionResult(),
		deferred: make(map[string]struct{}),
	}
	b.setState(c, r)
	c.current = r.result

	b.Publish(CompressionCapability, r.result)
	return nil
}

func (c *Compression) outputName(name string, a codec.Algorithm) string {
	r := c.options.Filename
	if r == nil {
		r = ExtTemplate(a)
	}
	return rewrite(name, r, Meta{Algorithm: a.Name, Options: a.Options})
}

func (c *Compression) eligible(name string, size int64) bool {
	return c.filter.Match(name) && size >= c.options.Threshold
}

type output struct {
	name string
	data []byte
}

// transform runs every algorithm on data. It reports whether the original
// must be removed once the outputs are stored.
func (c *Compression) transform(ctx context.Context, r *compressionRun, name string, data []byte) ([]output, bool, error) {
	var (
		outs   []output
		remove = c.options.DeleteOriginalAssets
	)
	for _, a := range c.options.Algorithms {
		compressed, err := a.Compress(ctx, data)
		if err != nil {
			return nil, false, fmt.Errorf("failed to compress with %s: %w", a.Name, err)
		}

		out := c.outputName(name, a)
		if c.skip && len(compressed) >= len(data) {
			c.log.Debug("skip output not smaller than input",
				"file", name,
				"output", out,
				"size", len(data),
				"compressed", len(compressed),
			)
			continue
		}

		if out == name {
			remove = true
		}
		outs = append(outs, output{name: out, data: compressed})
		r.record(name, out, len(data), len(compressed))
	}
	return outs, remove && len(outs) > 0, nil
}

// FinalizeBundle compresses bundle entries that are already final.
func (c *Compression) FinalizeBundle(ctx context.Context, b *Build) error {
	r, err := c.run(b)
	if err != nil {
		return err
	}
	r.deferred = deferredNames(b.Bundle)
	r.result.setDeferred(r.deferred)

	q := NewQueue(c.options.Concurrency)

	for _, name := range b.Bundle.Names() {
		if _, ok := r.deferred[name]; ok {
			continue
		}

		f, ok := b.Bundle.Get(name)
		if !ok || !c.eligible(name, int64(len(f.Contents))) {
			continue
		}

		q.Enqueue(func() error {
			outs, remove, err := c.transform(ctx, r, f.Name, f.Contents)
			if err != nil {
				return newFileError(f.Name, err)
			}
			if remove {
				b.Bundle.Delete(f.Name)
			}
			for _, out := range outs {
				b.Bundle.Emit(&VirtualFile{
					Name:     out.name,
					Kind:     KindAsset,
					Contents: out.data,
				})
			}
			return nil
		})
	}

	err = q.Wait()
	c.summary(r, "bundle")
	if err != nil {
		return fmt.Errorf("failed to compress bundle: %w", err)
	}
	return nil
}

// CloseBuild compresses static files and deferred chunks in every output
// directory.
func (c *Compression) CloseBuild(ctx context.Context, b *Build) (err error) {
	r, err := c.run(b)
	if err != nil {
		return err
	}
	defer func() {
		r.result.finish(err)
	}()

	static, err := listFiles(b.PublicDir)
	if err != nil {
		return fmt.Errorf("failed to list public dir %q: %w", b.PublicDir, err)
	}

	candidates := make(map[string]struct{}, len(static)+len(r.deferred))
	for _, name := range static {
		candidates[name] = struct{}{}
	}
	for name := range r.deferred {
		candidates[name] = struct{}{}
	}

	q := NewQueue(c.options.Concurrency)

	for _, dir := range b.OutDirs {
		names, err := listFiles(dir)
		if err != nil {
			return fmt.Errorf("failed to list output dir %q: %w", dir, err)
		}

		for _, name := range names {
			if _, ok := candidates[name]; !ok {
				continue
			}
			if !c.filter.Match(name) {
				r.result.addOutput(name)
				continue
			}

			q.Enqueue(func() error {
				if err := c.compressFile(ctx, r, dir, name); err != nil {
					return newFileError(filepath.Join(dir, name), err)
				}
				return nil
			})
		}
	}

	err = q.Wait()
	c.summary(r, "disk")
	if err != nil {
		return fmt.Errorf("failed to compress files: %w", err)
	}
	return nil
}

func (c *Compression) compressFile(ctx context.Context, r *compressionRun, dir, name string) error {
	path := filepath.Join(dir, filepath.FromSlash(name))

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() < c.options.Threshold {
		r.result.addOutput(name)
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	outs, remove, err := c.transform(ctx, r, name, data)
	if err != nil {
		return err
	}

	replaced := false
	for _, out := range outs {
		if err := writeFile(filepath.Join(dir, filepath.FromSlash(out.name)), out.data); err != nil {
			return err
		}
		r.result.addOutput(out.name)
		if out.name == name {
			replaced = true
		}
	}

	if !remove {
		r.result.addOutput(name)
		return nil
	}
	if replaced {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove original: %w", err)
	}
	return nil
}

// summary logs the files compressed since the last call.
func (c *Compression) summary(r *compressionRun, pass string) {
	stats := r.takeStats()
	if len(stats) == 0 {
		return
	}

	sort.Slice(stats, func(i, j int) bool {
		return stats[i].output < stats[j].output
	})

	var before, after int
	for _, s := range stats {
		before += s.before
		after += s.after
		c.log.Debug("compressed file",
			"pass", pass,
			"file", s.output,
			"before", s.before,
			"after", s.after,
			"ratio", fmt.Sprintf("%.2f", ratio(s.after, s.before)),
		)
	}

	c.log.Info("compressed files",
		"pass", pass,
		"files", len(stats),
		"before", before,
		"after", after,
		"ratio", fmt.Sprintf("%.2f", ratio(after, before)),
	)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

func sortedKeys(m map[string]struct{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
