package postbuild

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/pgzip"
	"golang.org/x/mod/semver"

	"github.com/testlabtools/postbuild/tar"
)

// minHostVersions lists the oldest host releases whose hook order the
// tarball relies on.
var minHostVersions = map[string]string{
	"esbuild": "v0.17.0",
}

type TarballOptions struct {
	// Dest names the archive without extension. If empty, the archive is
	// written next to each output directory.
	Dest string
	// Gz wraps the archive in gzip.
	Gz          bool
	Concurrency int
	Logger      *slog.Logger
	// Now sets the member modification time.
	Now func() time.Time
}

// Tarball packs the final output of every output directory into an
// archive.
type Tarball struct {
	options TarballOptions
	log     *slog.Logger
}

func NewTarball(o TarballOptions) *Tarball {
	l := o.Logger
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tarball{
		options: o,
		log:     l.With("plugin", "tarball"),
	}
}

func (t *Tarball) Name() string {
	return "tarball"
}

func (t *Tarball) Configure(ctx context.Context, b *Build) error {
	want, ok := minHostVersions[b.Host.Name]
	if !ok || !semver.IsValid(b.Host.Version) {
		return nil
	}
	if semver.Compare(b.Host.Version, want) < 0 {
		return fmt.Errorf("tarball requires %s %s or later, got %s", b.Host.Name, want, b.Host.Version)
	}
	return nil
}

// ArchivePath returns the archive written for dir, the i-th of n output
// directories.
func (t *Tarball) ArchivePath(dir string, n int) string {
	ext := ".tar"
	if t.options.Gz {
		ext += ".gz"
	}

	dest := t.options.Dest
	switch {
	case dest == "":
		return filepath.Clean(dir) + ext
	case n > 1:
		return filepath.Join(dest, filepath.Base(filepath.Clean(dir))+ext)
	default:
		return dest + ext
	}
}

type entry struct {
	name string
	// fromDisk entries are read from the output directory.
	fromDisk bool
	// optional entries came from a compression result and may be absent
	// from some output directories.
	optional bool
	contents []byte
}

// entries lists the archive members in insertion order: bundle files first,
// then files only known on disk.
func (t *Tarball) entries(ctx context.Context, b *Build) ([]entry, error) {
	var (
		deferred = make(map[string]struct{})
		disk     []string
	)

	caps := b.Capabilities(CompressionCapability)
	optional := len(caps) > 0
	for _, c := range caps {
		r := c.(*CompressionResult)
		t.log.Debug("wait for compression")
		if err := r.Wait(ctx); err != nil {
			return nil, fmt.Errorf("compression did not finish: %w", err)
		}
		disk = append(disk, r.Outputs()...)
		for _, name := range r.DeferredNames() {
			deferred[name] = struct{}{}
		}
	}

	if len(caps) == 0 {
		deferred = deferredNames(b.Bundle)
		static, err := listFiles(b.PublicDir)
		if err != nil {
			return nil, fmt.Errorf("failed to list public dir %q: %w", b.PublicDir, err)
		}
		disk = append(disk, static...)
		disk = append(disk, sortedKeys(deferred)...)
	}

	var (
		list []entry
		seen = make(map[string]struct{})
	)
	for _, f := range b.Bundle.Files() {
		if _, ok := deferred[f.Name]; ok {
			continue
		}
		seen[f.Name] = struct{}{}
		list = append(list, entry{name: f.Name, contents: f.Contents})
	}
	for _, name := range disk {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		list = append(list, entry{name: name, fromDisk: true, optional: optional})
	}
	return list, nil
}

// CloseBuild writes one archive per output directory.
func (t *Tarball) CloseBuild(ctx context.Context, b *Build) error {
	list, err := t.entries(ctx, b)
	if err != nil {
		return err
	}

	for _, dir := range b.OutDirs {
		dest := t.ArchivePath(dir, len(b.OutDirs))
		if err := t.pack(ctx, dir, dest, list); err != nil {
			return fmt.Errorf("failed to create tarball %q: %w", dest, err)
		}
	}
	return nil
}

func (t *Tarball) pack(ctx context.Context, dir, dest string, list []entry) error {
	var (
		contents = make([][]byte, len(list))
		found    = make([]bool, len(list))
	)

	q := NewQueue(t.options.Concurrency)
	for i, e := range list {
		if !e.fromDisk {
			contents[i] = e.contents
			found[i] = true
			continue
		}
		q.Enqueue(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(e.name)))
			if err != nil {
				if e.optional && os.IsNotExist(err) {
					t.log.Debug("skip member missing from output dir", "dir", dir, "file", e.name)
					return nil
				}
				return newFileError(e.name, err)
			}
			contents[i] = data
			found[i] = true
			return nil
		})
	}
	if err := q.Wait(); err != nil {
		return err
	}

	p := tar.NewPack()
	p.Now = t.options.Now

	var errs []*TaskError
	for i, e := range list {
		if !found[i] {
			continue
		}
		if err := p.Add(e.name, contents[i]); err != nil {
			errs = append(errs, &TaskError{Index: i, Err: newFileError(e.name, err)})
		}
	}
	if len(errs) > 0 {
		return newAggregateError(errs)
	}

	var buf bytes.Buffer
	if t.options.Gz {
		zw := pgzip.NewWriter(&buf)
		if _, err := p.WriteTo(zw); err != nil {
			return fmt.Errorf("failed to write gzip content: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("failed to close gzip writer: %w", err)
		}
	} else if _, err := p.WriteTo(&buf); err != nil {
		return err
	}

	if err := writeFile(dest, buf.Bytes()); err != nil {
		return err
	}

	t.log.Info("tarball created",
		"path", dest,
		"files", p.Len(),
		"rawSize", p.Size(),
		"size", buf.Len(),
	)
	return nil
}
