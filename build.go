package postbuild

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/moby/sys/atomicwriter"
)

// HostInfo identifies the bundler. Version is a semver string such as
// "v0.25.0", or empty when unknown.
type HostInfo struct {
	Name    string
	Version string
}

// Build is the state shared by all plugins of one bundler run.
type Build struct {
	// OutDirs receive identical copies of the output. Most builds have
	// exactly one.
	OutDirs []string
	// PublicDir holds static files copied verbatim into every output
	// directory.
	PublicDir string
	Bundle    *Bundle
	Host      HostInfo
	Log       *slog.Logger

	// Render returns the bytes written to disk for the chunk f. The host
	// uses it to finalize code after every plugin has seen the bundle.
	// Assets, including compressed outputs, are always written as is. If
	// nil, f.Contents is written.
	Render func(f *VirtualFile) []byte

	mu    sync.Mutex
	caps  map[string][]any
	state map[any]any
}

func (b *Build) log() *slog.Logger {
	if b.Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b.Log
}

// Publish makes v discoverable by name for the other plugins of the build.
func (b *Build) Publish(name string, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.caps == nil {
		b.caps = make(map[string][]any)
	}
	b.caps[name] = append(b.caps[name], v)
}

// Capabilities returns everything published under name in publish order.
func (b *Build) Capabilities(name string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]any(nil), b.caps[name]...)
}

// setState stores per-build plugin state under key.
func (b *Build) setState(key, v any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == nil {
		b.state = make(map[any]any)
	}
	b.state[key] = v
}

func (b *Build) loadState(key any) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v, ok := b.state[key]
	return v, ok
}

type Phase int

const (
	PhaseConfigure Phase = iota
	PhaseLinkFixup
	PhasePostLink
	PhaseWrite
	PhaseClose
)

func (p Phase) String() string {
	switch p {
	case PhaseConfigure:
		return "configure"
	case PhaseLinkFixup:
		return "link-fixup"
	case PhasePostLink:
		return "post-link"
	case PhaseWrite:
		return "write"
	case PhaseClose:
		return "close"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type Plugin interface {
	Name() string
}

// Configurer validates options before any file is touched.
type Configurer interface {
	Configure(ctx context.Context, b *Build) error
}

// LinkFixer rewrites bundle contents before the bundle pass.
type LinkFixer interface {
	FixLinks(ctx context.Context, b *Build) error
}

// BundleFinalizer runs after link fixup and before anything is written.
type BundleFinalizer interface {
	FinalizeBundle(ctx context.Context, b *Build) error
}

// BuildCloser runs once every output directory is written.
type BuildCloser interface {
	CloseBuild(ctx context.Context, b *Build) error
}

// Run executes the phases of a build in order. Finalizers run one after
// another in the order given. Closers run concurrently and must
// synchronize through capabilities.
func Run(ctx context.Context, b *Build, plugins ...Plugin) error {
	l := b.log()

	for _, p := range plugins {
		c, ok := p.(Configurer)
		if !ok {
			continue
		}
		if err := c.Configure(ctx, b); err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) {
				return err
			}
			return &ConfigError{Plugin: p.Name(), Err: err}
		}
	}

	for _, p := range plugins {
		f, ok := p.(LinkFixer)
		if !ok {
			continue
		}
		if err := f.FixLinks(ctx, b); err != nil {
			return fmt.Errorf("%s: %s failed: %w", p.Name(), PhaseLinkFixup, err)
		}
	}

	for _, p := range plugins {
		f, ok := p.(BundleFinalizer)
		if !ok {
			continue
		}
		l.Debug("finalize bundle", "plugin", p.Name(), "files", b.Bundle.Len())
		if err := f.FinalizeBundle(ctx, b); err != nil {
			return fmt.Errorf("%s: %s failed: %w", p.Name(), PhasePostLink, err)
		}
	}

	if err := WriteOutput(ctx, b); err != nil {
		return fmt.Errorf("%s failed: %w", PhaseWrite, err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, p := range plugins {
		c, ok := p.(BuildCloser)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.CloseBuild(ctx, b); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %s failed: %w", p.Name(), PhaseClose, err))
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// WriteOutput copies the public directory and then writes the bundle into
// every output directory.
func WriteOutput(ctx context.Context, b *Build) error {
	for _, dir := range b.OutDirs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if b.PublicDir != "" && !samePath(b.PublicDir, dir) {
			if err := copyDir(b.PublicDir, dir); err != nil {
				return fmt.Errorf("failed to copy public dir %q: %w", b.PublicDir, err)
			}
		}

		for _, f := range b.Bundle.Files() {
			contents := f.Contents
			if b.Render != nil && f.Kind == KindChunk {
				contents = b.Render(f)
			}
			if err := writeFile(filepath.Join(dir, filepath.FromSlash(f.Name)), contents); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyDir(src, dst string) error {
	names, err := listFiles(src)
	if err != nil {
		return err
	}
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(src, filepath.FromSlash(name)))
		if err != nil {
			return fmt.Errorf("failed to read %q: %w", name, err)
		}
		if err := writeFile(filepath.Join(dst, filepath.FromSlash(name)), data); err != nil {
			return err
		}
	}
	return nil
}

// writeFile replaces name atomically, creating parent directories.
func writeFile(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %q: %w", name, err)
	}
	if err := atomicwriter.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", name, err)
	}
	return nil
}
