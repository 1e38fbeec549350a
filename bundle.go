package postbuild

import (
	"sort"
	"sync"
)

type Kind int

const (
	// KindAsset is a discrete output such as a stylesheet or image.
	KindAsset Kind = iota
	// KindChunk is a code unit.
	KindChunk
)

func (k Kind) String() string {
	switch k {
	case KindChunk:
		return "chunk"
	default:
		return "asset"
	}
}

// VirtualFile is a build output before it is written to disk. Name is
// relative to every output directory and uses forward slashes.
type VirtualFile struct {
	Name     string
	Kind     Kind
	Contents []byte
	// DynamicImports names the chunks this chunk loads lazily.
	DynamicImports []string
}

// Bundle holds the outputs of one build. It is safe for concurrent use.
type Bundle struct {
	mu    sync.RWMutex
	files map[string]*VirtualFile
}

func NewBundle(files ...*VirtualFile) *Bundle {
	b := &Bundle{files: make(map[string]*VirtualFile)}
	for _, f := range files {
		b.files[f.Name] = f
	}
	return b
}

// Names returns a sorted snapshot of the file names.
func (b *Bundle) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.files))
	for name := range b.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Files returns a snapshot sorted by name.
func (b *Bundle) Files() []*VirtualFile {
	names := b.Names()

	b.mu.RLock()
	defer b.mu.RUnlock()

	files := make([]*VirtualFile, 0, len(names))
	for _, name := range names {
		if f, ok := b.files[name]; ok {
			files = append(files, f)
		}
	}
	return files
}

func (b *Bundle) Get(name string) (*VirtualFile, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	f, ok := b.files[name]
	return f, ok
}

func (b *Bundle) Delete(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.files, name)
}

// Emit adds f, replacing any file of the same name.
func (b *Bundle) Emit(f *VirtualFile) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.files[f.Name] = f
}

func (b *Bundle) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.files)
}

// deferredNames returns the chunks that load other chunks dynamically and
// their dynamic import targets. Their bytes are final only once written.
func deferredNames(b *Bundle) map[string]struct{} {
	deferred := make(map[string]struct{})
	for _, f := range b.Files() {
		if f.Kind != KindChunk || len(f.DynamicImports) == 0 {
			continue
		}
		deferred[f.Name] = struct{}{}
		for _, name := range f.DynamicImports {
			deferred[name] = struct{}{}
		}
	}
	return deferred
}
