// Package fake creates on-disk build fixtures for tests.
package fake

import (
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// Project is a temporary build layout with one or more output directories
// and a public directory of static files.
type Project struct {
	Root      string
	OutDirs   []string
	PublicDir string
}

// NewProject creates n output directories and writes public into the
// public directory. The output directories do not exist yet.
func NewProject(t *testing.T, l *slog.Logger, n int, public map[string][]byte) *Project {
	t.Helper()

	root := t.TempDir()
	p := &Project{
		Root:      root,
		PublicDir: filepath.Join(root, "public"),
	}

	for i := 0; i < n; i++ {
		name := "dist"
		if i > 0 {
			name = fmt.Sprintf("dist-%d", i)
		}
		p.OutDirs = append(p.OutDirs, filepath.Join(root, name))
	}

	require.NoError(t, os.MkdirAll(p.PublicDir, 0o755))
	for name, content := range public {
		path := filepath.Join(p.PublicDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, content, 0o644))
	}

	l.Debug("created fake project", "root", root, "outDirs", len(p.OutDirs), "public", len(public))

	return p
}

// Tree reads every regular file below dir keyed by its slash separated
// relative name.
func Tree(t *testing.T, dir string) map[string][]byte {
	t.Helper()

	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	require.NoError(t, err)

	return files
}

// Text returns n bytes of compressible source text.
func Text(n int) []byte {
	line := []byte("export function render(node) { return node.children.map(render); }\n")
	return bytes.Repeat(line, n/len(line)+1)[:n]
}

// Noise returns n incompressible bytes.
func Noise(n int, seed int64) []byte {
	b := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(b)
	return b
}
