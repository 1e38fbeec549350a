package postbuild

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// listFiles returns the slash separated names of all regular files below
// dir. A missing dir yields no names.
func listFiles(dir string) ([]string, error) {
	if dir == "" || !dirExists(dir) {
		return nil, nil
	}

	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("failed to access path %q: %w", path, err)
		}

		if !d.Type().IsRegular() {
			// Skip directories and special files
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(names)
	return names, nil
}

// samePath reports whether a and b resolve to the same directory.
func samePath(a, b string) bool {
	x, err := filepath.Abs(a)
	if err != nil {
		return false
	}
	y, err := filepath.Abs(b)
	if err != nil {
		return false
	}
	return x == y
}
