package tar

import (
	"archive/tar"
	"fmt"
	"io"
	"time"
)

// Member describes an archive member as read back from a stream.
type Member struct {
	Name    string
	Size    int64
	Mode    int64
	ModTime time.Time
	Dir     bool
}

// Extract extracts a tarball into a map of file names and their
// contents.
func Extract(r io.Reader) (map[string][]byte, error) {
	files := make(map[string][]byte)

	err := walk(r, func(h *tar.Header, tr *tar.Reader) error {
		// Only process regular files (skip directories, symlinks, etc.)
		if h.Typeflag != tar.TypeReg {
			return nil
		}

		content, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", h.Name, err)
		}

		files[h.Name] = content
		return nil
	})

	return files, err
}

// List returns the archive members in archive order.
func List(r io.Reader) ([]Member, error) {
	var members []Member

	err := walk(r, func(h *tar.Header, _ *tar.Reader) error {
		members = append(members, Member{
			Name:    h.Name,
			Size:    h.Size,
			Mode:    h.Mode,
			ModTime: h.ModTime,
			Dir:     h.Typeflag == tar.TypeDir,
		})
		return nil
	})

	return members, err
}

func walk(r io.Reader, fn func(h *tar.Header, tr *tar.Reader) error) error {
	tr := tar.NewReader(r)

	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tarball: %w", err)
		}

		if err := fn(header, tr); err != nil {
			return err
		}
	}
}
