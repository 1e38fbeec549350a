package tar

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrDuplicateName is returned when a name is added to a Pack twice.
var ErrDuplicateName = errors.New("tar: duplicate name")

type member struct {
	header  [BlockSize]byte
	content []byte
}

// Pack collects archive members in insertion order and renders them as a
// ustar stream.
type Pack struct {
	// Now returns the modification time stored for each member. If nil,
	// time.Now is used.
	Now func() time.Time

	members []member
	names   map[string]struct{}
}

func NewPack() *Pack {
	return &Pack{
		names: make(map[string]struct{}),
	}
}

func (p *Pack) now() time.Time {
	if p.Now == nil {
		return time.Now()
	}
	return p.Now()
}

// Add appends a regular file. The header is encoded immediately, so an
// unrepresentable name is reported here and the member is not added.
func (p *Pack) Add(name string, content []byte) error {
	return p.add(&Header{
		Name:     name,
		Mode:     ModeFile,
		Size:     int64(len(content)),
		ModTime:  p.now(),
		Typeflag: TypeReg,
	}, content)
}

// AddDir appends a directory entry. A trailing slash is added to name if
// missing.
func (p *Pack) AddDir(name string) error {
	return p.add(&Header{
		Name:     name,
		Mode:     ModeDir,
		ModTime:  p.now(),
		Typeflag: TypeDir,
	}, nil)
}

func (p *Pack) add(h *Header, content []byte) error {
	if p.names == nil {
		p.names = make(map[string]struct{})
	}

	if _, ok := p.names[h.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, h.Name)
	}

	block, err := h.Encode()
	if err != nil {
		return err
	}

	p.names[h.Name] = struct{}{}
	p.members = append(p.members, member{header: block, content: content})

	return nil
}

// Len returns the number of members added so far.
func (p *Pack) Len() int {
	return len(p.members)
}

// Size returns the byte length of the rendered archive.
func (p *Pack) Size() int64 {
	size := int64(2 * BlockSize)
	for _, m := range p.members {
		size += BlockSize + int64(len(m.content)) + padding(len(m.content))
	}
	return size
}

// WriteTo streams the archive into w: every header followed by its content
// padded to the block size, then two zero blocks.
func (p *Pack) WriteTo(w io.Writer) (int64, error) {
	var zero [BlockSize]byte
	var written int64

	write := func(b []byte) error {
		n, err := w.Write(b)
		written += int64(n)
		return err
	}

	for _, m := range p.members {
		if err := write(m.header[:]); err != nil {
			return written, fmt.Errorf("failed to write tar header: %w", err)
		}

		if err := write(m.content); err != nil {
			return written, fmt.Errorf("failed to write file content: %w", err)
		}

		if pad := padding(len(m.content)); pad > 0 {
			if err := write(zero[:pad]); err != nil {
				return written, fmt.Errorf("failed to write padding: %w", err)
			}
		}
	}

	for range 2 {
		if err := write(zero[:]); err != nil {
			return written, fmt.Errorf("failed to write end of archive: %w", err)
		}
	}

	return written, nil
}

// Bytes renders the archive in memory.
func (p *Pack) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(int(p.Size()))
	// bytes.Buffer writes never fail.
	_, _ = p.WriteTo(&buf)
	return buf.Bytes()
}

func padding(n int) int64 {
	return int64((BlockSize - n%BlockSize) % BlockSize)
}
