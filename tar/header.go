// Package tar encodes POSIX ustar archives.
//
// Only the ustar layout is written: no GNU or PAX extensions. Names that
// cannot be represented in a ustar header are rejected with
// ErrCannotEncode instead of being truncated.
package tar

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BlockSize is the ustar record size. Headers, padded contents and the
// end-of-archive marker are all multiples of it.
const BlockSize = 512

const (
	nameSize     = 100
	prefixSize   = 155
	maxPathSize  = 255
	linkNameSize = 100
	ownerSize    = 32
)

// Typeflag is the entry type stored at offset 156.
type Typeflag byte

const (
	TypeReg     Typeflag = '0'
	TypeLink    Typeflag = '1'
	TypeSymlink Typeflag = '2'
	TypeChar    Typeflag = '3'
	TypeBlock   Typeflag = '4'
	TypeDir     Typeflag = '5'
	TypeFifo    Typeflag = '6'
	TypeCont    Typeflag = '7'
)

// Permission bits used for packed entries.
const (
	ModeFile int64 = 0o644
	ModeDir  int64 = 0o755
)

const (
	magic   = "ustar"
	version = "00"
)

// ErrCannotEncode is returned when a header field cannot be represented in
// the ustar layout.
var ErrCannotEncode = errors.New("tar: cannot encode header")

// Header describes a single archive member.
type Header struct {
	Name     string
	Mode     int64
	Uid      int64
	Gid      int64
	Size     int64
	ModTime  time.Time
	Typeflag Typeflag
	Linkname string
	Uname    string
	Gname    string
	Devmajor int64
	Devminor int64
}

// Encode renders the header into a single block.
func (h *Header) Encode() ([BlockSize]byte, error) {
	var block [BlockSize]byte

	name := h.Name
	if h.Typeflag == TypeDir && !strings.HasSuffix(name, "/") {
		name += "/"
	}

	if !isASCII(name) {
		return block, fmt.Errorf("%w: name %q is not ASCII", ErrCannotEncode, name)
	}

	prefix, base, err := splitName(name)
	if err != nil {
		return block, err
	}

	if len(h.Linkname) > linkNameSize || !isASCII(h.Linkname) {
		return block, fmt.Errorf("%w: link name %q", ErrCannotEncode, h.Linkname)
	}
	if len(h.Uname) > ownerSize || len(h.Gname) > ownerSize {
		return block, fmt.Errorf("%w: owner names exceed %d bytes", ErrCannotEncode, ownerSize)
	}
	if h.Size < 0 {
		return block, fmt.Errorf("%w: negative size %d", ErrCannotEncode, h.Size)
	}

	typeflag := h.Typeflag
	if typeflag == 0 {
		typeflag = TypeReg
	}

	copy(block[0:], base)
	formatOctal(block[100:108], h.Mode, 6)
	formatOctal(block[108:116], h.Uid, 6)
	formatOctal(block[116:124], h.Gid, 6)
	formatSize(block[124:136], h.Size)
	formatOctal(block[136:148], h.ModTime.Unix(), 11)
	block[156] = byte(typeflag)
	copy(block[157:], h.Linkname)
	copy(block[257:], magic)
	copy(block[263:], version)
	copy(block[265:], h.Uname)
	copy(block[297:], h.Gname)
	formatOctal(block[329:337], h.Devmajor, 6)
	formatOctal(block[337:345], h.Devminor, 6)
	copy(block[345:], prefix)

	formatOctal(block[148:156], checksum(&block), 6)

	return block, nil
}

// splitName fits name into the 100 byte name field, moving leading
// directories into the 155 byte prefix field when needed.
func splitName(name string) (prefix, base string, err error) {
	if len(name) <= nameSize {
		return "", name, nil
	}
	if len(name) > maxPathSize {
		return "", "", fmt.Errorf("%w: name %q exceeds %d bytes", ErrCannotEncode, name, maxPathSize)
	}

	// Search for the last separator that keeps the prefix within bounds.
	// A trailing separator (directories) never splits.
	length := len(name)
	if length > prefixSize+1 {
		length = prefixSize + 1
	} else if name[length-1] == '/' {
		length--
	}

	i := strings.LastIndex(name[:length], "/")
	if i <= 0 {
		return "", "", fmt.Errorf("%w: name %q has no usable separator", ErrCannotEncode, name)
	}

	prefix, base = name[:i], name[i+1:]
	if len(base) == 0 || len(base) > nameSize || len(prefix) > prefixSize {
		return "", "", fmt.Errorf("%w: name %q cannot be split into prefix and name", ErrCannotEncode, name)
	}

	return prefix, base, nil
}

// formatOctal writes n as zero-filled octal digits followed by a space.
// Values that do not fit are clamped to all sevens.
func formatOctal(dst []byte, n int64, digits int) {
	o := strconv.FormatInt(n, 8)
	if n < 0 || len(o) > digits {
		o = strings.Repeat("7", digits)
	} else {
		o = strings.Repeat("0", digits-len(o)) + o
	}
	copy(dst, o+" ")
}

// formatSize writes the size field. Sizes that need more than 11 octal
// digits use the base-256 form: a 0x80 marker followed by the value in
// big-endian order.
func formatSize(dst []byte, size int64) {
	if len(strconv.FormatInt(size, 8)) <= 11 {
		formatOctal(dst, size, 11)
		return
	}

	dst[0] = 0x80
	for i := len(dst) - 1; i > 0; i-- {
		dst[i] = byte(size)
		size >>= 8
	}
}

// checksum sums every header byte, counting the checksum field itself as
// eight spaces.
func checksum(block *[BlockSize]byte) int64 {
	var sum int64
	for i, b := range block {
		if i >= 148 && i < 156 {
			sum += ' '
			continue
		}
		sum += int64(b)
	}
	return sum
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
