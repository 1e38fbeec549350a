package codec

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// Builtin describes a named codec.
type Builtin struct {
	Name string
	Ext  string
	// Since lists the minimum host versions per major release. Empty
	// means every host is supported.
	Since []string
	// Compress is nil when the codec is absent from this build.
	Compress Func

	merge func(user Options) (Options, error)
}

// Registry maps algorithm names and aliases to codecs.
type Registry struct {
	builtins map[string]Builtin
	aliases  map[string]string
}

var aliases = map[string]string{
	"gz":     "gzip",
	"br":     "brotliCompress",
	"brotli": "brotliCompress",
	"zstd":   "zstandard",
}

// Default holds every codec shipped with this package.
var Default = NewRegistry(
	withDefaults(Builtin{Name: "gzip", Ext: ".gz", Compress: gzipCompress}, func() ZlibOptions {
		return ZlibOptions{Level: Int(9)}
	}),
	withDefaults(Builtin{Name: "deflate", Ext: ".gz", Compress: deflateCompress}, func() ZlibOptions {
		return ZlibOptions{Level: Int(9)}
	}),
	withDefaults(Builtin{Name: "deflateRaw", Ext: ".gz", Compress: deflateRawCompress}, func() ZlibOptions {
		return ZlibOptions{Level: Int(9)}
	}),
	withDefaults(Builtin{Name: "brotliCompress", Ext: ".br", Compress: brotliCompress}, func() BrotliOptions {
		return BrotliOptions{Quality: Int(11)}
	}),
	withDefaults(Builtin{Name: "zstandard", Ext: ".zst", Compress: zstdCompress}, func() ZstdOptions {
		return ZstdOptions{Level: Int(19), Concurrency: Int(1)}
	}),
	withDefaults(Builtin{Name: "lz4", Ext: ".lz4", Compress: lz4Compress}, func() LZ4Options {
		return LZ4Options{Level: Int(9)}
	}),
)

// withDefaults calls defaults once per merge.
func withDefaults[T Options](b Builtin, defaults func() T) Builtin {
	name := b.Name
	b.merge = func(user Options) (Options, error) {
		return mergeOptions(name, user, defaults())
	}
	return b
}

func NewRegistry(builtins ...Builtin) *Registry {
	r := &Registry{
		builtins: make(map[string]Builtin),
		aliases:  aliases,
	}
	for _, b := range builtins {
		r.builtins[b.Name] = b
	}
	return r
}

// Canonical resolves aliases.
func (r *Registry) Canonical(token string) string {
	if name, ok := r.aliases[token]; ok {
		return name
	}
	return token
}

// Names returns the sorted canonical names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builtins))
	for name := range r.builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ensure looks up token and checks it can run on a host of the given
// version. An empty or invalid version skips the version gate.
func (r *Registry) Ensure(token, version string) (Builtin, error) {
	b, ok := r.builtins[r.Canonical(token)]
	if !ok {
		return Builtin{}, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, token)
	}
	if !supported(version, b.Since) {
		return Builtin{}, fmt.Errorf("%w: %s requires host version %s or later, got %s",
			ErrUnavailable, b.Name, strings.Join(b.Since, " or "), version)
	}
	if b.Compress == nil {
		return Builtin{}, fmt.Errorf("%w: %s is not available in this build", ErrUnavailable, b.Name)
	}
	return b, nil
}

// Define resolves token and merges opts over the codec defaults.
func (r *Registry) Define(token string, opts Options, version string) (Algorithm, error) {
	b, err := r.Ensure(token, version)
	if err != nil {
		return Algorithm{}, err
	}

	merged := opts
	if b.merge != nil {
		merged, err = b.merge(opts)
		if err != nil {
			return Algorithm{}, err
		}
	}

	return Algorithm{
		Name:    b.Name,
		Ext:     b.Ext,
		Options: merged,
		fn:      b.Compress,
	}, nil
}

func supported(version string, since []string) bool {
	if len(since) == 0 || !semver.IsValid(version) {
		return true
	}

	var highest string
	for _, v := range since {
		if semver.Major(v) == semver.Major(version) {
			return semver.Compare(version, v) >= 0
		}
		if highest == "" || semver.Compare(v, highest) > 0 {
			highest = v
		}
	}
	return semver.Compare(version, highest) > 0
}
