// Package codec resolves algorithm names into byte transforms.
//
// Every built-in codec carries a default option record. User supplied
// records are merged over those defaults, with every set (non-nil) user
// field winning, zero included.
package codec

import (
	"context"
	"errors"
	"fmt"

	"dario.cat/mergo"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrUnavailable          = errors.New("algorithm not available")
	ErrOptions              = errors.New("invalid algorithm options")
)

// Func transforms data with the given options.
type Func func(ctx context.Context, data []byte, opts Options) ([]byte, error)

// Options is one of the option records below.
type Options interface {
	codecOptions()
}

// ZlibOptions configures gzip, deflate and deflateRaw.
type ZlibOptions struct {
	Level *int `yaml:"level"`
}

// BrotliOptions configures brotliCompress. An unset or zero LGWin lets the
// encoder pick the window size.
type BrotliOptions struct {
	Quality *int `yaml:"quality"`
	LGWin   *int `yaml:"lgwin"`
}

type ZstdOptions struct {
	Level       *int `yaml:"level"`
	Concurrency *int `yaml:"concurrency"`
}

type LZ4Options struct {
	Level *int `yaml:"level"`
}

// Int returns a pointer to v for option fields.
func Int(v int) *int {
	return &v
}

func intValue(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// CustomOptions is passed unchanged to custom functions.
type CustomOptions map[string]any

func (ZlibOptions) codecOptions()   {}
func (BrotliOptions) codecOptions() {}
func (ZstdOptions) codecOptions()   {}
func (LZ4Options) codecOptions()    {}
func (CustomOptions) codecOptions() {}

// Algorithm is a resolved transform with its merged options.
type Algorithm struct {
	Name    string
	Ext     string
	Options Options

	fn     Func
	custom bool
}

// Compress runs the transform over data.
func (a Algorithm) Compress(ctx context.Context, data []byte) ([]byte, error) {
	if a.fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, a.Name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.fn(ctx, data, a.Options)
}

// IsCustom reports whether a was created by Custom.
func (a Algorithm) IsCustom() bool {
	return a.custom
}

func (a Algorithm) String() string {
	return a.Name
}

// Define resolves token against the built-in codecs.
func Define(token string, opts Options) (Algorithm, error) {
	return Default.Define(token, opts, "")
}

// MustDefine is like Define but panics on error.
func MustDefine(token string, opts Options) Algorithm {
	a, err := Define(token, opts)
	if err != nil {
		panic(err)
	}
	return a
}

// Custom wraps fn. No defaults are applied to opts.
func Custom(name string, fn Func, opts CustomOptions) Algorithm {
	if opts == nil {
		opts = CustomOptions{}
	}
	return Algorithm{
		Name:    name,
		Ext:     ".gz",
		Options: opts,
		fn:      fn,
		custom:  true,
	}
}

// mergeOptions fills the nil fields of user from def.
func mergeOptions[T Options](name string, user Options, def T) (Options, error) {
	if user == nil {
		return def, nil
	}
	u, ok := user.(T)
	if !ok {
		return nil, fmt.Errorf("%w: %T does not apply to %s", ErrOptions, user, name)
	}
	if err := mergo.Merge(&u, def, mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("failed to merge %s options: %w", name, err)
	}
	return u, nil
}
