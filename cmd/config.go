package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/testlabtools/postbuild"
	"github.com/testlabtools/postbuild/codec"
)

// Config is the content of the --config file. Flags set on the command
// line take precedence.
type Config struct {
	PublicDir   string            `yaml:"publicDir"`
	OutDirs     []string          `yaml:"outDirs"`
	Compression CompressionConfig `yaml:"compression"`
	Tarball     TarballConfig     `yaml:"tarball"`
}

type CompressionConfig struct {
	Include              []string `yaml:"include"`
	Exclude              []string `yaml:"exclude"`
	Threshold            int64    `yaml:"threshold"`
	Algorithms           []string `yaml:"algorithms"`
	Filename             string   `yaml:"filename"`
	DeleteOriginalAssets bool     `yaml:"deleteOriginalAssets"`
	SkipIfLargerOrEqual  *bool    `yaml:"skipIfLargerOrEqual"`
	Concurrency          int      `yaml:"concurrency"`
	// Options are applied to every algorithm that understands them.
	Options AlgorithmConfig `yaml:"options"`
}

// AlgorithmConfig leaves unset fields to the codec defaults. Brotli uses
// Level as its quality when Quality is unset.
type AlgorithmConfig struct {
	Level   *int `yaml:"level"`
	Quality *int `yaml:"quality"`
	LGWin   *int `yaml:"lgwin"`
}

type TarballConfig struct {
	Dest  string `yaml:"dest"`
	Gz    bool   `yaml:"gz"`
	Mtime string `yaml:"mtime"`
}

func loadConfig(path string) (Config, error) {
	var c Config
	if path == "" {
		return c, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("failed to open config %q: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return c, fmt.Errorf("failed to parse config %q: %w", path, err)
	}
	return c, nil
}

func (a AlgorithmConfig) options(token string) codec.Options {
	switch codec.Default.Canonical(token) {
	case "gzip", "deflate", "deflateRaw":
		return codec.ZlibOptions{Level: a.Level}
	case "brotliCompress":
		quality := a.Quality
		if quality == nil {
			quality = a.Level
		}
		return codec.BrotliOptions{Quality: quality, LGWin: a.LGWin}
	case "zstandard":
		return codec.ZstdOptions{Level: a.Level}
	case "lz4":
		return codec.LZ4Options{Level: a.Level}
	}
	return nil
}

func addCompressionFlags(fs *pflag.FlagSet) {
	fs.StringSlice("include", nil, "patterns of files to compress (glob, or re:<regexp>)")
	fs.StringSlice("exclude", nil, "patterns of files to skip (glob, or re:<regexp>)")
	fs.Int64("threshold", 0, "minimum file size in bytes")
	fs.StringSlice("algorithm", nil, "compression algorithms (gzip, deflate, deflateRaw, brotliCompress, zstandard, lz4)")
	fs.String("filename", "", "output name template using [path] and [base]")
	fs.Bool("delete-original", false, "remove originals after compression")
	fs.Bool("keep-larger", false, "keep outputs that are not smaller than their input")
	fs.Int("level", 0, "compression level (brotli quality unless --quality is set)")
	fs.Int("quality", 0, "brotli quality (0-11)")
	fs.Int("concurrency", 0, "number of files compressed at once")
}

// applyCompressionFlags overrides c with every flag set on the command line.
func applyCompressionFlags(fs *pflag.FlagSet, c *CompressionConfig) error {
	var err error
	visit := func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "include":
			c.Include, err = fs.GetStringSlice(f.Name)
		case "exclude":
			c.Exclude, err = fs.GetStringSlice(f.Name)
		case "threshold":
			c.Threshold, err = fs.GetInt64(f.Name)
		case "algorithm":
			c.Algorithms, err = fs.GetStringSlice(f.Name)
		case "filename":
			c.Filename, err = fs.GetString(f.Name)
		case "delete-original":
			c.DeleteOriginalAssets, err = fs.GetBool(f.Name)
		case "keep-larger":
			var keep bool
			keep, err = fs.GetBool(f.Name)
			skip := !keep
			c.SkipIfLargerOrEqual = &skip
		case "level":
			c.Options.Level, err = intFlag(fs, f.Name)
		case "quality":
			c.Options.Quality, err = intFlag(fs, f.Name)
		case "concurrency":
			c.Concurrency, err = fs.GetInt(f.Name)
		}
	}
	fs.Visit(visit)
	return err
}

func intFlag(fs *pflag.FlagSet, name string) (*int, error) {
	v, err := fs.GetInt(name)
	if err != nil {
		return nil, err
	}
	return codec.Int(v), nil
}

func (c CompressionConfig) build(s setup) (postbuild.CompressionOptions, error) {
	o := postbuild.CompressionOptions{
		Threshold:            c.Threshold,
		DeleteOriginalAssets: c.DeleteOriginalAssets,
		SkipIfLargerOrEqual:  c.SkipIfLargerOrEqual,
		Concurrency:          c.Concurrency,
		Logger:               s.log,
	}

	var err error
	if len(c.Include) > 0 {
		if o.Include, err = postbuild.ParsePatterns(c.Include); err != nil {
			return o, err
		}
	}
	if o.Exclude, err = postbuild.ParsePatterns(c.Exclude); err != nil {
		return o, err
	}

	for _, token := range c.Algorithms {
		a, err := codec.Define(token, c.Options.options(token))
		if err != nil {
			return o, err
		}
		o.Algorithms = append(o.Algorithms, a)
	}

	if c.Filename != "" {
		o.Filename = postbuild.Template(c.Filename)
	}

	return o, nil
}

func addTarballFlags(fs *pflag.FlagSet) {
	fs.String("dest", "", "archive path without extension")
	fs.Bool("gz", false, "gzip the archive")
	fs.String("mtime", "", "modification time of archive members (RFC 3339)")
}

func applyTarballFlags(fs *pflag.FlagSet, c *TarballConfig) error {
	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "dest":
			c.Dest, err = fs.GetString(f.Name)
		case "gz":
			c.Gz, err = fs.GetBool(f.Name)
		case "mtime":
			c.Mtime, err = fs.GetString(f.Name)
		}
	})
	return err
}

func (c TarballConfig) build(s setup) (postbuild.TarballOptions, error) {
	o := postbuild.TarballOptions{
		Dest:   c.Dest,
		Gz:     c.Gz,
		Logger: s.log,
	}

	if c.Mtime != "" {
		mtime, err := time.Parse(time.RFC3339, c.Mtime)
		if err != nil {
			return o, fmt.Errorf("failed to parse mtime %q: %w", c.Mtime, err)
		}
		o.Now = func() time.Time { return mtime }
	}

	return o, nil
}
