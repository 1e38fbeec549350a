// Package esbuildhost runs postbuild plugins inside an esbuild build.
package esbuildhost

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/testlabtools/postbuild"
)

const modulePath = "github.com/evanw/esbuild"

type Options struct {
	// OutDirs receive a copy of the output in addition to the esbuild
	// outdir.
	OutDirs   []string
	PublicDir string
	Logger    *slog.Logger
}

// Plugin returns an esbuild plugin that takes over writing the build
// output and runs plugins on it. Write is disabled and Metafile enabled
// on the build.
func Plugin(o Options, plugins ...postbuild.Plugin) api.Plugin {
	l := o.Logger
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return api.Plugin{
		Name: "postbuild",
		Setup: func(build api.PluginBuild) {
			opts := build.InitialOptions
			opts.Write = false
			opts.Metafile = true

			build.OnEnd(func(result *api.BuildResult) (api.OnEndResult, error) {
				if len(result.Errors) > 0 {
					return api.OnEndResult{}, nil
				}

				b, err := NewBuild(opts, result, o)
				if err != nil {
					return api.OnEndResult{}, err
				}
				b.Log = l

				l.Debug("run postbuild",
					"host", b.Host.Version,
					"outDirs", b.OutDirs,
					"files", b.Bundle.Len(),
				)

				if err := postbuild.Run(context.Background(), b, plugins...); err != nil {
					return api.OnEndResult{Errors: Messages(err)}, nil
				}
				return api.OnEndResult{}, nil
			})
		},
	}
}

// Host returns the esbuild version linked into the running binary.
func Host() postbuild.HostInfo {
	h := postbuild.HostInfo{Name: "esbuild"}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return h
	}
	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		if dep.Replace != nil {
			dep = dep.Replace
		}
		h.Version = dep.Version
	}
	return h
}

type metafile struct {
	Outputs map[string]struct {
		Imports []struct {
			Path     string `json:"path"`
			Kind     string `json:"kind"`
			External bool   `json:"external,omitempty"`
		} `json:"imports"`
	} `json:"outputs"`
}

// NewBuild converts an esbuild result into a postbuild build.
func NewBuild(opts *api.BuildOptions, result *api.BuildResult, o Options) (*postbuild.Build, error) {
	wd := opts.AbsWorkingDir
	if wd == "" {
		var err error
		wd, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working dir: %w", err)
		}
	}

	outDir := opts.Outdir
	if outDir == "" && opts.Outfile != "" {
		outDir = filepath.Dir(opts.Outfile)
	}
	if outDir == "" {
		return nil, errors.New("outdir or outfile is required")
	}
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(wd, outDir)
	}

	rel := func(path string) (string, error) {
		if !filepath.IsAbs(path) {
			path = filepath.Join(wd, path)
		}
		r, err := filepath.Rel(outDir, path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve %q: %w", path, err)
		}
		return filepath.ToSlash(r), nil
	}

	dynamic := make(map[string][]string)
	if result.Metafile != "" {
		var meta metafile
		if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
			return nil, fmt.Errorf("failed to parse metafile: %w", err)
		}
		for out, output := range meta.Outputs {
			name, err := rel(out)
			if err != nil {
				return nil, err
			}
			for _, imp := range output.Imports {
				if imp.Kind != "dynamic-import" || imp.External {
					continue
				}
				target, err := rel(imp.Path)
				if err != nil {
					return nil, err
				}
				dynamic[name] = append(dynamic[name], target)
			}
		}
	}

	bundle := postbuild.NewBundle()
	for _, f := range result.OutputFiles {
		name, err := rel(f.Path)
		if err != nil {
			return nil, err
		}
		bundle.Emit(&postbuild.VirtualFile{
			Name:           name,
			Kind:           kindOf(name),
			Contents:       f.Contents,
			DynamicImports: dynamic[name],
		})
	}

	return &postbuild.Build{
		OutDirs:   append([]string{outDir}, o.OutDirs...),
		PublicDir: o.PublicDir,
		Bundle:    bundle,
		Host:      Host(),
	}, nil
}

func kindOf(name string) postbuild.Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".js", ".mjs", ".cjs":
		return postbuild.KindChunk
	}
	return postbuild.KindAsset
}

// Messages reports one message per failed task.
func Messages(err error) []api.Message {
	var agg *postbuild.AggregateError
	if !errors.As(err, &agg) {
		return []api.Message{{PluginName: "postbuild", Text: err.Error()}}
	}

	msgs := make([]api.Message, 0, len(agg.Errors))
	for _, te := range agg.Errors {
		msgs = append(msgs, api.Message{
			PluginName: "postbuild",
			Text:       te.Err.Error(),
			Detail:     fmt.Sprintf("%+v", te.Err),
		})
	}
	return msgs
}
