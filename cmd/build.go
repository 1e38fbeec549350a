package cmd

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/spf13/cobra"

	"github.com/testlabtools/postbuild"
	"github.com/testlabtools/postbuild/esbuildhost"
)

var formats = map[string]api.Format{
	"esm":  api.FormatESModule,
	"cjs":  api.FormatCommonJS,
	"iife": api.FormatIIFE,
}

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build <entry>...",
	Short: "Bundle entry points with esbuild and post-process the output",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		setup, err := setupCommand(cmd, args)
		if err != nil {
			return err
		}
		flags := cmd.Flags()

		outDir, _ := flags.GetString("outdir")
		format, _ := flags.GetString("format")
		splitting, _ := flags.GetBool("splitting")
		minify, _ := flags.GetBool("minify")
		compress, _ := flags.GetBool("compress")
		tarball, _ := flags.GetBool("tar")

		f, ok := formats[format]
		if !ok {
			return fmt.Errorf("unknown format: %q", format)
		}

		o := esbuildhost.Options{
			OutDirs:   setup.config.OutDirs,
			PublicDir: setup.config.PublicDir,
			Logger:    setup.log,
		}
		if flags.Changed("public") {
			o.PublicDir, _ = flags.GetString("public")
		}
		if flags.Changed("mirror") {
			o.OutDirs, _ = flags.GetStringSlice("mirror")
		}

		var plugins []postbuild.Plugin
		if compress {
			c := setup.config.Compression
			if err := applyCompressionFlags(flags, &c); err != nil {
				return err
			}
			co, err := c.build(setup)
			if err != nil {
				return err
			}
			plugins = append(plugins, postbuild.NewCompression(co))
		}
		if tarball {
			c := setup.config.Tarball
			if err := applyTarballFlags(flags, &c); err != nil {
				return err
			}
			to, err := c.build(setup)
			if err != nil {
				return err
			}
			plugins = append(plugins, postbuild.NewTarball(to))
		}

		result := api.Build(api.BuildOptions{
			EntryPoints:       args,
			Bundle:            true,
			Outdir:            outDir,
			Format:            f,
			Splitting:         splitting && f == api.FormatESModule,
			MinifyWhitespace:  minify,
			MinifyIdentifiers: minify,
			MinifySyntax:      minify,
			LogLevel:          api.LogLevelSilent,
			Plugins:           []api.Plugin{esbuildhost.Plugin(o, plugins...)},
		})

		for _, w := range result.Warnings {
			setup.log.Warn("build warning", "text", w.Text, "location", location(w))
		}
		for _, e := range result.Errors {
			setup.log.Error("build error", "text", e.Text, "location", location(e), "plugin", e.PluginName)
			if detail, ok := e.Detail.(string); ok && setup.debug {
				setup.log.Debug("build error detail", "detail", detail)
			}
		}
		if n := len(result.Errors); n > 0 {
			return fmt.Errorf("build failed with %d errors", n)
		}

		setup.log.Info("build finished", "outdir", outDir, "files", len(result.OutputFiles))
		return nil
	},
}

func location(m api.Message) string {
	if m.Location == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d", m.Location.File, m.Location.Line, m.Location.Column)
}

func init() {
	Root.AddCommand(buildCmd)

	flags := buildCmd.Flags()
	flags.String("outdir", "dist", "output directory")
	flags.StringSlice("mirror", nil, "additional output directories")
	flags.String("public", "", "directory of static files copied into the output")
	flags.String("format", "esm", "output format ("+strings.Join([]string{"esm", "cjs", "iife"}, ", ")+")")
	flags.Bool("splitting", true, "split dynamic imports into chunks (esm only)")
	flags.Bool("minify", false, "minify the output")
	flags.Bool("compress", true, "compress the output")
	flags.Bool("tar", false, "pack the output into a tarball")

	addCompressionFlags(flags)
	addTarballFlags(flags)
}
