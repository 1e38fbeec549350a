package cmd

import (
	"log/slog"
	"os"
	"time"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func SetBuildVersion(v string, c string, d string) {
	version = v
	commit = c
	date = d
}

// Root represents the base command when called without any subcommands
var Root = &cobra.Command{
	Use:   "postbuild",
	Short: "Compress and archive bundler build output",

	// Dont show CLI usage on error.
	SilenceUsage:  true,
	SilenceErrors: true,
}

var programLevel = new(slog.LevelVar)

func setLogLevel(l slog.Level) {
	programLevel.Set(l)
}

func newLogger(sentry bool) *slog.Logger {
	handlers := []slog.Handler{
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      programLevel,
			TimeFormat: time.Kitchen,
		}),
	}
	if sentry {
		handlers = append(handlers, sentryslog.Option{
			Level:     slog.LevelWarn,
			AddSource: true,
		}.NewSentryHandler())
	}
	return slog.New(fanout(handlers...))
}

func init() {
	slog.SetDefault(newLogger(os.Getenv("SENTRY_DSN") != ""))

	Root.PersistentFlags().Bool("debug", false, "enable verbose debug logs")
	Root.PersistentFlags().String("config", "", "path to a YAML config file")
}
