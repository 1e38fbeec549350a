package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type setup struct {
	env    map[string]string
	debug  bool
	log    *slog.Logger
	config Config
}

func setupCommand(cmd *cobra.Command, args []string) (setup, error) {
	env := getEnv()
	if val := cmd.Context().Value("env"); val != nil {
		env = val.(map[string]string)
	}

	debug := cmd.Flag("debug").Value.String() == "true"
	if !debug {
		debug = env["POSTBUILD_DEBUG"] != ""
	}

	if debug {
		setLogLevel(slog.LevelDebug)
	}

	l := slog.Default()

	var flags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		flags = append(flags, fmt.Sprintf("%s=%s", flag.Name, flag.Value))
	})

	l.Info(fmt.Sprintf("start %s command", cmd.Name()),
		"args", args,
		"flags", flags,
		"version", version,
		"commit", commit,
		"built", date,
	)

	if dsn := env["SENTRY_DSN"]; dsn != "" {
		l.Debug("sentry enabled", "dsn", mask(dsn))
	}

	path := cmd.Flag("config").Value.String()
	if path == "" {
		path = env["POSTBUILD_CONFIG"]
	}

	c, err := loadConfig(path)
	if err != nil {
		return setup{}, err
	}
	if path != "" {
		l.Debug("loaded config", "path", path)
	}

	return setup{
		env:    env,
		debug:  debug,
		log:    l,
		config: c,
	}, nil
}
