package main

import (
	"os"
	"strings"

	"github.com/alecthomas/kong"
	kongtoml "github.com/alecthomas/kong-toml"
	kongyaml "github.com/alecthomas/kong-yaml"
	"golang.org/x/term"

	"github.com/padbridge/padbridge/internal/config"
	"github.com/padbridge/padbridge/internal/configpaths"
	"github.com/padbridge/padbridge/internal/log"
)

func main() {
	userCfg := findUserConfig(os.Args[1:])
	jsonPaths, yamlPaths, tomlPaths := configpaths.ConfigCandidatePaths(userCfg)

	var cli config.CLI
	ctx := kong.Parse(&cli,
		kong.Name("padbridge"),
		kong.Description(description()),
		kong.UsageOnError(),
		helpOptions(),
		kong.Vars{"version": buildVersion()},
		// Flags and env override config file values.
		kong.Configuration(kong.JSON, jsonPaths...),
		kong.Configuration(kongyaml.Loader, yamlPaths...),
		kong.Configuration(kongtoml.Loader, tomlPaths...),
	)

	logger, closeFiles, err := log.SetupLogger(cli.Log.Level, cli.Log.File)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		os.Exit(2)
	}

	rawLogger, rawCloser := setupRawLogger(cli.Log, logger.Error)
	if rawCloser != nil {
		closeFiles = append(closeFiles, rawCloser)
	}

	ctx.Bind(logger)
	ctx.BindTo(rawLogger, (*log.RawLogger)(nil))

	err = ctx.Run()
	for _, c := range closeFiles {
		_ = c.Close()
	}
	ctx.FatalIfErrorf(err)
}

// helpOptions wraps help text to the terminal width when stdout is a terminal.
func helpOptions() kong.Option {
	opts := kong.HelpOptions{Compact: true}
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			opts.WrapUpperBound = w
		}
	}
	return kong.ConfigureHelp(opts)
}

// setupRawLogger returns the USB-IP packet logger: the raw log file if set,
// stdout at trace level, otherwise a logger that drops everything.
func setupRawLogger(cfg config.Log, logErr func(msg string, args ...any)) (log.RawLogger, *os.File) {
	if cfg.RawFile != "" {
		f, err := os.OpenFile(cfg.RawFile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
		if err != nil {
			logErr("failed to open raw log file", "file", cfg.RawFile, "error", err)
			return log.NewRaw(nil), nil
		}
		return log.NewRaw(f), f
	}
	if strings.EqualFold(cfg.Level, "trace") {
		return log.NewRaw(os.Stdout), nil
	}
	return log.NewRaw(nil), nil
}

func findUserConfig(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "--config=") {
			return a[len("--config="):]
		}
		if a == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return os.Getenv("PADBRIDGE_CONFIG")
}
