// Command sigscan reads the scan signature from HUD screenshots and tells
// what it most likely belongs to.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sigscan/internal/app"
	"sigscan/internal/config"
	"sigscan/internal/errs"
	"sigscan/internal/version"

	"github.com/rs/zerolog"
)

// Exit codes.
const (
	exitOK             = 0
	exitError          = 1
	exitOCRUnavailable = 2
)

const usage = `Usage: sigscan [global flags] <command> [flags] [args]

Commands:
  scan [--json] [--debug] [--region x1,y1,x2,y2] <image>...
                      read and match the signature in each screenshot
  match [--json] <signature>...
                      interpret signature values without OCR
  watch [--dir D]     scan screenshots as they appear in a folder
  version             print build information

Global flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env is what every command needs.
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	stdout io.Writer
	stderr io.Writer
	opts   []app.Option
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...app.Option) int {
	fs := flag.NewFlagSet("sigscan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default: sigscan.{yaml,json,toml} in . or the user config dir)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	jsonLogs := fs.Bool("json-logs", false, "write logs as JSON")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitError
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitError
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Fprintln(stdout, version.String())
		return exitOK
	}

	log, err := newLogger(stderr, *logLevel, *jsonLogs)
	if err != nil {
		fmt.Fprintf(stderr, "sigscan: %v\n", err)
		return exitError
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitError
	}
	if cfg.Source != "" {
		log.Debug().Str("path", cfg.Source).Msg("config loaded")
	}

	e := &env{cfg: cfg, log: log, stdout: stdout, stderr: stderr, opts: opts}
	switch cmd {
	case "scan":
		return e.scan(ctx, rest)
	case "match":
		return e.match(ctx, rest)
	case "watch":
		return e.watch(ctx, rest)
	}
	fmt.Fprintf(stderr, "sigscan: unknown command %q\n\n", cmd)
	fs.Usage()
	return exitError
}

func newLogger(w io.Writer, level string, jsonLogs bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q", level)
	}
	if !jsonLogs {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errs.Is(err, errs.CodeOCRUnavailable):
		return exitOCRUnavailable
	}
	return exitError
}
