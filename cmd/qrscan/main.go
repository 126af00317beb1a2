// Command qrscan scans secure QR codes and decodes them against the backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/and161185/qrscan/internal/config"
	"github.com/and161185/qrscan/internal/decodeapi"
	"github.com/and161185/qrscan/internal/localstore"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `qrscan
Usage:
  qrscan [-v] <cmd> [args]

Commands:
  version
  login    -token <jwt>                          (saves token)
  scan     [-loop] <image>...                    (scan images as a camera)
  decode   -data <raw>                           (decode a QR string)
  inspect  -data <raw>                           (local URI decoding only)
  encode   -content-id <id> [-field k=v]... [-png file] [-size px]
  history  [-n 10]                               (requires QRSCAN_DATABASE_URL)
`

// env bundles what every command needs.
type env struct {
	cfg   *config.Config
	store *localstore.Store
	log   *zap.Logger
	in    io.Reader
	out   io.Writer
	errw  io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses global flags and dispatches. It returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("qrscan", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "verbose (development) logging")
	fs.Usage = func() { fmt.Fprint(stderr, usageText) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	log, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	e := &env{
		cfg:   cfg,
		store: localstore.New(localstore.Dir(cfg.ConfigDir)),
		log:   log,
		in:    stdin,
		out:   stdout,
		errw:  stderr,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "qrscan %s (%s)\n", version, buildDate)
		return 0
	case "login":
		err = cmdLogin(e, rest)
	case "scan":
		err = cmdScan(ctx, e, rest)
	case "decode":
		err = cmdDecode(ctx, e, rest)
	case "inspect":
		err = cmdInspect(e, rest)
	case "encode":
		err = cmdEncode(e, rest)
	case "history":
		err = cmdHistory(ctx, e, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	return e.exitCode(err)
}

var errUsage = errors.New("usage")

func (e *env) exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		return 2
	case errors.As(err, new(errShown)):
		e.log.Debug("scan ended", zap.Error(err))
		return 1
	}
	e.log.Debug("command failed", zap.Error(err))
	fmt.Fprintln(e.errw, decodeapi.FriendlyMessage(err))
	return 1
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}
