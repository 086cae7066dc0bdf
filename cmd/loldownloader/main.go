package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/joaquin95/loldownloader/internal/config"
	"github.com/joaquin95/loldownloader/internal/downloader"
	"github.com/joaquin95/loldownloader/internal/extract"
	"github.com/joaquin95/loldownloader/internal/transfer"
	"github.com/joaquin95/loldownloader/pkg/release"
)

// Exit codes
const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitInvalidArgs     = 2
	ExitSourceNotAccess = 3
	ExitInvalidManifest = 4
	ExitMissingArchive  = 5
	ExitFilesFailed     = 6
	ExitStorageError    = 7
	ExitInterrupted     = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	loggerCfg := config.Logger{Output: stderr}

	app := &cli.Command{
		Name:         "loldownloader",
		Usage:        "Download League of Legends game client releases",
		Writer:       stdout,
		ErrWriter:    stderr,
		Flags:        loggerCfg.Flags(),
		OnUsageError: usageError,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, err := loggerCfg.Configure()
			if err != nil {
				return ctx, &exitError{code: ExitInvalidArgs, err: err}
			}
			slog.SetDefault(logger)
			return ctx, nil
		},
		Commands: []*cli.Command{
			cmdDownload(stderr),
			cmdInspect(stdout),
			cmdHistory(stdout),
		},
	}

	err := app.Run(ctx, args)
	if err == nil {
		return ExitSuccess
	}

	code := exitCode(ctx, err)
	switch code {
	case ExitInterrupted:
		fmt.Fprintln(stderr, "\n[loldl] Interrupted, partial files are resumed on the next run")
	default:
		fmt.Fprintf(stderr, "[loldl] Error: %v\n", err)
	}
	return code
}

// exitError attaches an exit code to an error.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func usageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return &exitError{code: ExitInvalidArgs, err: err}
}

// exitCode maps a command error to a process exit code.
func exitCode(ctx context.Context, err error) int {
	var coded *exitError
	var failed *downloader.FilesFailedError
	switch {
	case errors.As(err, &coded):
		return coded.code
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.As(err, &failed):
		return ExitFilesFailed
	case errors.Is(err, release.ErrInvalidManifest), errors.Is(err, release.ErrMalformedLine):
		return ExitInvalidManifest
	case errors.Is(err, extract.ErrMissingArchive):
		return ExitMissingArchive
	case errors.Is(err, transfer.ErrTransferFailed):
		return ExitSourceNotAccess
	default:
		return ExitGeneralError
	}
}
