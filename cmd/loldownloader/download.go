package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v3"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/joaquin95/loldownloader/internal/codec"
	"github.com/joaquin95/loldownloader/internal/config"
	"github.com/joaquin95/loldownloader/internal/downloader"
	"github.com/joaquin95/loldownloader/internal/export"
	dlhttp "github.com/joaquin95/loldownloader/internal/http"
	"github.com/joaquin95/loldownloader/internal/journal"
	"github.com/joaquin95/loldownloader/internal/progress"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML configuration file",
		Sources: cli.EnvVars("LOLDL_CONFIG"),
	}
}

func cmdDownload(stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download a game client release",
		Description: `Fetches the package manifest of a release, then either the archives that
hold its files (default) or every file on its own, and writes the
decompressed files below the destination folder. Interrupted runs resume
where they stopped.`,
		OnUsageError: usageError,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "version", Aliases: []string{"v"}, Usage: "Game version to download, e.g. 0.0.0.130 (required)"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Download URL (default: " + config.DefaultBaseURL + ")"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Download path (default: " + config.DefaultDownloadPath + ")"},
			&cli.StringFlag{Name: "dest", Aliases: []string{"d"}, Usage: "Store downloaded files in this folder (default: " + config.DefaultDestRoot + ")"},
			&cli.BoolFlag{Name: "individual", Aliases: []string{"i"}, Usage: "(NOT RECOMMENDED) Download files individually instead of extracting them from archives"},
			&cli.BoolFlag{Name: "force", Aliases: []string{"r"}, Usage: "Remove existing files and download them again"},
			&cli.BoolFlag{Name: "keep", Aliases: []string{"k"}, Usage: "Keep archive files after extracting game files from them"},
			&cli.StringFlag{Name: "codec", Usage: "Decompression codec (deflate, zlib, zstd, auto)"},
			&cli.IntFlag{Name: "max-archives", Usage: "Highest accepted archive count"},
			&cli.StringFlag{Name: "bandwidth-limit", Usage: "Cap download speed per second, e.g. 4MiB"},
			&cli.BoolFlag{Name: "no-progress", Usage: "Disable progress output"},
			&cli.StringFlag{Name: "journal", Usage: "Journal database path (default: <dest>/.loldownloader/journal.db)"},
			&cli.StringFlag{Name: "export-bucket", Usage: "Mirror archives to this bucket before deleting them (s3://, gs://, file://)"},
			&cli.StringFlag{Name: "export-prefix", Usage: "Object prefix for exported archives (default: version)"},
			&cli.IntFlag{Name: "retry-attempts", Usage: "Max retry attempts per request"},
			&cli.DurationFlag{Name: "timeout", Usage: "Timeout for connecting and receiving headers"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return runDownload(ctx, cfg, stderr)
		},
	}
}

// loadConfig layers defaults, the config file, LOLDL_ variables and flags.
func loadConfig(c *cli.Command) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return config.Config{}, &exitError{code: ExitInvalidArgs, err: err}
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, &exitError{code: ExitInvalidArgs, err: err}
	}

	override := config.Config{
		BaseURL:      c.String("url"),
		DownloadPath: c.String("path"),
		Version:      c.String("version"),
		DestRoot:     c.String("dest"),
		Individual:   c.Bool("individual"),
		Force:        c.Bool("force"),
		KeepArchives: c.Bool("keep"),
		Codec:        c.String("codec"),
		MaxArchives:  int(c.Int("max-archives")),
		JournalPath:  c.String("journal"),
		Export: config.ExportConfig{
			Bucket: c.String("export-bucket"),
			Prefix: c.String("export-prefix"),
		},
		Timeout: c.Duration("timeout"),
	}
	if v := c.String("bandwidth-limit"); v != "" {
		limit, err := progress.ParseBytes(v)
		if err != nil {
			return config.Config{}, &exitError{code: ExitInvalidArgs, err: err}
		}
		override.BandwidthLimit = limit
	}
	cfg = cfg.Merge(override)

	if c.IsSet("retry-attempts") {
		cfg.Retry.Attempts = int(c.Int("retry-attempts"))
	}
	if c.Bool("no-progress") {
		cfg.Progress = false
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, &exitError{code: ExitInvalidArgs, err: err}
	}
	return cfg, nil
}

func runDownload(ctx context.Context, cfg config.Config, out io.Writer) error {
	logger := slog.Default()
	layout := cfg.Layout()

	dec, err := codec.ByName(cfg.Codec)
	if err != nil {
		return &exitError{code: ExitInvalidArgs, err: err}
	}

	opts := downloader.Options{
		Layout:       layout,
		Transport:    dlhttp.NewClient(cfg.HTTPOptions()),
		Codec:        dec,
		Individual:   cfg.Individual,
		Force:        cfg.Force,
		KeepArchives: cfg.KeepArchives,
		Logger:       logger,
	}

	logger.Info("options",
		"url", cfg.BaseURL,
		"path", cfg.DownloadPath,
		"version", cfg.Version,
		"dest", layout.DestRoot,
		"mode", opts.Mode(),
		"force", cfg.Force,
		"keep_archives", cfg.KeepArchives,
	)

	if cfg.Progress && progress.IsTerminal(out) {
		opts.Progress = progress.NewReporter(progress.Options{Output: out})
		opts.CounterOutput = out
	}

	j, err := journal.Open(cfg.Journal())
	if err != nil {
		return &exitError{code: ExitStorageError, err: err}
	}
	defer j.Close()
	if _, err := j.BeginRun(ctx, cfg.Version, opts.Mode()); err != nil {
		return &exitError{code: ExitStorageError, err: err}
	}
	opts.Journal = j

	if cfg.Export.Bucket != "" {
		exp, err := export.Open(ctx, cfg.Export.Bucket, cfg.ExportPrefix(), logger)
		if err != nil {
			return &exitError{code: ExitStorageError, err: err}
		}
		defer exp.Close()
		opts.Exporter = exp
	}

	d, err := downloader.New(opts)
	if err != nil {
		return err
	}

	summary, runErr := d.Run(ctx)

	if err := j.FinishRun(context.WithoutCancel(ctx), runStatus(runErr)); err != nil {
		logger.Warn("could not finish journal run", "error", err)
	}
	if summary != nil {
		printSummary(out, summary)
	}
	return runErr
}

func runStatus(err error) string {
	var failed *downloader.FilesFailedError
	switch {
	case err == nil:
		return journal.StatusCompleted
	case errors.As(err, &failed):
		return journal.StatusPartial
	default:
		return journal.StatusFailed
	}
}

func printSummary(w io.Writer, s *downloader.Summary) {
	if s.Manifest != nil {
		printStatistics(w, s.Manifest.Stats)
	}

	if s.FastPath {
		fmt.Fprintf(w, "[loldl] Release already complete (%d files)\n", s.FilesSkipped)
		return
	}

	if s.Mode == "archive" {
		fmt.Fprintf(w, "[loldl] Archives: %d fetched, %d not needed, %d failed, %d exported, %d deleted\n",
			s.ArchivesFetched, s.ArchivesSkipped, s.ArchivesFailed, s.ArchivesExported, s.ArchivesDeleted)
		if !s.SizesMatch && len(s.Archives) > 0 {
			fmt.Fprintln(w, "[loldl] Warning: archive sizes do not add up to file sizes")
		}
	}
	fmt.Fprintf(w, "[loldl] Files: %d done, %d skipped, %d failed\n", s.FilesDone, s.FilesSkipped, s.FilesFailed)
	fmt.Fprintf(w, "[loldl] Transferred %s in %s\n", progress.FormatBytes(s.BytesTransferred), progress.FormatDuration(s.Elapsed))
}
