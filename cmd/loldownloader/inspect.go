package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/joaquin95/loldownloader/internal/config"
	dlhttp "github.com/joaquin95/loldownloader/internal/http"
	"github.com/joaquin95/loldownloader/internal/progress"
	"github.com/joaquin95/loldownloader/internal/transfer"
	"github.com/joaquin95/loldownloader/pkg/release"
)

func cmdInspect(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the records and archives of a local package manifest",
		ArgsUsage: "[MANIFEST]",
		Description: `Parses a package manifest without downloading anything. MANIFEST defaults
to the manifest inside the destination folder. With --probe the archive
sizes are requested from the server and compared with the file sizes.`,
		OnUsageError: usageError,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "version", Aliases: []string{"v"}, Usage: "Game version the manifest belongs to"},
			&cli.StringFlag{Name: "url", Aliases: []string{"u"}, Usage: "Download URL"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Download path"},
			&cli.StringFlag{Name: "dest", Aliases: []string{"d"}, Usage: "Destination folder"},
			&cli.BoolFlag{Name: "files", Aliases: []string{"f"}, Usage: "List every file record"},
			&cli.BoolFlag{Name: "probe", Usage: "Request archive sizes from the server"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.Default()
			if path := c.String("config"); path != "" {
				loaded, err := config.LoadFromFile(path)
				if err != nil {
					return &exitError{code: ExitInvalidArgs, err: err}
				}
				cfg = loaded
			}
			if err := cfg.LoadFromEnv(); err != nil {
				return &exitError{code: ExitInvalidArgs, err: err}
			}
			cfg = cfg.Merge(config.Config{
				BaseURL:      c.String("url"),
				DownloadPath: c.String("path"),
				Version:      c.String("version"),
				DestRoot:     c.String("dest"),
			})

			layout := cfg.Layout()
			path := layout.ManifestPath()
			if c.Args().Present() {
				path = c.Args().First()
			}

			var transport transfer.Transport
			if c.Bool("probe") {
				transport = dlhttp.NewClient(cfg.HTTPOptions())
			}
			return runInspect(ctx, stdout, path, layout, c.Bool("files"), transport)
		},
	}
}

func runInspect(ctx context.Context, w io.Writer, path string, layout release.Layout, listFiles bool, transport transfer.Transport) error {
	f, err := os.Open(path)
	if err != nil {
		return goerr.Wrap(err, "open manifest", goerr.V("path", path))
	}
	defer f.Close()

	m, err := release.Parse(f, layout)
	if err != nil {
		return err
	}
	archives := release.BuildArchiveIndex(m, layout)

	if transport != nil {
		for i := range archives {
			size, err := transport.Size(ctx, archives[i].RemoteURL)
			if err != nil {
				slog.Warn("could not probe archive size", "archive", archives[i].Name(), "error", err)
				continue
			}
			archives[i].DeclaredSize = size
		}
		if !release.CheckSizes(&m.Stats, archives) {
			slog.Warn("archive sizes do not add up to file sizes",
				"files", m.Stats.FileBytes,
				"archives", m.Stats.ArchiveBytes,
			)
		}
	} else {
		m.Stats.ArchiveCount = len(archives)
	}

	printStatistics(w, m.Stats)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVE\tFILES\tBYTES\tREMOTE SIZE\tURL")
	for _, a := range archives {
		count, bytes := 0, int64(0)
		for _, rec := range m.Files {
			if rec.ArchiveID == a.ID {
				count++
				bytes += rec.Size
			}
		}
		remote := "-"
		if a.DeclaredSize >= 0 {
			remote = progress.FormatBytes(a.DeclaredSize)
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", a.Name(), count, progress.FormatBytes(bytes), remote, a.RemoteURL)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !listFiles {
		return nil
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ARCHIVE\tOFFSET\tSIZE\tPATH")
	for _, rec := range m.Files {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", release.ArchiveName(rec.ArchiveID), rec.Offset, rec.Size, rec.LocalPath)
	}
	return tw.Flush()
}

func printStatistics(w io.Writer, s release.Statistics) {
	fmt.Fprintln(w, "Stats:")
	fmt.Fprintf(w, "  Total size (sum of individual files' sizes): %d B, %s\n", s.FileBytes, progress.FormatBytes(s.FileBytes))
	if s.ArchiveBytes > 0 {
		fmt.Fprintf(w, "  Total size (sum of archive files' sizes):    %d B, %s\n", s.ArchiveBytes, progress.FormatBytes(s.ArchiveBytes))
	}
	fmt.Fprintf(w, "  Max line length: %d\n", s.MaxLineLength)
	fmt.Fprintf(w, "  File count: %d\n", s.FileCount)
	fmt.Fprintf(w, "  Archive count: %d\n", s.ArchiveCount)
	fmt.Fprintln(w)
}
