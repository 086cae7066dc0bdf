package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/joaquin95/loldownloader/internal/config"
	"github.com/joaquin95/loldownloader/internal/journal"
)

func cmdHistory(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:         "history",
		Usage:        "List past download runs recorded in the journal",
		ArgsUsage:    "[RUN-ID]",
		Description:  "Without RUN-ID the most recent runs are listed. With RUN-ID every transfer and extraction of that run is printed.",
		OnUsageError: usageError,
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "dest", Aliases: []string{"d"}, Usage: "Destination folder whose journal to read"},
			&cli.StringFlag{Name: "journal", Usage: "Journal database path"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Number of runs to list, 0 for all"},
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
				DestRoot:    c.String("dest"),
				JournalPath: c.String("journal"),
			})

			return runHistory(ctx, stdout, cfg.Journal(), c.Args().First(), int(c.Int("limit")))
		},
	}
}

func runHistory(ctx context.Context, w io.Writer, path, runID string, limit int) error {
	if _, err := os.Stat(path); err != nil {
		return &exitError{
			code: ExitStorageError,
			err:  goerr.Wrap(err, "no journal found", goerr.V("path", path)),
		}
	}

	j, err := journal.Open(path)
	if err != nil {
		return &exitError{code: ExitStorageError, err: err}
	}
	defer j.Close()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	if runID != "" {
		entries, err := j.Entries(ctx, runID)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "TIME\tKIND\tOUTCOME\tBYTES\tPATH\tERROR")
		for _, e := range entries {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Time.Local().Format(time.DateTime), e.Kind, e.Outcome,
				humanize.IBytes(uint64(max(e.Bytes, 0))), e.Path, e.Error)
		}
		return tw.Flush()
	}

	runs, err := j.Runs(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "RUN\tVERSION\tMODE\tSTATUS\tSTARTED\tDURATION\tENTRIES\tFAILURES")
	for _, r := range runs {
		duration := "-"
		if !r.Finished.IsZero() {
			duration = r.Finished.Sub(r.Started).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			r.ID, r.Version, r.Mode, r.Status,
			humanize.Time(r.Started), duration, r.Entries, r.Failures)
	}
	return tw.Flush()
}
