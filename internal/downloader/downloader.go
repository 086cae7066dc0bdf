package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/joaquin95/loldownloader/internal/codec"
	"github.com/joaquin95/loldownloader/internal/export"
	"github.com/joaquin95/loldownloader/internal/extract"
	"github.com/joaquin95/loldownloader/internal/journal"
	"github.com/joaquin95/loldownloader/internal/progress"
	"github.com/joaquin95/loldownloader/internal/transfer"
	"github.com/joaquin95/loldownloader/pkg/release"
)

// Journal records transfer and extraction outcomes. *journal.Journal
// implements it.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) error
}

// Exporter copies archives to object storage. *export.Exporter implements it.
type Exporter interface {
	Upload(ctx context.Context, localPath, name string) (export.Result, error)
}

// Options configures the downloader.
type Options struct {
	// Layout resolves manifest names to URLs and local paths.
	Layout release.Layout

	// Transport probes sizes and fetches bytes. Required.
	Transport transfer.Transport

	// Codec decompresses staged files.
	// Default: raw deflate
	Codec codec.Codec

	// Individual downloads every file on its own instead of through archives.
	Individual bool

	// Force removes complete local files and downloads them again.
	Force bool

	// KeepArchives keeps archive files after extraction.
	KeepArchives bool

	// Logger receives run progress and warnings.
	// Default: discards
	Logger *slog.Logger

	// Progress is an optional per-transfer observer for the manifest and
	// archives. Individual files never report through it.
	Progress transfer.Observer

	// CounterOutput, if set, receives an (i/n) line per processed file.
	CounterOutput io.Writer

	// Journal is an optional run ledger.
	Journal Journal

	// Exporter, if set, receives every archive before local deletion.
	Exporter Exporter
}

// Mode returns "individual" or "archive".
func (o Options) Mode() string {
	if o.Individual {
		return "individual"
	}
	return "archive"
}

// FileFailure records a file that could not be produced.
type FileFailure struct {
	Path string
	Err  error
}

// FilesFailedError is returned when some files failed while the rest of the
// run completed. Failed files leave no staging or partial final file behind.
//
// Use errors.As to extract this error and inspect Failures for details.
type FilesFailedError struct {
	Failures []FileFailure
}

func (e *FilesFailedError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("1 file failed: %s: %v", e.Failures[0].Path, e.Failures[0].Err)
	}
	return fmt.Sprintf("%d files failed, first: %s: %v", len(e.Failures), e.Failures[0].Path, e.Failures[0].Err)
}

// Unwrap returns the individual file errors.
func (e *FilesFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Summary describes a finished run.
type Summary struct {
	Mode     string
	FastPath bool // Everything was already on disk, nothing was requested

	Manifest   *release.Manifest
	Archives   []release.ArchiveRecord
	SizesMatch bool

	ArchivesFetched int
	ArchivesSkipped int
	ArchivesFailed  int

	FilesDone    int
	FilesSkipped int
	FilesFailed  int

	ArchivesExported int
	ArchivesDeleted  int

	BytesTransferred int64
	Elapsed          time.Duration
}

// Downloader fetches one release into a local directory tree.
type Downloader struct {
	opts      Options
	logger    *slog.Logger
	extractor *extract.Extractor
}

// New creates a Downloader.
func New(opts Options) (*Downloader, error) {
	if opts.Transport == nil {
		return nil, goerr.New("transport is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Codec == nil {
		c, err := codec.ByName(codec.Deflate)
		if err != nil {
			return nil, err
		}
		opts.Codec = c
	}

	return &Downloader{
		opts:      opts,
		logger:    opts.Logger,
		extractor: extract.New(opts.Codec, opts.Logger),
	}, nil
}

// run is the mutable state of one Run.
type run struct {
	summary  *Summary
	failures []FileFailure
	failed   map[uint32]bool // Archives whose transfer failed
}

// Run downloads the manifest, then the archives in ascending id order (archive
// mode), then produces every file in manifest order.
//
// Fatal conditions (manifest transfer or parse failure, missing archive,
// cancellation) return immediately. Per-file failures are collected into a
// *FilesFailedError returned together with the summary.
func (d *Downloader) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	r := &run{
		summary: &Summary{Mode: d.opts.Mode()},
		failed:  make(map[uint32]bool),
	}
	defer func() { r.summary.Elapsed = time.Since(start) }()

	if !d.opts.Force {
		if m, ok := d.complete(); ok {
			d.logger.Info("release already complete, nothing to do",
				"version", d.opts.Layout.Version,
				"files", len(m.Files),
			)
			r.summary.FastPath = true
			r.summary.Manifest = m
			r.summary.FilesSkipped = len(m.Files)
			d.record(ctx, journal.Entry{Kind: "manifest", Path: d.opts.Layout.ManifestPath(), Outcome: "complete"})
			return r.summary, nil
		}
	}

	m, err := d.fetchManifest(ctx, r)
	if err != nil {
		return r.summary, err
	}
	r.summary.Manifest = m

	if d.opts.Individual {
		err = d.runIndividual(ctx, r, m)
	} else {
		err = d.runArchives(ctx, r, m)
	}
	if err != nil {
		return r.summary, err
	}

	r.summary.FilesFailed = len(r.failures)
	if len(r.failures) > 0 {
		return r.summary, &FilesFailedError{Failures: r.failures}
	}
	return r.summary, nil
}

// complete reports whether a local manifest parses and every file it lists
// is done.
func (d *Downloader) complete() (*release.Manifest, bool) {
	f, err := os.Open(d.opts.Layout.ManifestPath())
	if err != nil {
		return nil, false
	}
	defer f.Close()

	m, err := release.Parse(f, d.opts.Layout)
	if err != nil {
		return nil, false
	}
	for _, rec := range m.Files {
		if !done(rec) {
			return nil, false
		}
	}
	return m, true
}

func (d *Downloader) fetchManifest(ctx context.Context, r *run) (*release.Manifest, error) {
	layout := d.opts.Layout
	target := transfer.Target{
		Kind:       transfer.KindManifest,
		Label:      release.ManifestName,
		RemoteURL:  layout.ManifestURL(),
		LocalPath:  layout.ManifestPath(),
		RemoteSize: -1,
	}

	d.logger.Info("fetching manifest", "url", target.RemoteURL, "version", layout.Version)
	res, err := transfer.Transfer(ctx, d.opts.Transport, target, transfer.Options{
		Logger:   d.logger,
		Observer: d.opts.Progress,
	})
	d.recordTransfer(ctx, target, res, err)
	if err != nil {
		return nil, goerr.Wrap(err, "fetch manifest", goerr.V("url", target.RemoteURL))
	}
	r.summary.BytesTransferred += res.Written

	f, err := os.Open(target.LocalPath)
	if err != nil {
		return nil, goerr.Wrap(err, "open manifest", goerr.V("path", target.LocalPath))
	}
	defer f.Close()

	m, err := release.Parse(f, layout)
	if err != nil {
		return nil, goerr.Wrap(err, "parse manifest", goerr.V("path", target.LocalPath))
	}

	d.logger.Info("manifest parsed",
		"files", m.Stats.FileCount,
		"file_bytes", progress.FormatBytes(m.Stats.FileBytes),
		"archives", len(m.ArchiveIDs),
		"max_line_length", m.Stats.MaxLineLength,
	)
	return m, nil
}

// pending returns the records that still need work. Forced runs remove
// existing final files.
func (d *Downloader) pending(r *run, m *release.Manifest) ([]release.FileRecord, error) {
	var todo []release.FileRecord
	for _, rec := range m.Files {
		if !done(rec) {
			todo = append(todo, rec)
			continue
		}
		if !d.opts.Force {
			r.summary.FilesSkipped++
			continue
		}
		if err := os.Remove(rec.LocalPath); err != nil {
			return nil, goerr.Wrap(err, "remove file for forced download", goerr.V("path", rec.LocalPath))
		}
		todo = append(todo, rec)
	}
	return todo, nil
}

func (d *Downloader) runArchives(ctx context.Context, r *run, m *release.Manifest) error {
	layout := d.opts.Layout
	archives := release.BuildArchiveIndex(m, layout)

	for i := range archives {
		size, err := d.opts.Transport.Size(ctx, archives[i].RemoteURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Warn("could not probe archive size", "archive", archives[i].Name(), "error", err)
			continue
		}
		archives[i].DeclaredSize = size
	}

	r.summary.Archives = archives
	r.summary.SizesMatch = release.CheckSizes(&m.Stats, archives)
	if !r.summary.SizesMatch {
		d.logger.Warn("archive sizes do not add up to file sizes",
			"file_bytes", m.Stats.FileBytes,
			"archive_bytes", m.Stats.ArchiveBytes,
		)
	}
	d.logger.Info("release statistics",
		"files", m.Stats.FileCount,
		"file_bytes", progress.FormatBytes(m.Stats.FileBytes),
		"archives", m.Stats.ArchiveCount,
		"archive_bytes", progress.FormatBytes(m.Stats.ArchiveBytes),
	)

	todo, err := d.pending(r, m)
	if err != nil {
		return err
	}

	needed := make(map[uint32]bool)
	for _, rec := range todo {
		needed[rec.ArchiveID] = true
	}

	byID := make(map[uint32]release.ArchiveRecord, len(archives))
	var fetch []release.ArchiveRecord
	for _, a := range archives {
		byID[a.ID] = a
		if needed[a.ID] {
			fetch = append(fetch, a)
		} else {
			r.summary.ArchivesSkipped++
		}
	}

	for i, a := range fetch {
		d.logger.Info("fetching archive", "archive", a.Name(), "progress", fmt.Sprintf("%d/%d", i+1, len(fetch)))

		target := transfer.Target{
			Kind:       transfer.KindArchive,
			Label:      a.Name(),
			RemoteURL:  a.RemoteURL,
			LocalPath:  a.LocalPath,
			RemoteSize: a.DeclaredSize,
		}
		res, err := transfer.Transfer(ctx, d.opts.Transport, target, transfer.Options{
			Force:    d.opts.Force,
			Logger:   d.logger,
			Observer: d.opts.Progress,
		})
		d.recordTransfer(ctx, target, res, err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("archive transfer failed", "archive", a.Name(), "error", err)
			r.failed[a.ID] = true
			r.summary.ArchivesFailed++
			continue
		}
		if a.DeclaredSize < 0 {
			a.DeclaredSize = res.RemoteSize
			byID[a.ID] = a
		}
		r.summary.ArchivesFetched++
		r.summary.BytesTransferred += res.Written
	}

	counter := d.counter(len(todo))
	for _, rec := range todo {
		if err := ctx.Err(); err != nil {
			return err
		}
		if counter != nil {
			counter.Next(rec.LocalPath)
		}

		err := d.extractor.Extract(rec, byID[rec.ArchiveID])
		d.recordFile(ctx, rec, "extracted", err)
		if errors.Is(err, extract.ErrMissingArchive) {
			if counter != nil {
				counter.Done()
			}
			return err
		}
		if err != nil {
			d.fileFailed(r, rec, err)
			continue
		}
		r.summary.FilesDone++
	}
	if counter != nil {
		counter.Done()
	}

	d.finishArchives(ctx, r, archives)
	return nil
}

// finishArchives exports and deletes local archives. Archives whose transfer
// failed are kept so the next run can resume them.
func (d *Downloader) finishArchives(ctx context.Context, r *run, archives []release.ArchiveRecord) {
	for _, a := range archives {
		if r.failed[a.ID] || !exists(a.LocalPath) {
			continue
		}

		if d.opts.Exporter != nil {
			res, err := d.opts.Exporter.Upload(ctx, a.LocalPath, a.Name())
			if err != nil {
				d.logger.Warn("archive export failed, keeping local copy", "archive", a.Name(), "error", err)
				continue
			}
			if res.Uploaded {
				r.summary.ArchivesExported++
			}
		}

		if d.opts.KeepArchives {
			continue
		}
		if err := os.Remove(a.LocalPath); err != nil {
			d.logger.Warn("could not delete archive", "path", a.LocalPath, "error", err)
			continue
		}
		r.summary.ArchivesDeleted++
	}
}

func (d *Downloader) runIndividual(ctx context.Context, r *run, m *release.Manifest) error {
	d.logger.Info("release statistics",
		"files", m.Stats.FileCount,
		"file_bytes", progress.FormatBytes(m.Stats.FileBytes),
	)

	todo, err := d.pending(r, m)
	if err != nil {
		return err
	}

	counter := d.counter(len(todo))
	defer func() {
		if counter != nil {
			counter.Done()
		}
	}()

	for _, rec := range todo {
		if err := ctx.Err(); err != nil {
			return err
		}
		if counter != nil {
			counter.Next(rec.LocalPath)
		}

		target := transfer.Target{
			Kind:       transfer.KindFile,
			RemoteURL:  rec.RemoteURL,
			LocalPath:  rec.StagingPath,
			RemoteSize: -1,
		}
		res, err := transfer.Transfer(ctx, d.opts.Transport, target, transfer.Options{
			Force:  d.opts.Force,
			Logger: d.logger,
		})
		d.recordTransfer(ctx, target, res, err)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.fileFailed(r, rec, err)
			continue
		}
		r.summary.BytesTransferred += res.Written

		err = extract.Finalize(rec.StagingPath, rec.LocalPath, d.opts.Codec)
		d.recordFile(ctx, rec, "decompressed", err)
		if err != nil {
			d.fileFailed(r, rec, err)
			continue
		}
		r.summary.FilesDone++
	}
	return nil
}

func (d *Downloader) counter(total int) *progress.Counter {
	if d.opts.CounterOutput == nil || total == 0 {
		return nil
	}
	return progress.NewCounter(d.opts.CounterOutput, total)
}

func (d *Downloader) fileFailed(r *run, rec release.FileRecord, err error) {
	d.logger.Error("file failed", "path", rec.LocalPath, "error", err)
	r.failures = append(r.failures, FileFailure{Path: rec.LocalPath, Err: err})
}

func (d *Downloader) recordTransfer(ctx context.Context, t transfer.Target, res transfer.Result, err error) {
	e := journal.Entry{
		Kind:    t.Kind.String(),
		Path:    t.LocalPath,
		URL:     t.RemoteURL,
		Outcome: res.Outcome.String(),
		Bytes:   res.Written,
	}
	if err != nil {
		e.Outcome = "failed"
		e.Error = err.Error()
	}
	d.record(ctx, e)
}

func (d *Downloader) recordFile(ctx context.Context, rec release.FileRecord, outcome string, err error) {
	e := journal.Entry{
		Kind:    "extract",
		Path:    rec.LocalPath,
		URL:     rec.RemoteURL,
		Outcome: outcome,
		Bytes:   rec.Size,
	}
	if err != nil {
		e.Outcome = "failed"
		e.Error = err.Error()
	}
	d.record(ctx, e)
}

func (d *Downloader) record(ctx context.Context, e journal.Entry) {
	if d.opts.Journal == nil {
		return
	}
	if err := d.opts.Journal.Record(context.WithoutCancel(ctx), e); err != nil {
		d.logger.Warn("could not write journal entry", "path", e.Path, "error", err)
	}
}

// done reports whether rec's final file exists and no staging file is left.
// Finalize removes the staging file last, so a leftover one marks an
// interrupted extraction.
func done(rec release.FileRecord) bool {
	return exists(rec.LocalPath) && !exists(rec.StagingPath)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
