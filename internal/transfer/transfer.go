package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	dlhttp "github.com/joaquin95/loldownloader/internal/http"
)

// ErrTransferFailed is matched by every [*Error].
var ErrTransferFailed = errors.New("transfer failed")

// Kind says what a Target stands for.
type Kind int

const (
	KindManifest Kind = iota
	KindArchive
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindManifest:
		return "manifest"
	case KindArchive:
		return "archive"
	case KindFile:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Target pairs one remote object with one local path.
type Target struct {
	Kind      Kind
	Label     string // Display name, defaults to the local base name
	RemoteURL string
	LocalPath string

	// RemoteSize is the known remote size. Negative values are probed
	// through the transport.
	RemoteSize int64
}

func (t Target) label() string {
	if t.Label != "" {
		return t.Label
	}
	return filepath.Base(t.LocalPath)
}

// Transport moves bytes for a transfer. *http.Client implements it.
type Transport interface {
	Size(ctx context.Context, url string) (int64, error)
	Fetch(ctx context.Context, url string, w io.Writer, offset int64, progress dlhttp.ProgressFunc) (int64, error)
}

// Observer is notified about transfer progress. *progress.Reporter
// implements it.
type Observer interface {
	// Begin is called before bytes move. alreadyOnDisk is non-zero for a
	// resumed transfer.
	Begin(label string, alreadyOnDisk, total int64)

	// Update reports the number of bytes now in the local file.
	Update(bytesNow int64)

	End(err error)
}

// Outcome is what Transfer did with a target.
type Outcome int

const (
	OutcomeFresh        Outcome = iota // Downloaded from scratch
	OutcomeResumed                     // Appended to a partial local file
	OutcomeSkipped                     // Local size already matched
	OutcomeOversized                   // Local file larger than remote, left alone
	OutcomeRedownloaded                // Removed and downloaded again (force)
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeResumed:
		return "resumed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeOversized:
		return "oversized"
	case OutcomeRedownloaded:
		return "redownloaded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Options configures a transfer.
type Options struct {
	// Force removes a complete or oversized local file and downloads it again.
	Force bool

	// Logger receives skip and warning messages.
	// Default: discards
	Logger *slog.Logger

	// Observer is an optional progress observer.
	Observer Observer
}

// Result describes a finished transfer.
type Result struct {
	Outcome    Outcome
	LocalSize  int64 // Local size before the transfer, -1 if absent
	RemoteSize int64
	Written    int64 // Bytes received in this run
}

// Error is returned when a target could not be transferred.
type Error struct {
	Kind Kind
	URL  string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transfer %s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is ErrTransferFailed.
func (e *Error) Is(target error) bool { return target == ErrTransferFailed }

// Transfer brings target.LocalPath in line with target.RemoteURL.
//
// A missing local file is downloaded, a shorter one is resumed from its
// current size, an equal one is skipped and a larger one is left untouched
// with a warning. With opts.Force, equal and larger files are removed and
// downloaded again. Failed transfers leave their partial bytes on disk for
// the next run to resume.
func Transfer(ctx context.Context, tr Transport, target Target, opts Options) (Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("kind", target.Kind.String(), "path", target.LocalPath)

	fail := func(err error) (Result, error) {
		return Result{}, &Error{Kind: target.Kind, URL: target.RemoteURL, Path: target.LocalPath, Err: err}
	}

	remote := target.RemoteSize
	if remote < 0 {
		size, err := tr.Size(ctx, target.RemoteURL)
		if err != nil {
			return fail(err)
		}
		remote = size
	}

	res := Result{LocalSize: -1, RemoteSize: remote}
	st, err := os.Stat(target.LocalPath)
	switch {
	case err == nil:
		res.LocalSize = st.Size()
	case !errors.Is(err, fs.ErrNotExist):
		return fail(err)
	}

	redownload := false
	if res.LocalSize >= remote {
		switch {
		case !opts.Force && res.LocalSize == remote:
			logger.Debug("already downloaded, skipping", "size", remote)
			res.Outcome = OutcomeSkipped
			return res, nil
		case !opts.Force:
			logger.Warn("local file is larger than remote, leaving it untouched",
				"local_size", res.LocalSize,
				"remote_size", remote,
			)
			res.Outcome = OutcomeOversized
			return res, nil
		}

		logger.Info("removing existing file for forced download", "local_size", res.LocalSize)
		if err := os.Remove(target.LocalPath); err != nil {
			return fail(err)
		}
		redownload = true
	}

	offset := max(res.LocalSize, 0)
	if redownload {
		offset = 0
	}

	written, err := fetch(ctx, tr, target, offset, remote, opts.Observer)
	if err != nil && offset > 0 && errors.Is(err, dlhttp.ErrRangeNotSupported) {
		logger.Warn("server cannot resume, downloading from scratch", "offset", offset)
		offset = 0
		written, err = fetch(ctx, tr, target, 0, remote, opts.Observer)
	}
	if err != nil {
		return fail(err)
	}

	res.Written = written
	switch {
	case redownload:
		res.Outcome = OutcomeRedownloaded
	case offset > 0:
		res.Outcome = OutcomeResumed
	default:
		res.Outcome = OutcomeFresh
	}

	if got := offset + written; got != remote {
		logger.Warn("downloaded size differs from probed size", "size", got, "remote_size", remote)
	}
	return res, nil
}

// fetch streams the remote body into the local file, appending at offset
// or truncating when offset is zero.
func fetch(ctx context.Context, tr Transport, target Target, offset, total int64, obs Observer) (written int64, err error) {
	if err := os.MkdirAll(filepath.Dir(target.LocalPath), 0o755); err != nil {
		return 0, err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if offset > 0 {
		flags = os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(target.LocalPath, flags, 0o644)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if obs != nil {
		obs.Begin(target.label(), offset, total)
		defer func() { obs.End(err) }()
	}

	var progress dlhttp.ProgressFunc
	if obs != nil {
		progress = func(n, _ int64) { obs.Update(offset + n) }
	}

	return tr.Fetch(ctx, target.RemoteURL, f, offset, progress)
}
