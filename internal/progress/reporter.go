package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

const (
	prefix       = "[loldl]"
	defaultWidth = 80
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often the progress line is redrawn.
	// Default: 500ms
	UpdateInterval time.Duration

	// Width is the terminal width in columns. 0 detects it from Output.
	Width int

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// Reporter draws a single-line progress bar for one transfer at a time.
type Reporter struct {
	opts Options

	estimator RateEstimator
	label     string
	total     int64
	current   int64
	start     time.Time
	lastPrint time.Time
	active    bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Width <= 0 {
		opts.Width = terminalWidth(opts.Output)
	}

	return &Reporter{opts: opts}
}

// Begin starts tracking a transfer of total bytes, alreadyOnDisk of which are
// present from an earlier run.
func (r *Reporter) Begin(label string, alreadyOnDisk, total int64) {
	now := r.opts.Now()
	r.estimator.Reset(alreadyOnDisk, now)
	r.label = label
	r.total = total
	r.current = alreadyOnDisk
	r.start = now
	r.lastPrint = now
	r.active = true
	r.print()
}

// Update records that bytesNow bytes of the file are on disk.
func (r *Reporter) Update(bytesNow int64) {
	if !r.active {
		return
	}
	now := r.opts.Now()
	r.current = bytesNow
	r.estimator.Observe(now, bytesNow)

	if now.Sub(r.lastPrint) >= r.opts.UpdateInterval {
		r.lastPrint = now
		r.print()
	}
}

// End finishes the current transfer line.
func (r *Reporter) End(err error) {
	if !r.active {
		return
	}
	r.active = false

	now := r.opts.Now()
	if err != nil {
		fmt.Fprintf(r.opts.Output, "\r%s\n", r.fit(fmt.Sprintf("%s %s failed", prefix, r.label)))
		return
	}

	elapsed := now.Sub(r.start)
	transferred := r.current - r.estimator.Sample().BytesAlreadyOnDisk
	var avg float64
	if elapsed > 0 {
		avg = float64(transferred) / elapsed.Seconds()
	}
	line := fmt.Sprintf("%s %s 100.0%% | %s | %s/s | %s",
		prefix, r.label,
		humanize.IBytes(uint64(max(r.current, 0))),
		humanize.IBytes(uint64(avg)),
		formatDuration(elapsed),
	)
	fmt.Fprintf(r.opts.Output, "\r%s\n", r.fit(line))
}

// Line returns the progress line for the current state.
func (r *Reporter) Line() string {
	var percent float64
	if r.total > 0 {
		percent = float64(r.current) / float64(r.total) * 100
	}
	eta, ok := r.estimator.ETA(r.current, r.total)

	return fmt.Sprintf("%s %s %5.1f%% | %s / %s | %s/s | ETA %s",
		prefix, r.label, percent,
		humanize.IBytes(uint64(max(r.current, 0))),
		humanize.IBytes(uint64(max(r.total, 0))),
		humanize.IBytes(uint64(r.estimator.Rate())),
		FormatETA(eta, ok),
	)
}

func (r *Reporter) print() {
	fmt.Fprintf(r.opts.Output, "\r%s", r.fit(r.Line()))
}

// fit pads or truncates line to the terminal width so a shorter redraw
// overwrites the previous one.
func (r *Reporter) fit(line string) string {
	w := r.opts.Width - 1
	if len(line) > w {
		return line[:w]
	}
	return line + strings.Repeat(" ", w-len(line))
}

// Counter prints (i/n) progress for a sequence of small items.
type Counter struct {
	out   io.Writer
	total int
	n     int
}

// NewCounter creates a counter over total items writing to w.
func NewCounter(w io.Writer, total int) *Counter {
	if w == nil {
		w = os.Stderr
	}
	return &Counter{out: w, total: total}
}

// Next advances the counter and prints label.
func (c *Counter) Next(label string) {
	c.n++
	fmt.Fprintf(c.out, "\r%s (%d/%d) %s\033[K", prefix, c.n, c.total, label)
}

// Done terminates the counter line.
func (c *Counter) Done() {
	if c.n > 0 {
		fmt.Fprintln(c.out)
	}
}

// Count returns the number of items seen so far.
func (c *Counter) Count() int {
	return c.n
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes formats bytes with binary units (e.g. "1.5 MiB").
func FormatBytes(b int64) string {
	if b < 0 {
		return "-" + humanize.IBytes(uint64(-b))
	}
	return humanize.IBytes(uint64(b))
}

// FormatDuration is exported for use by other packages.
func FormatDuration(d time.Duration) string {
	return formatDuration(d)
}

// ParseBytes parses a human-readable byte string (e.g., "256MiB", "1MB").
func ParseBytes(s string) (int64, error) {
	n, err := humanize.ParseBytes(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid byte string: %s", s)
	}
	return int64(n), nil
}
