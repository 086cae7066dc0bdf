package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// Common errors.
var (
	ErrRangeNotSupported = errors.New("http: server does not support range requests")
	ErrNotFound          = errors.New("http: resource not found")
	ErrForbidden         = errors.New("http: access forbidden")
	ErrUnauthorized      = errors.New("http: unauthorized")
	ErrServerError       = errors.New("http: server error")
	ErrUnknownSize       = errors.New("http: server did not report a content length")
	ErrShortBody         = errors.New("http: body ended before content length")
)

// Options configures the HTTP client.
type Options struct {
	// Timeout for establishing a request and receiving headers.
	// Bodies are not bounded by it.
	// Default: 30s
	Timeout time.Duration

	// RetryAttempts is the maximum number of retry attempts for request setup.
	// Default: 5
	RetryAttempts int

	// RetryBackoff is the initial backoff duration.
	// Default: 1s
	RetryBackoff time.Duration

	// RetryMaxBackoff is the maximum backoff duration.
	// Default: 30s
	RetryMaxBackoff time.Duration

	// BandwidthLimit caps body throughput in bytes per second. 0 disables it.
	BandwidthLimit int64
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		RetryAttempts:   5,
		RetryBackoff:    time.Second,
		RetryMaxBackoff: 30 * time.Second,
	}
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	Size int64 // -1 when the server sent no length
}

// ProgressFunc receives the bytes written so far and the expected body length
// of a single fetch. total is -1 when the server sent no length.
type ProgressFunc func(written, total int64)

// Client is an HTTP client for sequential release downloads.
type Client struct {
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: opts.Timeout,
		DisableCompression:    true, // We want raw bytes for range requests
	}

	c := &Client{
		client: &http.Client{Transport: transport},
		opts:   opts,
	}
	if opts.BandwidthLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.BandwidthLimit), int(opts.BandwidthLimit))
	}
	return c
}

// Head performs a HEAD request to get file metadata.
func (c *Client) Head(ctx context.Context, url string) (*FileInfo, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return nil, goerr.Wrap(err, "create request", goerr.V("url", url))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			return nil, goerr.Wrap(err, "head request", goerr.V("url", url))
		}

		return &FileInfo{Size: resp.ContentLength}, nil
	}

	return nil, goerr.Wrap(lastErr, "head request failed",
		goerr.V("url", url),
		goerr.V("attempts", c.opts.RetryAttempts+1),
	)
}

// Size returns the remote content length of url.
func (c *Client) Size(ctx context.Context, url string) (int64, error) {
	info, err := c.Head(ctx, url)
	if err != nil {
		return 0, err
	}
	if info.Size < 0 {
		return 0, goerr.Wrap(ErrUnknownSize, "probe size", goerr.V("url", url))
	}
	return info.Size, nil
}

// Fetch streams the body of url into w, starting at byte offset. A non-zero
// offset requires the server to answer with a matching partial response.
// progress, if set, is called after every write.
func (c *Client) Fetch(ctx context.Context, url string, w io.Writer, offset int64, progress ProgressFunc) (int64, error) {
	resp, err := c.open(ctx, url, offset)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if c.limiter != nil {
		body = &limitedReader{ctx: ctx, r: body, limiter: c.limiter}
	}

	cw := &progressWriter{w: w, total: resp.ContentLength, progress: progress}
	n, err := io.Copy(cw, body)
	if err != nil {
		return n, goerr.Wrap(err, "stream body", goerr.V("url", url), goerr.V("written", n))
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return n, goerr.Wrap(ErrShortBody, "stream body",
			goerr.V("url", url),
			goerr.V("written", n),
			goerr.V("expected", resp.ContentLength),
		)
	}

	return n, nil
}

// open sends the GET request for Fetch, retrying until headers arrive.
func (c *Client) open(ctx context.Context, url string, offset int64) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, goerr.Wrap(err, "create request", goerr.V("url", url))
		}
		if offset > 0 {
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		// Server errors are retryable
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("%w: %d %s", ErrServerError, resp.StatusCode, resp.Status)
			continue
		}

		if offset > 0 {
			if err := checkResume(resp, offset); err != nil {
				resp.Body.Close()
				return nil, goerr.Wrap(err, "resume request", goerr.V("url", url), goerr.V("offset", offset))
			}
			return resp, nil
		}

		if err := checkStatusCode(resp.StatusCode); err != nil {
			resp.Body.Close()
			return nil, goerr.Wrap(err, "get request", goerr.V("url", url))
		}

		return resp, nil
	}

	return nil, goerr.Wrap(lastErr, "get request failed",
		goerr.V("url", url),
		goerr.V("attempts", c.opts.RetryAttempts+1),
	)
}

// checkResume verifies that resp continues the body at offset.
func checkResume(resp *http.Response, offset int64) error {
	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusOK, http.StatusRequestedRangeNotSatisfiable:
		// A full body would be appended after the bytes already on disk.
		return ErrRangeNotSupported
	default:
		if err := checkStatusCode(resp.StatusCode); err != nil {
			return err
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	start, _, _, err := ParseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	if start != offset {
		return fmt.Errorf("%w: range starts at %d, want %d", ErrRangeNotSupported, start, offset)
	}
	return nil
}

// backoff waits for an exponentially increasing duration with jitter.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	backoff := c.opts.RetryBackoff * time.Duration(1<<uint(attempt-1))
	if backoff > c.opts.RetryMaxBackoff {
		backoff = c.opts.RetryMaxBackoff
	}

	// Add jitter: 0.5 to 1.5 of backoff
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}

// progressWriter reports cumulative writes to a ProgressFunc.
type progressWriter struct {
	w        io.Writer
	written  int64
	total    int64
	progress ProgressFunc
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += int64(n)
	if pw.progress != nil {
		pw.progress(pw.written, pw.total)
	}
	return n, err
}

// limitedReader throttles reads to the limiter's rate.
type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *rate.Limiter
}

func (lr *limitedReader) Read(p []byte) (int, error) {
	if burst := lr.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := lr.r.Read(p)
	if n > 0 {
		if werr := lr.limiter.WaitN(lr.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

// checkStatusCode returns an appropriate error for non-success status codes.
func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusForbidden:
		return ErrForbidden
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}

// ParseContentRange parses a Content-Range header value.
// Returns start, end, total bytes. Total may be -1 if unknown.
func ParseContentRange(header string) (start, end, total int64, err error) {
	// Format: bytes start-end/total or bytes start-end/*
	header = strings.TrimPrefix(header, "bytes ")
	parts := strings.Split(header, "/")
	if len(parts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	rangeParts := strings.Split(parts[0], "-")
	if len(rangeParts) != 2 {
		return 0, 0, 0, fmt.Errorf("invalid Content-Range format: %s", header)
	}

	start, err = strconv.ParseInt(rangeParts[0], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid start byte: %w", err)
	}

	end, err = strconv.ParseInt(rangeParts[1], 10, 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid end byte: %w", err)
	}

	if parts[1] == "*" {
		total = -1
	} else {
		total, err = strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid total bytes: %w", err)
		}
	}

	return start, end, total, nil
}
