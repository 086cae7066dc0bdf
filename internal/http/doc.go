// Package http provides the transport used for release downloads.
//
// This package handles:
//   - HEAD requests to probe remote sizes
//   - Streaming GET requests, optionally resumed with an open-ended Range
//   - Retry with exponential backoff while establishing a request
//   - Optional bandwidth limiting
//
// # Usage
//
//	client := http.NewClient(http.Options{
//	    Timeout:       30 * time.Second,
//	    RetryAttempts: 5,
//	})
//
//	// Probe the remote size
//	size, err := client.Size(ctx, url)
//
//	// Resume a partial file at its current size
//	n, err := client.Fetch(ctx, url, f, localSize, func(written, total int64) {
//	    // ...
//	})
//
// A resumed Fetch fails with ErrRangeNotSupported unless the server answers
// 206 with a Content-Range starting at the requested offset, so bytes are
// never appended to the wrong position.
package http
