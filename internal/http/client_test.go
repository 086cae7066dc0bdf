package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

// rangeServer serves data with HEAD and open-ended Range support.
func rangeServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("Accept-Ranges", "bytes")
			return
		}

		rangeHeader := r.Header.Get("Range")
		if rangeHeader == "" {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Write(data)
			return
		}

		spec := strings.TrimSuffix(strings.TrimPrefix(rangeHeader, "bytes="), "-")
		start, _ := strconv.Atoi(spec)
		end := len(data) - 1

		w.Header().Set("Content-Range", "bytes "+strconv.Itoa(start)+"-"+strconv.Itoa(end)+"/"+strconv.Itoa(len(data)))
		w.Header().Set("Content-Length", strconv.Itoa(end-start+1))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start:])
	}))
	t.Cleanup(server.Close)
	return server
}

func fastRetryOptions() Options {
	opts := DefaultOptions()
	opts.RetryBackoff = 10 * time.Millisecond
	opts.RetryMaxBackoff = 50 * time.Millisecond
	return opts
}

func TestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Length", "1024")
		w.Header().Set("Accept-Ranges", "bytes")
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	info, err := client.Head(context.Background(), server.URL)
	gt.NoError(t, err)

	gt.Equal(t, info.Size, int64(1024))
}

func TestHeadNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(DefaultOptions())
	_, err := client.Head(context.Background(), server.URL)
	gt.True(t, errors.Is(err, ErrNotFound))
}

func TestSize(t *testing.T) {
	server := rangeServer(t, bytes.Repeat([]byte("x"), 4096))

	size, err := NewClient(DefaultOptions()).Size(context.Background(), server.URL)
	gt.NoError(t, err)
	gt.Equal(t, size, int64(4096))
}

func TestFetchFull(t *testing.T) {
	data := []byte("Hello, World! This is test data for range requests.")
	server := rangeServer(t, data)

	var calls int
	var lastWritten, lastTotal int64
	var buf bytes.Buffer

	n, err := NewClient(DefaultOptions()).Fetch(context.Background(), server.URL, &buf, 0, func(written, total int64) {
		calls++
		lastWritten, lastTotal = written, total
	})
	gt.NoError(t, err)

	gt.Equal(t, n, int64(len(data)))
	gt.Equal(t, buf.String(), string(data))
	gt.Number(t, calls).Greater(0)
	gt.Equal(t, lastWritten, int64(len(data)))
	gt.Equal(t, lastTotal, int64(len(data)))
}

func TestFetchResume(t *testing.T) {
	data := []byte("Hello, World! This is test data for range requests.")
	server := rangeServer(t, data)

	var buf bytes.Buffer
	n, err := NewClient(DefaultOptions()).Fetch(context.Background(), server.URL, &buf, 7, nil)
	gt.NoError(t, err)

	gt.Equal(t, n, int64(len(data)-7))
	gt.Equal(t, buf.String(), string(data[7:]))
}

func TestFetchResumeNotSupported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Server ignores Range header and returns full content
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	_, err := NewClient(DefaultOptions()).Fetch(context.Background(), server.URL, &buf, 2, nil)
	gt.True(t, errors.Is(err, ErrRangeNotSupported))
	gt.Equal(t, buf.Len(), 0)
}

func TestFetchResumeWrongStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-4/5")
		w.Header().Set("Content-Length", "5")
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	_, err := NewClient(DefaultOptions()).Fetch(context.Background(), server.URL, &buf, 2, nil)
	gt.True(t, errors.Is(err, ErrRangeNotSupported))
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	var buf bytes.Buffer
	_, err := NewClient(DefaultOptions()).Fetch(context.Background(), server.URL, &buf, 0, nil)
	gt.True(t, errors.Is(err, ErrNotFound))
}

func TestFetchBandwidthLimit(t *testing.T) {
	data := bytes.Repeat([]byte("y"), 3000)
	server := rangeServer(t, data)

	opts := DefaultOptions()
	opts.BandwidthLimit = 1000

	var buf bytes.Buffer
	start := time.Now()
	_, err := NewClient(opts).Fetch(context.Background(), server.URL, &buf, 0, nil)
	gt.NoError(t, err)

	// Burst covers the first 1000 bytes, the remaining 2000 take ~2s.
	gt.True(t, time.Since(start) >= 1500*time.Millisecond)
	gt.Equal(t, buf.Len(), len(data))
}

func TestRetryOnServerError(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Length", "10")
		w.Header().Set("Accept-Ranges", "bytes")
	}))
	defer server.Close()

	info, err := NewClient(fastRetryOptions()).Head(context.Background(), server.URL)
	gt.NoError(t, err)

	gt.Equal(t, attempts.Load(), int32(3))
	gt.Equal(t, info.Size, int64(10))
}

func TestRetryExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	opts := fastRetryOptions()
	opts.RetryAttempts = 2

	var buf bytes.Buffer
	_, err := NewClient(opts).Fetch(context.Background(), server.URL, &buf, 0, nil)
	gt.True(t, errors.Is(err, ErrServerError))
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header string
		start  int64
		end    int64
		total  int64
	}{
		{"bytes 0-99/1000", 0, 99, 1000},
		{"bytes 100-199/1000", 100, 199, 1000},
		{"bytes 0-99/*", 0, 99, -1},
	}

	for _, tt := range tests {
		start, end, total, err := ParseContentRange(tt.header)
		if err != nil {
			t.Errorf("ParseContentRange(%q): %v", tt.header, err)
			continue
		}
		if start != tt.start || end != tt.end || total != tt.total {
			t.Errorf("ParseContentRange(%q) = (%d, %d, %d), want (%d, %d, %d)",
				tt.header, start, end, total, tt.start, tt.end, tt.total)
		}
	}

	_, _, _, err := ParseContentRange("bytes 0-99")
	gt.Error(t, err)
}

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(DefaultOptions())
	_, err := client.Head(ctx, server.URL)
	gt.Error(t, err)
}
