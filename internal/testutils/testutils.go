// Package testutils provides shared test infrastructure: a range-capable HTTP
// server that counts requests and a builder for synthetic releases.
package testutils

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/joaquin95/loldownloader/internal/codec"
	"github.com/joaquin95/loldownloader/pkg/release"
)

// TestFile defines a test file with size and data.
type TestFile struct {
	Name string
	Size int64
	Data []byte
}

// GenerateTestData generates test data of the given size.
// For files <= 10MB, uses deterministic pattern. For larger files, uses random data.
func GenerateTestData(t *testing.T, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i % 256)
		}
	} else {
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("generate random data: %v", err)
		}
	}
	return data
}

// Server serves in-memory files with HEAD and Range support and records
// every request it receives.
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	files map[string][]byte
	log   []string
}

// StartTestHTTPServer starts an HTTP server that serves test files with range request support.
// The server is closed when the test ends.
func StartTestHTTPServer(t *testing.T, files []TestFile) *Server {
	t.Helper()

	s := &Server{files: make(map[string][]byte)}
	for _, f := range files {
		s.files["/"+strings.TrimPrefix(f.Name, "/")] = f.Data
	}

	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Put publishes data at the URL path p.
func (s *Server) Put(p string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files["/"+strings.TrimPrefix(p, "/")] = data
}

// Remove unpublishes the URL path p.
func (s *Server) Remove(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, "/"+strings.TrimPrefix(p, "/"))
}

// PutURL publishes data at the path of a full URL on this server.
func (s *Server) PutURL(u string, data []byte) {
	s.Put(strings.TrimPrefix(u, s.URL), data)
}

// Requests returns the number of requests served so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.log)
}

// RequestLog returns "METHOD path [range]" for every request served so far.
func (s *Server) RequestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.log)
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = nil
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	rangeHeader := r.Header.Get("Range")

	s.mu.Lock()
	entry := r.Method + " " + r.URL.Path
	if rangeHeader != "" {
		entry += " " + rangeHeader
	}
	s.log = append(s.log, entry)
	data, ok := s.files[r.URL.Path]
	s.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	size := int64(len(data))

	if r.Method == http.MethodHead {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("ETag", fmt.Sprintf(`"%s"`, r.URL.Path))
		return
	}

	if rangeHeader == "" {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("ETag", fmt.Sprintf(`"%s"`, r.URL.Path))
		w.Write(data)
		return
	}

	// Parse range header: bytes=start-end or bytes=start-
	rangeHeader = strings.TrimPrefix(rangeHeader, "bytes=")
	parts := strings.Split(rangeHeader, "-")
	start, _ := strconv.ParseInt(parts[0], 10, 64)
	end := size - 1
	if len(parts) > 1 && parts[1] != "" {
		end, _ = strconv.ParseInt(parts[1], 10, 64)
	}
	if end >= size {
		end = size - 1
	}
	if start >= size {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(end-start+1, 10))
	w.Header().Set("ETag", fmt.Sprintf(`"%s"`, r.URL.Path))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(data[start : end+1])
}

// Asset is one uncompressed game file of a synthetic release.
type Asset struct {
	Path    string // Path below files/, with the compressed extension (e.g. DATA/a.luaobj.compressed)
	Archive uint32
	Data    []byte
}

// Release is a synthetic release: manifest text, archive blobs and the
// individually addressed compressed files.
type Release struct {
	Version    string
	Manifest   []byte
	Archives   map[uint32][]byte
	Compressed map[string][]byte // Keyed by manifest name
	Assets     []Asset
}

// ManifestName returns the manifest name of an asset path.
func (r *Release) ManifestName(assetPath string) string {
	return fmt.Sprintf("/projects/lol_game_client/releases/%s/files/%s", r.Version, assetPath)
}

// BuildRelease compresses every asset with codecName, packs them back to back
// into their archives and writes the matching manifest.
func BuildRelease(t *testing.T, version, codecName string, assets []Asset) *Release {
	t.Helper()

	r := &Release{
		Version:    version,
		Archives:   make(map[uint32][]byte),
		Compressed: make(map[string][]byte),
		Assets:     assets,
	}

	var manifest bytes.Buffer
	manifest.WriteString(release.ManifestMagic + "\r\n")

	for _, a := range assets {
		compressed, err := codec.Compress(codecName, a.Data)
		if err != nil {
			t.Fatalf("compress %s: %v", a.Path, err)
		}

		name := r.ManifestName(a.Path)
		offset := len(r.Archives[a.Archive])
		r.Archives[a.Archive] = append(r.Archives[a.Archive], compressed...)
		r.Compressed[name] = compressed

		fmt.Fprintf(&manifest, "%s,%s,%d,%d,0\r\n", name, release.ArchiveName(a.Archive), offset, len(compressed))
	}

	r.Manifest = manifest.Bytes()
	return r
}

// Publish serves the manifest, every archive and every individual file on s
// at the locations layout resolves them to. layout.BaseURL must be s.URL.
func (r *Release) Publish(s *Server, layout release.Layout) {
	s.PutURL(layout.ManifestURL(), r.Manifest)
	for id, data := range r.Archives {
		s.PutURL(layout.ArchiveURL(id), data)
	}
	for name, data := range r.Compressed {
		s.PutURL(layout.FileURL(name), data)
	}
}

// CompareReaderToData compares reader output with expected data in chunks.
// This is memory-efficient for large files.
func CompareReaderToData(t *testing.T, reader io.Reader, expected []byte) {
	t.Helper()

	chunkSize := 1024 * 1024 // 1MB
	buf := make([]byte, chunkSize)
	offset := 0

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if offset+n > len(expected) {
				t.Fatalf("read more data than expected: offset=%d, n=%d, expected len=%d",
					offset, n, len(expected))
			}
			if !bytes.Equal(buf[:n], expected[offset:offset+n]) {
				t.Fatalf("data mismatch at offset %d", offset)
			}
			offset += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read error at offset %d: %v", offset, err)
		}
	}

	if offset != len(expected) {
		t.Fatalf("incomplete read: got %d bytes, want %d", offset, len(expected))
	}
}
