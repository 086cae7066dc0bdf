package progress

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
)

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{0, "0 B"},
		{100, "100 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1024 * 1024, "1.0 MiB"},
		{256 * 1024 * 1024, "256 MiB"},
		{1024 * 1024 * 1024, "1.0 GiB"},
		{1024 * 1024 * 1024 * 1024, "1.0 TiB"},
		{2.5 * 1024 * 1024 * 1024 * 1024, "2.5 TiB"},
	}

	for _, tt := range tests {
		result := FormatBytes(tt.input)
		if result != tt.expected {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"100", 100},
		{"100B", 100},
		{"1KiB", 1024},
		{"1.5KiB", 1536},
		{"256MiB", 256 * 1024 * 1024},
		{"1GiB", 1024 * 1024 * 1024},
		{"1TiB", 1024 * 1024 * 1024 * 1024},
		// SI units
		{"1KB", 1000},
		{"1MB", 1000 * 1000},
		{"1GB", 1000 * 1000 * 1000},
	}

	for _, tt := range tests {
		result, err := ParseBytes(tt.input)
		if err != nil {
			t.Errorf("ParseBytes(%q): %v", tt.input, err)
			continue
		}
		if result != tt.expected {
			t.Errorf("ParseBytes(%q) = %d, want %d", tt.input, result, tt.expected)
		}
	}
}

func TestParseBytesInvalid(t *testing.T) {
	_, err := ParseBytes("invalid")
	if err == nil {
		t.Error("expected error for invalid input")
	}
}

func TestFormatDuration(t *testing.T) {
	gt.Equal(t, FormatDuration(42*time.Second), "42s")
	gt.Equal(t, FormatDuration(3*time.Minute+5*time.Second), "3m 5s")
	gt.Equal(t, FormatDuration(2*time.Hour+1*time.Minute+9*time.Second), "2h 1m 9s")
}

// fakeClock returns a controllable time source.
type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestReporterLine(t *testing.T) {
	clock := newFakeClock()
	var out bytes.Buffer
	r := NewReporter(Options{Output: &out, Width: 200, Now: clock.Now})

	r.Begin("BIN_0x00000001", 512*1024, 2*1024*1024)
	gt.String(t, out.String()).Contains("[loldl] BIN_0x00000001  25.0%")
	gt.String(t, out.String()).Contains("ETA --:--:--")

	clock.Advance(time.Second)
	r.Update(1024 * 1024)

	line := r.Line()
	gt.String(t, line).Contains("50.0%")
	gt.String(t, line).Contains("1.0 MiB / 2.0 MiB")
	gt.String(t, line).Contains("512 KiB/s")
	gt.String(t, line).Contains("ETA 00:00:02")

	clock.Advance(time.Second)
	r.Update(2 * 1024 * 1024)
	r.End(nil)

	gt.True(t, strings.HasSuffix(out.String(), "\n"))
	gt.String(t, out.String()).Contains("100.0%")
}

func TestReporterThrottlesRedraw(t *testing.T) {
	clock := newFakeClock()
	var out bytes.Buffer
	r := NewReporter(Options{Output: &out, Width: 120, Now: clock.Now})

	r.Begin("file", 0, 1000)
	for i := 1; i <= 10; i++ {
		clock.Advance(10 * time.Millisecond)
		r.Update(int64(i * 10))
	}
	gt.Equal(t, strings.Count(out.String(), "\r"), 1)

	clock.Advance(time.Second)
	r.Update(500)
	gt.Equal(t, strings.Count(out.String(), "\r"), 2)
}

func TestReporterFitsWidth(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(Options{Output: &out, Width: 30, Now: newFakeClock().Now})

	r.Begin(strings.Repeat("x", 100), 0, 10)
	gt.Equal(t, len(strings.TrimPrefix(out.String(), "\r")), 29)
}

func TestReporterEndWithError(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(Options{Output: &out, Width: 80, Now: newFakeClock().Now})

	r.Begin("manifest", 0, 10)
	r.End(errors.New("boom"))
	gt.String(t, out.String()).Contains("manifest failed")

	// Ended reporters ignore updates.
	before := out.Len()
	r.Update(5)
	r.End(nil)
	gt.Equal(t, out.Len(), before)
}

func TestCounter(t *testing.T) {
	var out bytes.Buffer
	c := NewCounter(&out, 3)

	c.Next("a")
	c.Next("b")
	c.Done()

	gt.Equal(t, c.Count(), 2)
	gt.String(t, out.String()).Contains("(1/3) a")
	gt.String(t, out.String()).Contains("(2/3) b")
	gt.True(t, strings.HasSuffix(out.String(), "\n"))
}

func TestIsTerminalNonFile(t *testing.T) {
	gt.False(t, IsTerminal(&bytes.Buffer{}))
}
