package codec

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
)

var sample = []byte(strings.Repeat("return { name = \"Annie\", hp = 524 }\n", 64))

func TestRoundTrip(t *testing.T) {
	for _, name := range []string{Deflate, Zlib, Zstd} {
		t.Run(name, func(t *testing.T) {
			compressed, err := Compress(name, sample)
			gt.NoError(t, err)

			c, err := ByName(name)
			gt.NoError(t, err)

			var out bytes.Buffer
			n, err := c.Decompress(&out, bytes.NewReader(compressed))
			gt.NoError(t, err)
			gt.Equal(t, n, int64(len(sample)))
			gt.True(t, bytes.Equal(out.Bytes(), sample))
		})
	}
}

func TestAutoDetects(t *testing.T) {
	auto, err := ByName(Auto)
	gt.NoError(t, err)

	for _, name := range []string{Deflate, Zlib, Zstd} {
		t.Run(name, func(t *testing.T) {
			compressed, err := Compress(name, sample)
			gt.NoError(t, err)

			var out bytes.Buffer
			_, err = auto.Decompress(&out, bytes.NewReader(compressed))
			gt.NoError(t, err)
			gt.True(t, bytes.Equal(out.Bytes(), sample))
		})
	}
}

func TestDetect(t *testing.T) {
	gt.Equal(t, detect([]byte{0x78, 0x9c}), Zlib)
	gt.Equal(t, detect([]byte{0x78, 0x01}), Zlib)
	gt.Equal(t, detect([]byte{0x28, 0xb5, 0x2f, 0xfd}), Zstd)
	gt.Equal(t, detect([]byte{0x07, 0x00}), Deflate)
}

func TestEmptyInput(t *testing.T) {
	c, err := ByName(Deflate)
	gt.NoError(t, err)

	var out bytes.Buffer
	n, err := c.Decompress(&out, bytes.NewReader(nil))
	gt.NoError(t, err)
	gt.Equal(t, n, int64(0))
}

func TestCorruptInput(t *testing.T) {
	deflate, err := ByName(Deflate)
	gt.NoError(t, err)

	// Reserved block type.
	var out bytes.Buffer
	_, err = deflate.Decompress(&out, bytes.NewReader([]byte{0x07, 0x00}))
	gt.True(t, errors.Is(err, ErrCorruptInput))

	compressed, err := Compress(Deflate, sample)
	gt.NoError(t, err)
	_, err = deflate.Decompress(&out, bytes.NewReader(compressed[:len(compressed)/2]))
	gt.True(t, errors.Is(err, ErrCorruptInput))
}

func TestCorruptChecksum(t *testing.T) {
	compressed, err := Compress(Zlib, sample)
	gt.NoError(t, err)
	compressed[len(compressed)-1] ^= 0xff

	c, err := ByName(Zlib)
	gt.NoError(t, err)

	var out bytes.Buffer
	_, err = c.Decompress(&out, bytes.NewReader(compressed))
	gt.True(t, errors.Is(err, ErrCorruptInput))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteErrorIsNotCorruption(t *testing.T) {
	compressed, err := Compress(Deflate, sample)
	gt.NoError(t, err)

	c, err := ByName(Deflate)
	gt.NoError(t, err)

	_, err = c.Decompress(failingWriter{}, bytes.NewReader(compressed))
	gt.Error(t, err)
	gt.False(t, errors.Is(err, ErrCorruptInput))
}

func TestUnknownCodec(t *testing.T) {
	_, err := ByName("lzma")
	gt.True(t, errors.Is(err, ErrUnknownCodec))

	_, err = Compress("lzma", sample)
	gt.True(t, errors.Is(err, ErrUnknownCodec))
}
