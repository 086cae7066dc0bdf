package codec

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"slices"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/m-mizutani/goerr/v2"
)

// Common errors.
var (
	ErrCorruptInput = errors.New("codec: input is not validly compressed")
	ErrUnknownCodec = errors.New("codec: unknown codec")
)

// Codec names.
const (
	Deflate = "deflate"
	Zlib    = "zlib"
	Zstd    = "zstd"
	Auto    = "auto"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Codec turns a compressed stream into its original bytes.
type Codec interface {
	Name() string

	// Decompress writes the decompressed form of src to dst. Malformed input
	// returns an error matching ErrCorruptInput. Empty input decompresses to
	// nothing.
	Decompress(dst io.Writer, src io.Reader) (int64, error)
}

// Names returns the supported codec names.
func Names() []string {
	return []string{Deflate, Zlib, Zstd, Auto}
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	if !slices.Contains(Names(), name) {
		return nil, goerr.Wrap(ErrUnknownCodec, "select codec", goerr.V("name", name))
	}
	return codec{name: name}, nil
}

type codec struct {
	name string
}

func (c codec) Name() string { return c.name }

func (c codec) Decompress(dst io.Writer, src io.Reader) (int64, error) {
	br := bufio.NewReader(src)
	head, err := br.Peek(4)
	if len(head) == 0 {
		if err == io.EOF {
			return 0, nil
		}
		return 0, goerr.Wrap(err, "read compressed input")
	}

	name := c.name
	if name == Auto {
		name = detect(head)
	}

	dec, err := newReader(name, br)
	if err != nil {
		return 0, goerr.Wrap(ErrCorruptInput, err.Error(), goerr.V("codec", name))
	}
	defer dec.Close()

	src = &sourceReader{r: dec}
	n, err := io.Copy(dst, src)
	if err != nil {
		var se *sourceError
		if errors.As(err, &se) {
			return n, goerr.Wrap(ErrCorruptInput, se.err.Error(), goerr.V("codec", name), goerr.V("written", n))
		}
		return n, goerr.Wrap(err, "write decompressed output", goerr.V("codec", name))
	}
	return n, nil
}

// detect picks a codec from the first bytes of a stream.
func detect(head []byte) string {
	if bytes.HasPrefix(head, zstdMagic) {
		return Zstd
	}
	if len(head) >= 2 && head[0]&0x0f == 8 && (uint16(head[0])<<8|uint16(head[1]))%31 == 0 {
		return Zlib
	}
	return Deflate
}

func newReader(name string, r io.Reader) (io.ReadCloser, error) {
	switch name {
	case Zlib:
		return zlib.NewReader(r)
	case Zstd:
		d, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		return d.IOReadCloser(), nil
	default:
		return flate.NewReader(r), nil
	}
}

// sourceError marks errors produced while reading compressed input so they
// can be told apart from write errors.
type sourceError struct{ err error }

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

type sourceReader struct{ r io.Reader }

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &sourceError{err: err}
	}
	return n, err
}

// Compress encodes data with the named codec. Auto encodes as raw deflate.
func Compress(name string, data []byte) ([]byte, error) {
	var buf bytes.Buffer

	var enc io.WriteCloser
	var err error
	switch name {
	case Deflate, Auto:
		enc, err = flate.NewWriter(&buf, flate.DefaultCompression)
	case Zlib:
		enc, err = zlib.NewWriterLevel(&buf, zlib.DefaultCompression)
	case Zstd:
		enc, err = zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	default:
		return nil, goerr.Wrap(ErrUnknownCodec, "select codec", goerr.V("name", name))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "create encoder", goerr.V("codec", name))
	}

	if _, err := enc.Write(data); err != nil {
		return nil, goerr.Wrap(err, "encode", goerr.V("codec", name))
	}
	if err := enc.Close(); err != nil {
		return nil, goerr.Wrap(err, "flush encoder", goerr.V("codec", name))
	}
	return buf.Bytes(), nil
}
