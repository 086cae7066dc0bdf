package release

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// ErrInvalidManifest is returned when the manifest does not start with
// [ManifestMagic]. No records are produced in that case.
var ErrInvalidManifest = errors.New("invalid package manifest")

// ErrMalformedLine is matched by every [*LineError].
var ErrMalformedLine = errors.New("malformed manifest line")

// maxLineLength caps a single manifest line.
const maxLineLength = 1024 * 1024

// LineError describes a manifest line that could not be turned into a record.
// errors.Is(err, ErrMalformedLine) reports true for every LineError.
type LineError struct {
	Line int    // 1-based line number, the header is line 1
	Text string // Raw line without terminator
	Err  error  // Underlying reason
}

func (e *LineError) Error() string {
	return fmt.Sprintf("manifest line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *LineError) Unwrap() error { return e.Err }

// Is reports whether target is ErrMalformedLine.
func (e *LineError) Is(target error) bool { return target == ErrMalformedLine }

// FileRecord is one game asset listed in the manifest.
type FileRecord struct {
	RemoteName  string // Name as written in the manifest
	RemoteURL   string // Location for individual download
	StagingPath string // Local compressed path
	LocalPath   string // Local final (decompressed) path
	ArchiveID   uint32 // Containing archive
	Offset      int64  // Byte offset inside the archive
	Size        int64  // Compressed size
	Aux         int64  // Auxiliary flag, carried but unused
}

// Statistics aggregates counts over a release. FileBytes and ArchiveBytes are
// expected to match but the match is not enforced.
type Statistics struct {
	FileCount     int
	ArchiveCount  int
	FileBytes     int64
	ArchiveBytes  int64
	MaxLineLength int
}

// Manifest is a parsed package manifest.
type Manifest struct {
	Files      []FileRecord // Manifest order
	ArchiveIDs []uint32     // Distinct ids, ascending
	Stats      Statistics
}

// Parse reads a package manifest and resolves every record against layout.
// Records keep manifest order. Any malformed line aborts parsing with a
// [*LineError]; a wrong header returns [ErrInvalidManifest].
func Parse(r io.Reader, layout Layout) (*Manifest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)

	if !sc.Scan() {
		if err := sc.Err(); errors.Is(err, bufio.ErrTooLong) {
			return nil, &LineError{Line: 1, Err: fmt.Errorf("line longer than %d bytes: %w", maxLineLength, err)}
		} else if err != nil {
			return nil, fmt.Errorf("read manifest header: %w", err)
		}
		return nil, fmt.Errorf("%w: empty manifest", ErrInvalidManifest)
	}
	if header := strings.TrimSuffix(sc.Text(), "\r"); header != ManifestMagic {
		return nil, fmt.Errorf("%w: unexpected header %q", ErrInvalidManifest, header)
	}

	m := &Manifest{}
	seen := make(map[uint32]bool)
	paths := make(map[string]int) // Staging and final paths, by line

	lineNo := 1
	for sc.Scan() {
		lineNo++
		line := strings.TrimSuffix(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) > m.Stats.MaxLineLength {
			m.Stats.MaxLineLength = len(line)
		}

		rec, err := parseRecord(line, layout)
		if err != nil {
			return nil, &LineError{Line: lineNo, Text: line, Err: err}
		}
		for _, p := range []string{rec.LocalPath, rec.StagingPath} {
			if prev, ok := paths[p]; ok {
				return nil, &LineError{
					Line: lineNo,
					Text: line,
					Err:  fmt.Errorf("local path %s collides with line %d", p, prev),
				}
			}
		}
		paths[rec.LocalPath] = lineNo
		paths[rec.StagingPath] = lineNo

		if !seen[rec.ArchiveID] {
			seen[rec.ArchiveID] = true
			m.ArchiveIDs = append(m.ArchiveIDs, rec.ArchiveID)
		}

		m.Files = append(m.Files, rec)
		m.Stats.FileCount++
		m.Stats.FileBytes += rec.Size
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, &LineError{Line: lineNo + 1, Err: fmt.Errorf("line longer than %d bytes: %w", maxLineLength, err)}
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	slices.Sort(m.ArchiveIDs)
	m.Stats.ArchiveCount = len(m.ArchiveIDs)
	return m, nil
}

// parseRecord parses name,BIN_0xXXXXXXXX,offset,size,aux.
func parseRecord(line string, layout Layout) (FileRecord, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return FileRecord{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	name := fields[0]
	if name == "" {
		return FileRecord{}, errors.New("empty name")
	}

	id, err := ParseArchiveID(fields[1])
	if err != nil {
		return FileRecord{}, err
	}
	if int(id) >= layout.maxArchives() {
		return FileRecord{}, fmt.Errorf("archive id %d out of range [0,%d)", id, layout.maxArchives())
	}

	offset, err := parseCount("offset", fields[2])
	if err != nil {
		return FileRecord{}, err
	}
	size, err := parseCount("size", fields[3])
	if err != nil {
		return FileRecord{}, err
	}
	aux, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return FileRecord{}, fmt.Errorf("invalid aux %q", fields[4])
	}

	staging, final, err := layout.LocalPaths(name)
	if err != nil {
		return FileRecord{}, err
	}

	return FileRecord{
		RemoteName:  name,
		RemoteURL:   layout.FileURL(name),
		StagingPath: staging,
		LocalPath:   final,
		ArchiveID:   id,
		Offset:      offset,
		Size:        size,
		Aux:         aux,
	}, nil
}

// ParseArchiveID extracts the id from a BIN_0xXXXXXXXX token.
func ParseArchiveID(token string) (uint32, error) {
	hex, ok := strings.CutPrefix(token, ArchivePrefix)
	if !ok || len(hex) != 8 {
		return 0, fmt.Errorf("invalid archive token %q", token)
	}
	id, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid archive token %q", token)
	}
	return uint32(id), nil
}

func parseCount(field, s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", field, s)
	}
	return n, nil
}
