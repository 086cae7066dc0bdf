package extract

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"

	"github.com/joaquin95/loldownloader/internal/codec"
	"github.com/joaquin95/loldownloader/pkg/release"
)

// Common errors.
var (
	// ErrMissingArchive means an archive expected on disk is absent. No
	// further file can be extracted from it, so callers abort the run.
	ErrMissingArchive = errors.New("extract: archive not found")

	// ErrRangeExceedsArchive means a record points past the archive size.
	ErrRangeExceedsArchive = errors.New("extract: file range exceeds archive size")

	// ErrTruncatedRead means the archive ended inside the record's range.
	ErrTruncatedRead = errors.New("extract: archive ended before file range")
)

// Extractor slices files out of local archives and decompresses them.
type Extractor struct {
	codec  codec.Codec
	logger *slog.Logger
}

// New creates an Extractor decompressing with c.
func New(c codec.Codec, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{codec: c, logger: logger}
}

// Extract writes rec's byte range of archive to rec.StagingPath, decompresses
// it to rec.LocalPath and removes the staging file. On failure neither the
// staging file nor a partial final file is left behind.
func (e *Extractor) Extract(rec release.FileRecord, archive release.ArchiveRecord) error {
	f, err := os.Open(archive.LocalPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return goerr.Wrap(ErrMissingArchive, "open archive",
				goerr.V("archive", archive.LocalPath),
				goerr.V("file", rec.RemoteName),
			)
		}
		return goerr.Wrap(err, "open archive", goerr.V("archive", archive.LocalPath))
	}
	defer f.Close()

	bounds := archive
	if bounds.DeclaredSize < 0 {
		st, err := f.Stat()
		if err != nil {
			return goerr.Wrap(err, "stat archive", goerr.V("archive", archive.LocalPath))
		}
		bounds.DeclaredSize = st.Size()
	}
	if !bounds.Contains(rec) {
		return goerr.Wrap(ErrRangeExceedsArchive, "check range",
			goerr.V("file", rec.RemoteName),
			goerr.V("offset", rec.Offset),
			goerr.V("size", rec.Size),
			goerr.V("archive_size", bounds.DeclaredSize),
		)
	}

	if err := e.stage(f, rec); err != nil {
		os.Remove(rec.StagingPath)
		return err
	}

	e.logger.Debug("staged file", "path", rec.StagingPath, "archive", archive.Name(), "offset", rec.Offset, "size", rec.Size)
	return Finalize(rec.StagingPath, rec.LocalPath, e.codec)
}

// stage copies exactly rec.Size bytes at rec.Offset into the staging file.
func (e *Extractor) stage(archive io.ReaderAt, rec release.FileRecord) error {
	if err := os.MkdirAll(filepath.Dir(rec.StagingPath), 0o755); err != nil {
		return goerr.Wrap(err, "create staging directory", goerr.V("path", rec.StagingPath))
	}

	out, err := os.Create(rec.StagingPath)
	if err != nil {
		return goerr.Wrap(err, "create staging file", goerr.V("path", rec.StagingPath))
	}

	n, err := io.Copy(out, io.NewSectionReader(archive, rec.Offset, rec.Size))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return goerr.Wrap(err, "write staging file", goerr.V("path", rec.StagingPath))
	}
	if n != rec.Size {
		return goerr.Wrap(ErrTruncatedRead, "read archive range",
			goerr.V("file", rec.RemoteName),
			goerr.V("want", rec.Size),
			goerr.V("got", n),
		)
	}
	return nil
}

// PartSuffix marks a final file that is still being decompressed.
const PartSuffix = ".part"

// Finalize decompresses stagingPath into finalPath and removes the staging
// file. Output goes to finalPath+PartSuffix and is renamed onto finalPath
// once complete, so finalPath never holds a partial file. A failed
// decompression removes the staging and part files.
func Finalize(stagingPath, finalPath string, c codec.Codec) error {
	in, err := os.Open(stagingPath)
	if err != nil {
		return goerr.Wrap(err, "open staging file", goerr.V("path", stagingPath))
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return goerr.Wrap(err, "create destination directory", goerr.V("path", finalPath))
	}
	partPath := finalPath + PartSuffix
	out, err := os.Create(partPath)
	if err != nil {
		return goerr.Wrap(err, "create part file", goerr.V("path", partPath))
	}

	_, err = c.Decompress(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	in.Close()

	if err != nil {
		os.Remove(partPath)
		os.Remove(stagingPath)
		return goerr.Wrap(err, "decompress", goerr.V("staging", stagingPath), goerr.V("path", finalPath))
	}

	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		return goerr.Wrap(err, "move part file into place", goerr.V("path", finalPath))
	}
	if err := os.Remove(stagingPath); err != nil {
		return goerr.Wrap(err, "remove staging file", goerr.V("path", stagingPath))
	}
	return nil
}
