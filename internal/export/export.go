package export

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/m-mizutani/goerr/v2"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Exporter copies downloaded archives into an object store bucket.
type Exporter struct {
	bucket *blob.Bucket
	prefix string
	logger *slog.Logger
	owned  bool
}

// Result describes one export.
type Result struct {
	Key      string
	Size     int64
	Uploaded bool // false when an object of the same size already existed
}

// Open opens the bucket at bucketURL. The caller must have imported the
// gocloud driver for its scheme; the CLI registers file://, gs:// and s3://.
// Objects are stored under prefix.
func Open(ctx context.Context, bucketURL, prefix string, logger *slog.Logger) (*Exporter, error) {
	bkt, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, goerr.Wrap(err, "open bucket", goerr.V("bucket", bucketURL))
	}
	e := New(bkt, prefix, logger)
	e.owned = true
	return e, nil
}

// New wraps an open bucket. Close does not close it.
func New(bucket *blob.Bucket, prefix string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Exporter{bucket: bucket, prefix: prefix, logger: logger}
}

// Close closes the bucket if Open created it.
func (e *Exporter) Close() error {
	if e.owned {
		return e.bucket.Close()
	}
	return nil
}

// Key returns the object key for a local file name.
func (e *Exporter) Key(name string) string {
	return path.Join(e.prefix, name)
}

// Upload copies localPath to the object named name. An existing object of
// the same size is left in place.
func (e *Exporter) Upload(ctx context.Context, localPath, name string) (Result, error) {
	key := e.Key(name)

	f, err := os.Open(localPath)
	if err != nil {
		return Result{}, goerr.Wrap(err, "open export source", goerr.V("path", localPath))
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Result{}, goerr.Wrap(err, "stat export source", goerr.V("path", localPath))
	}
	res := Result{Key: key, Size: st.Size()}

	attrs, err := e.bucket.Attributes(ctx, key)
	switch {
	case err == nil && attrs.Size == st.Size():
		e.logger.Debug("object already exported", "key", key, "size", attrs.Size)
		return res, nil
	case err != nil && gcerrors.Code(err) != gcerrors.NotFound:
		return Result{}, goerr.Wrap(err, "read object attributes", goerr.V("key", key))
	}

	// Cancelling the writer context discards a partial object.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := e.bucket.NewWriter(wctx, key, &blob.WriterOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return Result{}, goerr.Wrap(err, "create object writer", goerr.V("key", key))
	}
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		w.Close()
		return Result{}, goerr.Wrap(err, "write object", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return Result{}, goerr.Wrap(err, "commit object", goerr.V("key", key))
	}

	e.logger.Info("exported archive", "key", key, "size", st.Size())
	res.Uploaded = true
	return res, nil
}
