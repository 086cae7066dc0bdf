package journal

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"
)

// ErrNoRun is returned when an entry is recorded before BeginRun.
var ErrNoRun = errors.New("journal: no run in progress")

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Run is one invocation of the downloader.
type Run struct {
	ID       string
	Version  string
	Mode     string
	Status   string
	Started  time.Time
	Finished time.Time // Zero while running
	Entries  int
	Failures int
}

// Entry is the outcome of one transfer or extraction.
type Entry struct {
	RunID   string
	Kind    string // manifest, archive, file
	Path    string
	URL     string
	Outcome string
	Bytes   int64
	Error   string
	Time    time.Time
}

// Journal is a SQLite ledger of download runs.
type Journal struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, goerr.Wrap(err, "create journal directory", goerr.V("path", path))
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "open journal", goerr.V("path", path))
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "ping journal", goerr.V("path", path))
	}

	// Single connection, the journal has one writer
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
		PRAGMA busy_timeout = 5000;
		PRAGMA journal_mode = WAL;
	`); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "configure journal", goerr.V("path", path))
	}

	j := &Journal{db: db, now: time.Now}
	if err := j.initTables(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		version TEXT NOT NULL,
		mode TEXT NOT NULL,
		status TEXT NOT NULL,
		started TEXT NOT NULL,
		finished TEXT
	);

	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		kind TEXT NOT NULL,
		path TEXT NOT NULL,
		url TEXT NOT NULL,
		outcome TEXT NOT NULL,
		bytes INTEGER NOT NULL,
		error TEXT NOT NULL,
		time TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_run_id ON entries(run_id);
	`
	if _, err := j.db.Exec(query); err != nil {
		return goerr.Wrap(err, "create journal tables")
	}
	return nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RunID returns the id of the run in progress, or "".
func (j *Journal) RunID() string {
	return j.runID
}

// BeginRun starts a new run and makes it the target of Record.
func (j *Journal) BeginRun(ctx context.Context, version, mode string) (string, error) {
	id := uuid.NewString()
	query := `INSERT INTO runs (id, version, mode, status, started) VALUES (?, ?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, query, id, version, mode, StatusRunning, formatTime(j.now())); err != nil {
		return "", goerr.Wrap(err, "insert run", goerr.V("version", version))
	}
	j.runID = id
	return id, nil
}

// FinishRun marks the run in progress with status.
func (j *Journal) FinishRun(ctx context.Context, status string) error {
	if j.runID == "" {
		return ErrNoRun
	}
	query := `UPDATE runs SET status = ?, finished = ? WHERE id = ?`
	if _, err := j.db.ExecContext(ctx, query, status, formatTime(j.now()), j.runID); err != nil {
		return goerr.Wrap(err, "update run", goerr.V("run_id", j.runID))
	}
	j.runID = ""
	return nil
}

// Record appends e to the run in progress.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.RunID == "" {
		e.RunID = j.runID
	}
	if e.RunID == "" {
		return ErrNoRun
	}
	if e.Time.IsZero() {
		e.Time = j.now()
	}

	query := `INSERT INTO entries (run_id, kind, path, url, outcome, bytes, error, time) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, query, e.RunID, e.Kind, e.Path, e.URL, e.Outcome, e.Bytes, e.Error, formatTime(e.Time))
	if err != nil {
		return goerr.Wrap(err, "insert entry", goerr.V("path", e.Path))
	}
	return nil
}

// Runs returns up to limit runs, newest first. limit <= 0 returns all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `
	SELECT r.id, r.version, r.mode, r.status, r.started, COALESCE(r.finished, ''),
		COUNT(e.id), COALESCE(SUM(CASE WHEN e.error != '' THEN 1 ELSE 0 END), 0)
	FROM runs r LEFT JOIN entries e ON e.run_id = r.id
	GROUP BY r.id
	ORDER BY r.started DESC
	LIMIT ?`
	if limit <= 0 {
		limit = -1
	}

	rows, err := j.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Version, &r.Mode, &r.Status, &started, &finished, &r.Entries, &r.Failures); err != nil {
			return nil, goerr.Wrap(err, "scan run")
		}
		r.Started = parseTime(started)
		r.Finished = parseTime(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate runs")
	}
	return runs, nil
}

// Entries returns the entries of runID in recording order.
func (j *Journal) Entries(ctx context.Context, runID string) ([]Entry, error) {
	query := `SELECT run_id, kind, path, url, outcome, bytes, error, time FROM entries WHERE run_id = ? ORDER BY id`
	rows, err := j.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, goerr.Wrap(err, "query entries", goerr.V("run_id", runID))
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.RunID, &e.Kind, &e.Path, &e.URL, &e.Outcome, &e.Bytes, &e.Error, &ts); err != nil {
			return nil, goerr.Wrap(err, "scan entry")
		}
		e.Time = parseTime(ts)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate entries")
	}
	return entries, nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
