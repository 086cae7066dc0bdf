package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := Open(filepath.Join(t.TempDir(), "state", "journal.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return j
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	id, err := j.BeginRun(ctx, "0.0.0.130", "archive")
	gt.NoError(t, err)
	_, err = uuid.Parse(id)
	gt.NoError(t, err)
	gt.Equal(t, j.RunID(), id)

	gt.NoError(t, j.Record(ctx, Entry{Kind: "manifest", Path: "lol/packagemanifest", URL: "http://cdn/m", Outcome: "fresh", Bytes: 120}))
	gt.NoError(t, j.Record(ctx, Entry{Kind: "file", Path: "lol/DATA/a", Outcome: "failed", Error: "truncated"}))
	gt.NoError(t, j.FinishRun(ctx, StatusPartial))
	gt.Equal(t, j.RunID(), "")

	runs, err := j.Runs(ctx, 0)
	gt.NoError(t, err)
	gt.A(t, runs).Length(1)
	gt.Equal(t, runs[0].ID, id)
	gt.Equal(t, runs[0].Version, "0.0.0.130")
	gt.Equal(t, runs[0].Mode, "archive")
	gt.Equal(t, runs[0].Status, StatusPartial)
	gt.Equal(t, runs[0].Entries, 2)
	gt.Equal(t, runs[0].Failures, 1)
	gt.False(t, runs[0].Finished.IsZero())
	gt.True(t, runs[0].Finished.After(runs[0].Started))

	entries, err := j.Entries(ctx, id)
	gt.NoError(t, err)
	gt.A(t, entries).Length(2)
	gt.Equal(t, entries[0].Kind, "manifest")
	gt.Equal(t, entries[0].Bytes, int64(120))
	gt.Equal(t, entries[0].RunID, id)
	gt.Equal(t, entries[1].Error, "truncated")
	gt.False(t, entries[1].Time.IsZero())
}

func TestRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	first, err := j.BeginRun(ctx, "1", "archive")
	gt.NoError(t, err)
	gt.NoError(t, j.FinishRun(ctx, StatusCompleted))

	second, err := j.BeginRun(ctx, "2", "individual")
	gt.NoError(t, err)

	runs, err := j.Runs(ctx, 0)
	gt.NoError(t, err)
	gt.A(t, runs).Length(2)
	gt.Equal(t, runs[0].ID, second)
	gt.Equal(t, runs[0].Status, StatusRunning)
	gt.True(t, runs[0].Finished.IsZero())
	gt.Equal(t, runs[1].ID, first)

	limited, err := j.Runs(ctx, 1)
	gt.NoError(t, err)
	gt.A(t, limited).Length(1)
}

func TestRunsOrderWithinSameSecond(t *testing.T) {
	ctx := context.Background()
	j := openTestJournal(t)

	base := time.Date(2025, 3, 1, 12, 0, 5, 0, time.UTC)
	ticks := []time.Time{base, base.Add(100 * time.Millisecond)}
	j.now = func() time.Time {
		t := ticks[0]
		if len(ticks) > 1 {
			ticks = ticks[1:]
		}
		return t
	}

	whole, err := j.BeginRun(ctx, "1", "archive")
	gt.NoError(t, err)
	gt.NoError(t, j.FinishRun(ctx, StatusCompleted))

	fraction, err := j.BeginRun(ctx, "2", "archive")
	gt.NoError(t, err)

	runs, err := j.Runs(ctx, 0)
	gt.NoError(t, err)
	gt.A(t, runs).Length(2)
	gt.Equal(t, runs[0].ID, fraction)
	gt.Equal(t, runs[1].ID, whole)
	gt.True(t, runs[1].Started.Equal(base))
	gt.True(t, runs[0].Started.Equal(base.Add(100*time.Millisecond)))
}

func TestRecordWithoutRun(t *testing.T) {
	j := openTestJournal(t)

	err := j.Record(context.Background(), Entry{Kind: "file"})
	gt.True(t, errors.Is(err, ErrNoRun))

	err = j.FinishRun(context.Background(), StatusFailed)
	gt.True(t, errors.Is(err, ErrNoRun))
}

func TestReopenKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	gt.NoError(t, err)
	id, err := j.BeginRun(ctx, "0.0.0.130", "archive")
	gt.NoError(t, err)
	gt.NoError(t, j.FinishRun(ctx, StatusCompleted))
	gt.NoError(t, j.Close())

	j, err = Open(path)
	gt.NoError(t, err)
	defer j.Close()

	runs, err := j.Runs(ctx, 0)
	gt.NoError(t, err)
	gt.A(t, runs).Length(1)
	gt.Equal(t, runs[0].ID, id)
}
