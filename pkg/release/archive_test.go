package release

import (
	"testing"

	"github.com/m-mizutani/gt"
)

func TestArchiveContains(t *testing.T) {
	a := ArchiveRecord{ID: 1, DeclaredSize: 100}

	gt.True(t, a.Contains(FileRecord{Offset: 0, Size: 100}))
	gt.True(t, a.Contains(FileRecord{Offset: 90, Size: 10}))
	gt.True(t, a.Contains(FileRecord{Offset: 100, Size: 0}))
	gt.False(t, a.Contains(FileRecord{Offset: 90, Size: 11}))
	gt.False(t, a.Contains(FileRecord{Offset: 101, Size: 0}))

	unprobed := ArchiveRecord{ID: 1, DeclaredSize: -1}
	gt.False(t, unprobed.Contains(FileRecord{}))
}

func TestCheckSizes(t *testing.T) {
	stats := Statistics{FileCount: 3, FileBytes: 300}

	match := CheckSizes(&stats, []ArchiveRecord{
		{ID: 0, DeclaredSize: 100},
		{ID: 1, DeclaredSize: 200},
	})
	gt.True(t, match)
	gt.Equal(t, stats.ArchiveBytes, int64(300))
	gt.Equal(t, stats.ArchiveCount, 2)

	match = CheckSizes(&stats, []ArchiveRecord{
		{ID: 0, DeclaredSize: 100},
		{ID: 1, DeclaredSize: 150},
	})
	gt.False(t, match)
	gt.Equal(t, stats.ArchiveBytes, int64(250))

	match = CheckSizes(&stats, []ArchiveRecord{
		{ID: 0, DeclaredSize: 300},
		{ID: 1, DeclaredSize: -1},
	})
	gt.False(t, match)
}

func TestBuildArchiveIndexOrder(t *testing.T) {
	m := &Manifest{ArchiveIDs: []uint32{0, 4, 7}}
	archives := BuildArchiveIndex(m, testLayout())

	gt.A(t, archives).Length(3)
	for i, want := range []uint32{0, 4, 7} {
		gt.Equal(t, archives[i].ID, want)
		gt.Equal(t, archives[i].DeclaredSize, int64(-1))
	}
	gt.Equal(t, archives[1].Name(), "BIN_0x00000004")
}
