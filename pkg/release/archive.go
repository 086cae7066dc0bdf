package release

// ArchiveRecord is one consolidated archive of a release.
type ArchiveRecord struct {
	ID           uint32
	RemoteURL    string
	LocalPath    string
	DeclaredSize int64 // Remote size, -1 until probed
}

// Name returns the archive file name.
func (a ArchiveRecord) Name() string {
	return ArchiveName(a.ID)
}

// Contains reports whether rec lies entirely inside the archive's declared
// size. Unprobed archives contain nothing.
func (a ArchiveRecord) Contains(rec FileRecord) bool {
	if a.DeclaredSize < 0 {
		return false
	}
	return rec.Offset <= a.DeclaredSize && rec.Size <= a.DeclaredSize-rec.Offset
}

// BuildArchiveIndex returns one record per distinct archive id in m, in
// ascending id order. DeclaredSize is left at -1.
func BuildArchiveIndex(m *Manifest, layout Layout) []ArchiveRecord {
	archives := make([]ArchiveRecord, 0, len(m.ArchiveIDs))
	for _, id := range m.ArchiveIDs {
		archives = append(archives, ArchiveRecord{
			ID:           id,
			RemoteURL:    layout.ArchiveURL(id),
			LocalPath:    layout.ArchivePath(id),
			DeclaredSize: -1,
		})
	}
	return archives
}

// CheckSizes records archive totals into stats and reports whether the sum
// of declared archive sizes equals the sum of file sizes. Unprobed archives
// make the check fail.
func CheckSizes(stats *Statistics, archives []ArchiveRecord) bool {
	stats.ArchiveCount = len(archives)
	stats.ArchiveBytes = 0

	probed := true
	for _, a := range archives {
		if a.DeclaredSize < 0 {
			probed = false
			continue
		}
		stats.ArchiveBytes += a.DeclaredSize
	}
	return probed && stats.ArchiveBytes == stats.FileBytes
}
