package release

import (
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestLayoutURLs(t *testing.T) {
	l := testLayout()

	gt.Equal(t, l.ManifestURL(),
		"http://cdn.example.com/releases/live/projects/lol_game_client/releases/0.0.0.130/packages/files/packagemanifest")
	gt.Equal(t, l.ArchiveURL(3),
		"http://cdn.example.com/releases/live/projects/lol_game_client/releases/0.0.0.130/packages/files/BIN_0x00000003")
	gt.Equal(t, l.ArchivePath(3), filepath.Join("lol", "BIN_0x00000003"))
	gt.Equal(t, l.ManifestPath(), filepath.Join("lol", "packagemanifest"))
}

func TestLayoutKeepsScheme(t *testing.T) {
	l := Layout{BaseURL: "https://cdn.example.com/", DownloadPath: "/live", Version: "1"}
	gt.Equal(t, l.FileURL("/a/files/b"), "https://cdn.example.com/live/a/files/b")
}

func TestLocalPathsWithoutExtension(t *testing.T) {
	staging, final, err := testLayout().LocalPaths("/x/files/DATA/README")
	gt.NoError(t, err)
	gt.Equal(t, final, filepath.Join("lol", "DATA", "README"))
	gt.Equal(t, staging, filepath.Join("lol", "DATA", "README")+StagingSuffix)
}

func TestStripExtension(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"lol/c.txt", "lol/c"},
		{"lol/x.luaobj.compressed", "lol/x.luaobj"},
		{"lol/noext", "lol/noext"},
		{"lol.d/noext", "lol.d/noext"},
		{"lol/.hidden", "lol/.hidden"},
	}

	for _, tt := range tests {
		gt.Equal(t, StripExtension(filepath.FromSlash(tt.input)), filepath.FromSlash(tt.expected))
	}
}

func TestArchiveName(t *testing.T) {
	gt.Equal(t, ArchiveName(0), "BIN_0x00000000")
	gt.Equal(t, ArchiveName(0x1f), "BIN_0x0000001f")
}
