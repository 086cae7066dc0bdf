package release

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const (
	// ManifestMagic is the exact first line of every package manifest.
	ManifestMagic = "PKG1"

	// ManifestName is the remote and local file name of the package manifest.
	ManifestName = "packagemanifest"

	// ArchivePrefix prefixes the hex archive id in archive names and manifest tokens.
	ArchivePrefix = "BIN_0x"

	// FilesMarker separates manifest plumbing from the asset sub-path in a
	// manifest name.
	FilesMarker = "files/"

	// StagingSuffix is appended to staging paths of names without an extension.
	StagingSuffix = ".staging"

	// DefaultMaxArchives bounds archive ids for the current manifest format.
	DefaultMaxArchives = 32

	releasePathTemplate = "/projects/lol_game_client/releases/%s/packages/files/"
)

// Layout maps manifest names onto remote URLs and local paths.
type Layout struct {
	// BaseURL is the CDN host, with or without scheme (e.g. l3cdn.riotgames.com).
	BaseURL string

	// DownloadPath is appended to BaseURL (e.g. /releases/live).
	DownloadPath string

	// Version is the game client version (e.g. 0.0.0.130).
	Version string

	// DestRoot is the local destination folder.
	DestRoot string

	// MaxArchives bounds archive ids; ids >= MaxArchives are rejected.
	// Default: DefaultMaxArchives
	MaxArchives int
}

// maxArchives returns the effective archive id bound.
func (l Layout) maxArchives() int {
	if l.MaxArchives <= 0 {
		return DefaultMaxArchives
	}
	return l.MaxArchives
}

// root returns the scheme-qualified base URL joined with the download path.
func (l Layout) root() string {
	base := strings.TrimSuffix(l.BaseURL, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return base + l.DownloadPath
}

// releaseRoot returns the URL of the release's packages/files directory.
func (l Layout) releaseRoot() string {
	return l.root() + fmt.Sprintf(releasePathTemplate, l.Version)
}

// ManifestURL returns the remote location of the package manifest.
func (l Layout) ManifestURL() string {
	return l.releaseRoot() + ManifestName
}

// ManifestPath returns the local location of the package manifest.
func (l Layout) ManifestPath() string {
	return filepath.Join(l.DestRoot, ManifestName)
}

// FileURL returns the remote location of an individually addressed file.
func (l Layout) FileURL(name string) string {
	return l.root() + name
}

// ArchiveURL returns the remote location of archive id.
func (l Layout) ArchiveURL(id uint32) string {
	return l.releaseRoot() + ArchiveName(id)
}

// ArchivePath returns the local location of archive id.
func (l Layout) ArchivePath(id uint32) string {
	return filepath.Join(l.DestRoot, ArchiveName(id))
}

// LocalPaths returns the staging and final local paths for a manifest name.
// The staging path keeps the compressed extension, the final path drops it.
func (l Layout) LocalPaths(name string) (staging, final string, err error) {
	i := strings.Index(name, FilesMarker)
	if i < 0 {
		return "", "", fmt.Errorf("name %q has no %q component", name, FilesMarker)
	}

	rel := path.Clean(name[i+len(FilesMarker):])
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, "/") {
		return "", "", fmt.Errorf("name %q escapes the destination folder", name)
	}

	final = filepath.Join(l.DestRoot, filepath.FromSlash(rel))
	staging = final
	if stripped := StripExtension(final); stripped != final {
		final = stripped
	} else {
		staging = final + StagingSuffix
	}
	return staging, final, nil
}

// ArchiveName returns the archive file name for id.
func ArchiveName(id uint32) string {
	return fmt.Sprintf("%s%08x", ArchivePrefix, id)
}

// StripExtension removes exactly one trailing extension from the last path
// element. Paths whose last element has no extension are returned unchanged.
func StripExtension(p string) string {
	ext := filepath.Ext(p)
	if ext == "" || ext == filepath.Base(p) {
		return p
	}
	return strings.TrimSuffix(p, ext)
}
