package fetcher

import (
	"path/filepath"
	"strings"
)

// PlaylistExtensions are the file extensions accepted for uploaded or dropped playlists.
var PlaylistExtensions = []string{".m3u", ".m3u8", ".txt"}

// IsPlaylistFile reports whether name has a playlist extension (case-insensitive).
func IsPlaylistFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range PlaylistExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
