package fetcher

import (
	"io"
	"strings"

	"github.com/voyagen/channelvault/internal/models"
)

// CountChannels counts URL lines (non-empty, not starting with '#') without
// parsing metadata. It stops reading as soon as the count exceeds
// models.MaxChannels, so callers can reject oversized playlists cheaply.
func CountChannels(r io.Reader) (int, error) {
	scanner := newLineScanner(r)
	count, line := 0, 0
	for scanner.Scan() {
		line++
		s := strings.TrimSpace(scanner.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		count++
		if count > models.MaxChannels {
			return count, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return count, &ReadError{Line: line, Err: err}
	}
	return count, nil
}
