package service

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"time"

	"github.com/voyagen/channelvault/internal/fetcher"
	"github.com/voyagen/channelvault/internal/models"
)

// ImportURL downloads the playlist at m3uURL and imports it as actingUserID.
// The body is parsed while it streams in. A nil run is returned only when the
// download could not start; after that the contract of Run applies.
func (im *Importer) ImportURL(ctx context.Context, m3uURL, userAgent string, timeout time.Duration, actingUserID int64) (*models.ImportRun, error) {
	if m3uURL == "" {
		return nil, fmt.Errorf("m3u URL is required")
	}

	dl, err := fetcher.FetchM3U(ctx, m3uURL, userAgent, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer dl.Body.Close()

	size := dl.Size
	if size < 0 {
		size = 0
	}
	return im.Run(ctx, dl.Body, remoteFileName(m3uURL), size, actingUserID)
}

// remoteFileName names a run after the last path segment of the URL.
func remoteFileName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "remote.m3u"
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" || base == "" {
		if u.Host != "" {
			return u.Host + ".m3u"
		}
		return "remote.m3u"
	}
	return base
}
