package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Download is a remote playlist body. The caller must Close it.
type Download struct {
	Body io.ReadCloser
	// Size is the declared Content-Length, or -1 when unknown.
	Size int64
}

// FetchM3U opens the playlist at url. The body is handed back unread so it can
// be parsed as a stream. userAgent is optional.
func FetchM3U(ctx context.Context, url string, userAgent string, timeout time.Duration) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Do: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return &Download{Body: resp.Body, Size: resp.ContentLength}, nil
}
