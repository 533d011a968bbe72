package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchM3U(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "channelvault-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(playlist(3)))
	}))
	defer srv.Close()

	dl, err := FetchM3U(context.Background(), srv.URL, "channelvault-test", 5*time.Second)
	require.NoError(t, err)
	defer dl.Body.Close()

	got, err := collect(t, dl.Body)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestFetchM3U_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchM3U(context.Background(), srv.URL, "", 5*time.Second)
	assert.EqualError(t, err, "HTTP 404")
}
