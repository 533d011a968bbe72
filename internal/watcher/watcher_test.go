package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/channelvault/internal/cache"
	"github.com/voyagen/channelvault/internal/logging"
	"github.com/voyagen/channelvault/internal/models"
)

type call struct {
	name   string
	body   string
	size   int64
	userID int64
}

type fakeImporter struct {
	mu    sync.Mutex
	calls []call
	fatal bool
}

func (f *fakeImporter) Run(_ context.Context, r io.Reader, fileName string, fileSize int64, userID int64) (*models.ImportRun, error) {
	body, _ := io.ReadAll(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{fileName, string(body), fileSize, userID})
	run := &models.ImportRun{FileName: fileName, Imported: 1, TotalProcessed: 1}
	if f.fatal {
		msg := "invalid playlist"
		run.FatalError = &msg
	}
	return run, nil
}

func (f *fakeImporter) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func startWatcher(t *testing.T, dir string, imp Importer, opts ...Option) *Watcher {
	t.Helper()
	logger := logging.NewWithWriter(io.Discard, "error", "text")
	opts = append([]Option{WithDebounce(50 * time.Millisecond)}, opts...)
	w, err := New(dir, 42, imp, logger, opts...)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

const playlist = "#EXTM3U\n#EXTINF:-1,CNN\nhttp://example.com/cnn\n"

func TestWatcher_ImportsDroppedFile(t *testing.T) {
	dir := t.TempDir()
	imp := &fakeImporter{}
	startWatcher(t, dir, imp)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "news.m3u"), []byte(playlist), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.pdf"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, ImportedDir, "news.m3u"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	calls := imp.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "news.m3u", calls[0].name)
	assert.Equal(t, playlist, calls[0].body)
	assert.EqualValues(t, len(playlist), calls[0].size)
	assert.EqualValues(t, 42, calls[0].userID)
	assert.FileExists(t, filepath.Join(dir, "notes.pdf"))
}

func TestWatcher_ImportsExistingFilesOnStart(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old.M3U8"), []byte(playlist), 0o644))

	imp := &fakeImporter{fatal: true}
	startWatcher(t, dir, imp)

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(dir, FailedDir, "old.M3U8"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.Len(t, imp.Calls(), 1)
}

func TestWatcher_StopDropsPendingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "late.m3u"), []byte(playlist), 0o644))

	imp := &fakeImporter{}
	w, err := New(dir, 1, imp, nil, WithDebounce(time.Hour))
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()

	assert.Empty(t, imp.Calls())
	assert.FileExists(t, filepath.Join(dir, "late.m3u"))
}

func TestImportFile_SkipsLockedFile(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.New("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rc.Close() })

	dir := t.TempDir()
	path := filepath.Join(dir, "shared.m3u")
	require.NoError(t, os.WriteFile(path, []byte(playlist), 0o644))

	imp := &fakeImporter{}
	w, err := New(dir, 1, imp, nil, WithLock(rc))
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.fs.Close() })
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ImportedDir), 0o755))

	unlock, err := cache.TryLock(context.Background(), rc, "lock:watch:"+path, time.Minute)
	require.NoError(t, err)
	w.importFile(context.Background(), path)
	assert.Empty(t, imp.Calls())
	assert.FileExists(t, path)

	unlock()
	w.importFile(context.Background(), path)
	assert.Len(t, imp.Calls(), 1)
	assert.FileExists(t, filepath.Join(dir, ImportedDir, "shared.m3u"))
	assert.False(t, mr.Exists("lock:watch:"+path), "lock released after import")
}
