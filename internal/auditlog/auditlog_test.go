package auditlog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDir(t *testing.T, at time.Time) *Dir {
	t.Helper()
	d, err := NewDir(filepath.Join(t.TempDir(), "logs", "imports"), nil)
	require.NoError(t, err)
	d.now = func() time.Time { return at }
	return d
}

func TestOpen_NameFromBaseAndTimestamp(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	d := newTestDir(t, at)

	l, err := d.Open("uploads/My List.m3u8")
	require.NoError(t, err)
	defer l.Close()

	assert.Equal(t, filepath.Join(d.Root(), "My_List_2024-03-09_14-05-07.txt"), l.Path())
}

func TestOpen_SameSecondDoesNotCollide(t *testing.T) {
	d := newTestDir(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		l, err := d.Open("channels.m3u")
		require.NoError(t, err)
		require.NoError(t, l.Close())
		assert.False(t, seen[l.Path()], "duplicate path %s", l.Path())
		seen[l.Path()] = true
	}
	assert.Contains(t, seen, filepath.Join(d.Root(), "channels_2024-01-01_00-00-00_3.txt"))
}

func TestBaseName(t *testing.T) {
	tests := map[string]string{
		"list.m3u":             "list",
		"../../etc/passwd.m3u": "passwd",
		`C:\Users\me\tv.m3u8`:  "tv",
		"":                     "import",
		".m3u":                 "import",
		"a b;rm -rf.txt":       "a_b_rm_-rf",
	}
	for in, want := range tests {
		assert.Equal(t, want, baseName(in), "baseName(%q)", in)
	}
}

func TestLog_AppendsInOrder(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	d := newTestDir(t, at)
	l, err := d.Open("x.m3u")
	require.NoError(t, err)

	l.Println("=== M3U Import Started ===")
	l.Printf("File: %s", "x.m3u")
	l.Println("")
	l.Println("[ERROR] something")
	require.NoError(t, l.Close())
	require.NoError(t, l.Err())

	data, err := os.ReadFile(l.Path())
	require.NoError(t, err)
	assert.Equal(t,
		"[2024-03-09 14:05:07] === M3U Import Started ===\n"+
			"[2024-03-09 14:05:07] File: x.m3u\n"+
			"\n"+
			"[2024-03-09 14:05:07] [ERROR] something\n",
		string(data))
}

func TestLog_WriteFailureIsNotFatal(t *testing.T) {
	d := newTestDir(t, time.Now())
	l, err := d.Open("x.m3u")
	require.NoError(t, err)
	require.NoError(t, l.f.Close())

	assert.NotPanics(t, func() {
		l.Println("lost")
		l.Println("lost too")
	})
	assert.Error(t, l.Err())
}

func TestNilLogDiscards(t *testing.T) {
	var l *Log
	l.Println("x")
	l.Printf("%d", 1)
	assert.Equal(t, "", l.Path())
	assert.NoError(t, l.Close())
	assert.NoError(t, l.Err())
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	return &s3.PutObjectOutput{}, f.err
}

func TestS3Archiver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list_2024.txt")
	require.NoError(t, os.WriteFile(path, []byte("summary\n"), 0o644))

	client := &fakeS3{}
	a := NewS3ArchiverWithClient(client, "audit", "imports/")
	require.NoError(t, a.Archive(context.Background(), path))

	assert.Equal(t, "audit", *client.input.Bucket)
	assert.Equal(t, "imports/list_2024.txt", *client.input.Key)
	assert.Equal(t, "summary\n", client.body)
}

func TestS3Archiver_Errors(t *testing.T) {
	a := NewS3ArchiverWithClient(&fakeS3{}, "audit", "")
	assert.Error(t, a.Archive(context.Background(), filepath.Join(t.TempDir(), "missing.txt")))

	path := filepath.Join(t.TempDir(), "x.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	a = NewS3ArchiverWithClient(&fakeS3{err: errors.New("denied")}, "audit", "")
	err := a.Archive(context.Background(), path)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "denied"))
}
