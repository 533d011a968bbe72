package fetcher

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/channelvault/internal/models"
)

func collect(t *testing.T, r io.Reader) ([]models.ChannelCandidate, error) {
	t.Helper()
	p := NewParser(r)
	var out []models.ChannelCandidate
	for p.Next() {
		out = append(out, p.Candidate())
	}
	return out, p.Err()
}

func playlist(n int) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "#EXTINF:-1 tvg-id=\"%d\",Channel %d\nhttp://example.com/%d.m3u8\n", i, i, i)
	}
	return b.String()
}

func TestParser_SingleChannel(t *testing.T) {
	in := "#EXTM3U\n#EXTINF:-1 tvg-id=\"1\" group-title=\"News\",CNN\nhttp://example.com/cnn.m3u8\n"

	got, err := collect(t, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)

	c := got[0]
	assert.Equal(t, "CNN", c.Name)
	assert.Equal(t, "http://example.com/cnn.m3u8", c.StreamURL)
	require.NotNil(t, c.TvgID)
	assert.Equal(t, "1", *c.TvgID)
	require.NotNil(t, c.GroupTitle)
	assert.Equal(t, "News", *c.GroupTitle)
	assert.Equal(t, 3, c.Line)
}

func TestParser_MissingHeader(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"extinf first", "#EXTINF:-1,CNN\nhttp://example.com/cnn.m3u8\n"},
		{"header with attributes", "#EXTM3U url-tvg=\"x\"\n#EXTINF:-1,CNN\nhttp://example.com/a\n"},
		{"empty input", ""},
		{"blank lines only", "\n\n  \n"},
		{"garbage", "\x00\x01binary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(t, strings.NewReader(tt.in))
			assert.Empty(t, got)
			var fe *FormatError
			require.ErrorAs(t, err, &fe)
			assert.ErrorIs(t, err, ErrMissingHeader)
		})
	}
}

func TestParser_HeaderAfterBlankLinesAndBOM(t *testing.T) {
	in := "\ufeff\n  \n  #EXTM3U  \n#EXTINF:-1,A\nhttps://example.com/a\n"
	got, err := collect(t, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
}

func TestParser_MetadataWithoutURLIsDropped(t *testing.T) {
	in := "#EXTM3U\n#EXTINF:-1,First\n#EXTINF:-1,Second\nhttp://example.com/2\n#EXTINF:-1,Dangling\n"
	got, err := collect(t, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Second", got[0].Name)
}

func TestParser_URLWithoutMetadataIsDropped(t *testing.T) {
	in := "#EXTM3U\nhttp://example.com/orphan\n#EXTINF:-1,A\nhttp://example.com/a\nhttp://example.com/orphan2\n"
	got, err := collect(t, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "http://example.com/a", got[0].StreamURL)
}

func TestParser_ProtocolFilter(t *testing.T) {
	in := "#EXTM3U\n" +
		"#EXTINF:-1,FTP\nftp://example.com/x\n" +
		"#EXTINF:-1,Relative\n/live/x.m3u8\n" +
		"#EXTINF:-1,Upper\nHTTP://example.com/x\n" +
		"#EXTINF:-1,RTMP\nrtmp://example.com/live\n" +
		"#EXTINF:-1,RTMPS\nrtmps://example.com/live\n" +
		"#EXTINF:-1,RTSP\nrtsp://example.com/cam\n" +
		"#EXTINF:-1,HTTPS\nhttps://example.com/x\n"

	got, err := collect(t, strings.NewReader(in))
	require.NoError(t, err)

	var names []string
	for _, c := range got {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"RTMP", "RTMPS", "RTSP", "HTTPS"}, names)
}

func TestParser_CommentsBetweenMetadataAndURL(t *testing.T) {
	in := "#EXTM3U\n#EXTINF:-1,A\n#EXTVLCOPT:http-user-agent=VLC\n#EXTGRP:Misc\n\nhttp://example.com/a\n"
	got, err := collect(t, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, 6, got[0].Line)
}

func TestParser_WindowsLineEndings(t *testing.T) {
	in := "#EXTM3U\r\n#EXTINF:-1,A\r\nhttp://example.com/a\r\n"
	got, err := collect(t, strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "http://example.com/a", got[0].StreamURL)
}

func TestParser_ExactlyMaxChannels(t *testing.T) {
	got, err := collect(t, strings.NewReader(playlist(models.MaxChannels)))
	require.NoError(t, err)
	assert.Len(t, got, models.MaxChannels)
}

func TestParser_TooManyChannels(t *testing.T) {
	p := NewParser(strings.NewReader(playlist(models.MaxChannels + 5)))
	n := 0
	for p.Next() {
		n++
	}
	assert.Equal(t, models.MaxChannels, n)
	assert.Equal(t, models.MaxChannels, p.Emitted())

	var fe *FormatError
	require.ErrorAs(t, p.Err(), &fe)
	assert.ErrorIs(t, p.Err(), ErrTooManyChannels)
	assert.False(t, p.Next(), "parser must stay spent after an error")
}

func TestParser_DroppedEntriesDoNotCountTowardsCeiling(t *testing.T) {
	var b strings.Builder
	b.WriteString(playlist(models.MaxChannels))
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "#EXTINF:-1,Bad %d\nftp://example.com/%d\n", i, i)
	}
	got, err := collect(t, strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Len(t, got, models.MaxChannels)
}

func TestParser_ClosedStream(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		_, _ = io.WriteString(pw, "#EXTM3U\n#EXTINF:-1,A\nhttp://example.com/a\n")
		pw.CloseWithError(errors.New("upload aborted"))
	}()

	got, err := collect(t, pr)
	assert.Len(t, got, 1)
	var re *ReadError
	require.ErrorAs(t, err, &re)
	assert.EqualError(t, re.Err, "upload aborted")
}

func TestParser_LineTooLong(t *testing.T) {
	in := "#EXTM3U\n#EXTINF:-1," + strings.Repeat("x", maxLineSize+10) + "\nhttp://example.com/a\n"
	got, err := collect(t, strings.NewReader(in))
	assert.Empty(t, got)
	var re *ReadError
	require.ErrorAs(t, err, &re)
}

func TestParser_NotRestartable(t *testing.T) {
	p := NewParser(strings.NewReader(playlist(2)))
	for p.Next() {
	}
	require.NoError(t, p.Err())
	assert.False(t, p.Next())
	assert.Equal(t, 2, p.Emitted())
}
