package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewChannelRecord_Defaults(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	empty := ""
	rec := NewChannelRecord(ChannelCandidate{Name: "CNN", StreamURL: "http://cnn", GroupTitle: &empty}, now)

	assert.Equal(t, DefaultGroupTitle, rec.GroupTitle)
	assert.True(t, rec.IsActive)
	assert.Equal(t, DefaultSortOrder, rec.SortOrder)
	assert.Equal(t, now, rec.CreatedAt)
	assert.Nil(t, rec.TvgID)

	news := "News"
	rec = NewChannelRecord(ChannelCandidate{Name: "CNN", StreamURL: "http://cnn", GroupTitle: &news}, now)
	assert.Equal(t, "News", rec.GroupTitle)
}

func TestImportRun_SuccessRate(t *testing.T) {
	tests := []struct {
		name string
		run  ImportRun
		want float64
	}{
		{"nothing processed", ImportRun{}, 0},
		{"all imported", ImportRun{TotalProcessed: 4, Imported: 4}, 100},
		{"rounded", ImportRun{TotalProcessed: 3, Imported: 2, Skipped: 1}, 66.67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.run.SuccessRate())
		})
	}
}

func TestImportRun_Balanced(t *testing.T) {
	assert.True(t, (&ImportRun{TotalProcessed: 5, Imported: 2, Skipped: 2, Errors: 1}).Balanced())
	assert.False(t, (&ImportRun{TotalProcessed: 5, Imported: 2}).Balanced())
}

func TestImportRun_WithErrorLimit(t *testing.T) {
	run := ImportRun{ErrorMessages: []string{"a", "b", "c"}}

	limited := run.WithErrorLimit(2)
	assert.Equal(t, []string{"a", "b"}, limited.ErrorMessages)
	assert.Len(t, run.ErrorMessages, 3)

	limited.ErrorMessages[0] = "changed"
	assert.Equal(t, "a", run.ErrorMessages[0])

	assert.Equal(t, run.ErrorMessages, run.WithErrorLimit(10).ErrorMessages)
}
