package store

import (
	"context"
	"errors"

	"github.com/voyagen/channelvault/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ChannelStore persists channels keyed by (name, stream_url).
type ChannelStore interface {
	// ChannelExists reports whether a non-deleted channel with this name and stream URL exists.
	ChannelExists(ctx context.Context, name, streamURL string) (bool, error)
	// InsertChannels writes recs as one unit of work. inserted[i] is false when
	// recs[i] collided with an existing (name, stream_url); on error nothing is written.
	InsertChannels(ctx context.Context, recs []models.ChannelRecord) (inserted []bool, err error)
}

// RunStore persists import run summaries.
type RunStore interface {
	// CreateRun appends a finished run and returns its id.
	CreateRun(ctx context.Context, run *models.ImportRun) (int64, error)
	// GetRun returns one run by id.
	GetRun(ctx context.Context, id int64) (*models.ImportRun, error)
	// ListRuns returns runs newest first and the total count before limit/offset.
	ListRuns(ctx context.Context, filter RunFilter) ([]models.ImportRun, int, error)
}

// Store is the full persistence surface.
type Store interface {
	ChannelStore
	RunStore
}

// RunFilter holds optional filters for listing runs.
type RunFilter struct {
	CreatedBy *int64
	Limit     int // default 15, max 100
	Offset    int
}

func (f RunFilter) normalized() RunFilter {
	if f.Limit <= 0 {
		f.Limit = 15
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
