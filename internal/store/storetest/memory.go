// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"sort"
	"sync"

	"github.com/voyagen/channelvault/internal/models"
	"github.com/voyagen/channelvault/internal/store"
)

type channelKey struct{ name, url string }

// Memory is a goroutine-safe in-memory store.Store.
type Memory struct {
	mu       sync.Mutex
	channels map[channelKey]models.ChannelRecord
	runs     []models.ImportRun
	nextID   int64

	// ExistsErr, when set, is returned by ChannelExists.
	ExistsErr error
	// StaleExists makes ChannelExists always answer false, as if another run
	// inserted the row between the check and the insert.
	StaleExists bool
	// InsertHook runs before each InsertChannels call (1-based); a non-nil
	// error fails the whole batch.
	InsertHook func(call int, recs []models.ChannelRecord) error
	// CreateRunErr, when set, is returned by CreateRun.
	CreateRunErr error

	InsertCalls int
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{channels: make(map[channelKey]models.ChannelRecord)}
}

func (m *Memory) ChannelExists(_ context.Context, name, streamURL string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	if m.StaleExists {
		return false, nil
	}
	_, ok := m.channels[channelKey{name, streamURL}]
	return ok, nil
}

func (m *Memory) InsertChannels(_ context.Context, recs []models.ChannelRecord) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertCalls++
	if m.InsertHook != nil {
		if err := m.InsertHook(m.InsertCalls, recs); err != nil {
			return nil, err
		}
	}
	inserted := make([]bool, len(recs))
	for i := range recs {
		k := channelKey{recs[i].Name, recs[i].StreamURL}
		if _, ok := m.channels[k]; ok {
			continue
		}
		m.nextID++
		recs[i].ID = m.nextID
		m.channels[k] = recs[i]
		inserted[i] = true
	}
	return inserted, nil
}

// Seed adds records directly.
func (m *Memory) Seed(recs ...models.ChannelRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.nextID++
		r.ID = m.nextID
		m.channels[channelKey{r.Name, r.StreamURL}] = r
	}
}

// Channels returns all stored channels ordered by id.
func (m *Memory) Channels() []models.ChannelRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.ChannelRecord, 0, len(m.channels))
	for _, r := range m.channels {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) CreateRun(_ context.Context, run *models.ImportRun) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateRunErr != nil {
		return 0, m.CreateRunErr
	}
	stored := run.WithErrorLimit(models.MaxStoredErrors)
	stored.ID = int64(len(m.runs) + 1)
	m.runs = append(m.runs, stored)
	return stored.ID, nil
}

func (m *Memory) GetRun(_ context.Context, id int64) (*models.ImportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 1 || id > int64(len(m.runs)) {
		return nil, store.ErrNotFound
	}
	run := m.runs[id-1]
	return &run, nil
}

func (m *Memory) ListRuns(_ context.Context, filter store.RunFilter) ([]models.ImportRun, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.ImportRun
	for i := len(m.runs) - 1; i >= 0; i-- {
		if filter.CreatedBy != nil && m.runs[i].CreatedBy != *filter.CreatedBy {
			continue
		}
		matched = append(matched, m.runs[i])
	}
	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 15
	}
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

// Runs returns every persisted run in creation order.
func (m *Memory) Runs() []models.ImportRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ImportRun(nil), m.runs...)
}

var _ store.Store = (*Memory)(nil)
