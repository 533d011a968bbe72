package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voyagen/channelvault/internal/models"
)

// pool is the subset of *pgxpool.Pool the store uses.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres implements Store using PostgreSQL.
type Postgres struct {
	pool pool
	now  func() time.Time
}

// NewPostgres creates a Postgres store from a DSN. Caller must call Close when done.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return newPostgres(p), nil
}

func newPostgres(p pool) *Postgres {
	return &Postgres{pool: p, now: time.Now}
}

// Close closes the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ChannelExists checks the dedup key against non-deleted channels.
func (p *Postgres) ChannelExists(ctx context.Context, name, streamURL string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM channels WHERE name = $1 AND stream_url = $2 AND deleted_at IS NULL)`,
		name, streamURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ChannelExists: %w", err)
	}
	return exists, nil
}

const insertChannelSQL = `INSERT INTO channels
	(name, stream_url, logo_url, tvg_id, tvg_name, tvg_logo, group_title, category, country, language,
	 is_active, sort_order, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)
	ON CONFLICT (name, stream_url) WHERE deleted_at IS NULL DO NOTHING
	RETURNING id`

// InsertChannels inserts the batch in one transaction. Rows hitting the unique
// (name, stream_url) index are left alone and reported as not inserted.
func (p *Postgres) InsertChannels(ctx context.Context, recs []models.ChannelRecord) ([]bool, error) {
	inserted := make([]bool, len(recs))
	if len(recs) == 0 {
		return inserted, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("InsertChannels: begin: %w", err)
	}
	for i := range recs {
		rec := &recs[i]
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = p.now()
		}
		var id int64
		err := tx.QueryRow(ctx, insertChannelSQL,
			rec.Name, rec.StreamURL, rec.LogoURL, rec.TvgID, rec.TvgName, rec.TvgLogo,
			rec.GroupTitle, rec.Category, rec.Country, rec.Language,
			rec.IsActive, rec.SortOrder, createdAt,
		).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return nil, fmt.Errorf("InsertChannels: %q: %w", rec.Name, err)
		}
		rec.ID = id
		inserted[i] = true
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("InsertChannels: commit: %w", err)
	}
	return inserted, nil
}

// errorDetails is the JSON stored in import_runs.error_details.
type errorDetails struct {
	Messages        []string `json:"messages"`
	DuplicatesCount int      `json:"duplicates_count"`
}

// CreateRun inserts a finished run. At most models.MaxStoredErrors messages are kept.
func (p *Postgres) CreateRun(ctx context.Context, run *models.ImportRun) (int64, error) {
	var details []byte
	if len(run.ErrorMessages) > 0 || run.DuplicatesCount > 0 {
		stored := run.WithErrorLimit(models.MaxStoredErrors)
		msgs := stored.ErrorMessages
		if msgs == nil {
			msgs = []string{}
		}
		var err error
		details, err = json.Marshal(errorDetails{Messages: msgs, DuplicatesCount: run.DuplicatesCount})
		if err != nil {
			return 0, fmt.Errorf("CreateRun: marshal error details: %w", err)
		}
	}

	var id int64
	err := p.pool.QueryRow(ctx,
		`INSERT INTO import_runs
		   (run_id, file_name, file_size, total_processed, imported, skipped, errors,
		    error_details, fatal_error, log_file_path, created_by, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		run.RunID, run.FileName, run.FileSize, run.TotalProcessed, run.Imported, run.Skipped, run.Errors,
		details, run.FatalError, run.LogFilePath, run.CreatedBy, run.StartedAt, run.CompletedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("CreateRun: %w", err)
	}
	return id, nil
}

const selectRunColumns = `id, run_id::text, file_name, file_size, total_processed, imported, skipped, errors,
	error_details, fatal_error, COALESCE(log_file_path, ''), created_by, started_at, completed_at`

// GetRun returns a run by id, or ErrNotFound.
func (p *Postgres) GetRun(ctx context.Context, id int64) (*models.ImportRun, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+selectRunColumns+` FROM import_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetRun: %w", err)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (p *Postgres) ListRuns(ctx context.Context, filter RunFilter) ([]models.ImportRun, int, error) {
	filter = filter.normalized()

	var total int
	if err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM import_runs WHERE ($1::bigint IS NULL OR created_by = $1)`,
		filter.CreatedBy,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListRuns: count: %w", err)
	}

	rows, err := p.pool.Query(ctx,
		`SELECT `+selectRunColumns+` FROM import_runs
		 WHERE ($1::bigint IS NULL OR created_by = $1)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		filter.CreatedBy, filter.Limit, filter.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("ListRuns: %w", err)
	}
	defer rows.Close()

	var runs []models.ImportRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListRuns: scan: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ListRuns: %w", err)
	}
	return runs, total, nil
}

func scanRun(row pgx.Row) (*models.ImportRun, error) {
	var (
		run     models.ImportRun
		details []byte
	)
	err := row.Scan(&run.ID, &run.RunID, &run.FileName, &run.FileSize,
		&run.TotalProcessed, &run.Imported, &run.Skipped, &run.Errors,
		&details, &run.FatalError, &run.LogFilePath, &run.CreatedBy, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 {
		var d errorDetails
		if err := json.Unmarshal(details, &d); err != nil {
			return nil, fmt.Errorf("error_details: %w", err)
		}
		run.ErrorMessages = d.Messages
		run.DuplicatesCount = d.DuplicatesCount
	}
	if run.ErrorMessages == nil {
		run.ErrorMessages = []string{}
	}
	return &run, nil
}
