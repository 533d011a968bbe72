// Package service drives playlist imports end to end: parsing, validation,
// deduplication against the channel store, batched writes, the per-run audit
// log and the persisted run summary.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/voyagen/channelvault/internal/auditlog"
	"github.com/voyagen/channelvault/internal/fetcher"
	"github.com/voyagen/channelvault/internal/metrics"
	"github.com/voyagen/channelvault/internal/models"
	"github.com/voyagen/channelvault/internal/store"
)

// BatchSize is the number of validated channels written per storage call.
const BatchSize = 500

const timeLayout = "2006-01-02 15:04:05"

// Importer runs playlist imports. It holds no per-run state and is safe for
// concurrent use; concurrent runs rely on the channel store's unique
// (name, stream_url) index to settle races between their existence checks.
type Importer struct {
	channels store.ChannelStore
	runs     store.RunStore
	logs     *auditlog.Dir
	archiver auditlog.Archiver
	logger   *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithArchiver uploads each closed audit log. Upload failures are logged only.
func WithArchiver(a auditlog.Archiver) Option {
	return func(im *Importer) { im.archiver = a }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) { im.now = now }
}

// NewImporter returns an Importer writing channels to channels, run summaries
// to runs and audit logs under logs.
func NewImporter(channels store.ChannelStore, runs store.RunStore, logs *auditlog.Dir, logger *slog.Logger, opts ...Option) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	im := &Importer{
		channels: channels,
		runs:     runs,
		logs:     logs,
		logger:   logger,
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// runState is the accumulator of one run.
type runState struct {
	run        models.ImportRun
	audit      *auditlog.Log
	batch      []models.ChannelRecord
	duplicates []string
}

// Run imports the playlist read from r. fileName and fileSize are the values
// declared by the caller and are only recorded.
//
// The returned run is never nil. Per-record and per-batch failures, a malformed
// playlist and a broken stream are all reported inside the run; the error is
// non-nil only when the summary could not be persisted. Cancelling ctx, like
// closing r, stops reading but still flushes the channels already accepted.
func (im *Importer) Run(ctx context.Context, r io.Reader, fileName string, fileSize int64, actingUserID int64) (*models.ImportRun, error) {
	st := &runState{
		run: models.ImportRun{
			RunID:         uuid.NewString(),
			FileName:      fileName,
			FileSize:      fileSize,
			ErrorMessages: []string{},
			CreatedBy:     actingUserID,
			StartedAt:     im.now(),
		},
		batch: make([]models.ChannelRecord, 0, BatchSize),
	}
	logger := im.logger.With("run_id", st.run.RunID, "file", fileName)
	logger.Info("import started", "size", fileSize, "user_id", actingUserID)

	audit, err := im.logs.Open(fileName)
	if err != nil {
		im.fatal(logger, st, err)
	} else {
		st.audit = audit
		st.run.LogFilePath = audit.Path()
		im.writeHeader(st)
		im.consume(ctx, logger, st, fetcher.NewParser(r))
	}

	return im.finish(ctx, logger, st)
}

func (im *Importer) writeHeader(st *runState) {
	st.audit.Println("=== M3U Import Started ===")
	st.audit.Printf("File: %s", st.run.FileName)
	st.audit.Printf("Size: %s", formatBytes(st.run.FileSize))
	st.audit.Printf("User ID: %d", st.run.CreatedBy)
	st.audit.Printf("Time: %s", st.run.StartedAt.Format(timeLayout))
	st.audit.Println("")
}

// consume pulls candidates until the playlist ends or the run turns fatal, then
// flushes what is left. Cancellation is only observed between candidates;
// flushes never see it, so accepted channels are always written.
func (im *Importer) consume(ctx context.Context, logger *slog.Logger, st *runState, p *fetcher.Parser) {
	for {
		if err := ctx.Err(); err != nil {
			im.fatal(logger, st, fmt.Errorf("import cancelled: %w", err))
			break
		}
		if !p.Next() {
			if err := p.Err(); err != nil {
				im.fatal(logger, st, err)
			}
			break
		}

		c := p.Candidate()
		st.run.TotalProcessed++
		if err := im.validate.Struct(c); err != nil {
			st.run.Errors++
			msg := fmt.Sprintf("Line %d: Invalid channel data - %s", c.Line, c.Name)
			st.addMessage(msg)
			st.audit.Println("[ERROR] " + msg)
			metrics.ImportChannels.WithLabelValues(metrics.ResultError).Inc()
			continue
		}

		st.batch = append(st.batch, models.NewChannelRecord(c, im.now()))
		if len(st.batch) >= BatchSize {
			im.flush(context.WithoutCancel(ctx), logger, st)
		}
	}
	im.flush(context.WithoutCancel(ctx), logger, st)
}

// flush writes the pending batch. Channels already present are skipped; the
// rest go to the store in one call. A storage failure fails the unresolved part
// of the batch only, and the run carries on.
func (im *Importer) flush(ctx context.Context, logger *slog.Logger, st *runState) {
	if len(st.batch) == 0 {
		return
	}
	batch := st.batch
	st.batch = make([]models.ChannelRecord, 0, BatchSize)

	pending := make([]models.ChannelRecord, 0, len(batch))
	for i, rec := range batch {
		exists, err := im.channels.ChannelExists(ctx, rec.Name, rec.StreamURL)
		if err != nil {
			im.failBatch(logger, st, len(pending)+len(batch)-i, err)
			return
		}
		if exists {
			st.skip(rec.Name)
			continue
		}
		pending = append(pending, rec)
	}
	if len(pending) == 0 {
		return
	}

	inserted, err := im.channels.InsertChannels(ctx, pending)
	if err != nil {
		im.failBatch(logger, st, len(pending), err)
		return
	}
	for i, ok := range inserted {
		if !ok {
			// Lost a race with another run between the check and the insert.
			st.skip(pending[i].Name)
			continue
		}
		st.run.Imported++
		metrics.ImportChannels.WithLabelValues(metrics.ResultImported).Inc()
	}
}

func (im *Importer) failBatch(logger *slog.Logger, st *runState, n int, err error) {
	st.run.Errors += n
	st.addMessage("Batch insert failed: " + err.Error())
	st.audit.Println("[ERROR] Batch insert failed: " + err.Error())
	logger.Error("batch insert failed", "batch_size", n, "error", err)
	metrics.ImportBatchFailures.Inc()
	metrics.ImportChannels.WithLabelValues(metrics.ResultError).Add(float64(n))
}

// fatal records the error that ended the run. It is not counted in Errors,
// which only accounts for processed candidates.
func (im *Importer) fatal(logger *slog.Logger, st *runState, err error) {
	msg := "Fatal Error: " + err.Error()
	reason := err.Error()
	st.run.FatalError = &reason
	st.addFinalMessage(msg)
	st.audit.Println("[FATAL ERROR] " + msg)
	logger.Error("import failed", "error", err)
}

// finish writes the summary, closes and archives the audit log and persists the run.
func (im *Importer) finish(ctx context.Context, logger *slog.Logger, st *runState) (*models.ImportRun, error) {
	ctx = context.WithoutCancel(ctx)
	run := &st.run
	completed := im.now()
	run.CompletedAt = &completed
	run.DuplicatesCount = len(st.duplicates)

	st.audit.Println("")
	st.audit.Println("=== Import Summary ===")
	st.audit.Printf("Total Processed: %d", run.TotalProcessed)
	st.audit.Printf("Successfully Imported: %d", run.Imported)
	st.audit.Printf("Skipped (Duplicates): %d", run.Skipped)
	st.audit.Printf("Errors: %d", run.Errors)
	st.audit.Printf("Success Rate: %.2f%%", run.SuccessRate())
	if run.FatalError != nil {
		st.audit.Println("Status: aborted")
	}
	st.audit.Printf("Completion Time: %s", completed.Format(timeLayout))

	if st.audit != nil {
		if err := st.audit.Close(); err != nil {
			logger.Warn("close audit log", "path", run.LogFilePath, "error", err)
		}
		if im.archiver != nil {
			if err := im.archiver.Archive(ctx, run.LogFilePath); err != nil {
				logger.Warn("archive audit log", "path", run.LogFilePath, "error", err)
			}
		}
	}

	outcome := metrics.OutcomeCompleted
	if run.FatalError != nil {
		outcome = metrics.OutcomeAborted
	}
	metrics.ImportRuns.WithLabelValues(outcome).Inc()
	metrics.ImportDuration.Observe(completed.Sub(run.StartedAt).Seconds())

	logger.Info("import finished",
		"outcome", outcome,
		"total_processed", run.TotalProcessed,
		"imported", run.Imported,
		"skipped", run.Skipped,
		"errors", run.Errors,
	)

	id, err := im.runs.CreateRun(ctx, run)
	if err != nil {
		logger.Error("save import run", "error", err)
		result := run.WithErrorLimit(models.MaxReturnedErrors)
		return &result, fmt.Errorf("save import run: %w", err)
	}
	run.ID = id
	result := run.WithErrorLimit(models.MaxReturnedErrors)
	return &result, nil
}

func (st *runState) skip(name string) {
	st.run.Skipped++
	st.duplicates = append(st.duplicates, name)
	st.audit.Println("[SKIPPED] Duplicate: " + name)
	metrics.ImportChannels.WithLabelValues(metrics.ResultSkipped).Inc()
}

// addMessage keeps the first models.MaxStoredErrors messages; later ones
// would never be stored or returned.
func (st *runState) addMessage(msg string) {
	if len(st.run.ErrorMessages) < models.MaxStoredErrors {
		st.run.ErrorMessages = append(st.run.ErrorMessages, msg)
	}
}

// addFinalMessage is addMessage for the fatal line, which takes the last
// stored slot when the list is already full.
func (st *runState) addFinalMessage(msg string) {
	if n := len(st.run.ErrorMessages); n >= models.MaxStoredErrors {
		st.run.ErrorMessages[n-1] = msg
		return
	}
	st.run.ErrorMessages = append(st.run.ErrorMessages, msg)
}
