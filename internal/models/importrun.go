package models

import (
	"math"
	"time"
)

// ImportRun is the summary of one playlist import. It is written once, when the
// run finishes, and never changed afterwards.
type ImportRun struct {
	ID              int64      `json:"id,omitempty"`
	RunID           string     `json:"run_id"`
	FileName        string     `json:"file_name"`
	FileSize        int64      `json:"file_size"`
	TotalProcessed  int        `json:"total_processed"`
	Imported        int        `json:"imported"`
	Skipped         int        `json:"skipped"`
	Errors          int        `json:"errors"`
	ErrorMessages   []string   `json:"error_messages"`
	DuplicatesCount int        `json:"duplicates_count"`
	FatalError      *string    `json:"fatal_error,omitempty"`
	LogFilePath     string     `json:"log_file_path"`
	CreatedBy       int64      `json:"created_by"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// SuccessRate is the imported share of processed channels in percent,
// rounded to two decimals.
func (r *ImportRun) SuccessRate() float64 {
	if r.TotalProcessed == 0 {
		return 0
	}
	rate := float64(r.Imported) / float64(r.TotalProcessed) * 100
	return math.Round(rate*100) / 100
}

// Balanced reports whether every processed candidate was accounted for.
func (r *ImportRun) Balanced() bool {
	return r.TotalProcessed == r.Imported+r.Skipped+r.Errors
}

// WithErrorLimit returns a copy of r keeping at most n error messages.
func (r ImportRun) WithErrorLimit(n int) ImportRun {
	if len(r.ErrorMessages) > n {
		msgs := make([]string, n)
		copy(msgs, r.ErrorMessages[:n])
		r.ErrorMessages = msgs
	}
	return r
}
