// Package worker holds the unattended jobs that enforce assessment time limits.
//
// Every job may run more than once, concurrently with itself and with live user
// actions. Correctness rests on the conditional row writes in the repository
// layer, never on the scheduler firing exactly once.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/middleware"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
)

// ErrStoreUnavailable marks the only failure that aborts a run.
var ErrStoreUnavailable = errors.New("session store unavailable")

// RunOptions controls a single job run.
type RunOptions struct {
	DryRun bool
}

// Report summarises one run.
type Report struct {
	Worker    string        `json:"worker"`
	DryRun    bool          `json:"dry_run"`
	Processed int           `json:"processed"`
	Acted     int           `json:"acted"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Affected  int64         `json:"affected"`
	Duration  time.Duration `json:"duration"`
}

func (r *Report) skip() {
	r.Skipped++
}

func (r *Report) fail() {
	r.Failed++
	r.Skipped++
}

// RowProcessingError identifies a row that could not be handled. It is logged and
// counted as skipped; it never aborts the run.
type RowProcessingError struct {
	Worker       string
	AssessmentID uint
	SessionID    uint
	StudentID    uint
	Err          error
}

func (e *RowProcessingError) Error() string {
	return fmt.Sprintf("%s: assessment %d session %d student %d: %v", e.Worker, e.AssessmentID, e.SessionID, e.StudentID, e.Err)
}

func (e *RowProcessingError) Unwrap() error {
	return e.Err
}

// Job is a schedulable unit of work.
type Job interface {
	Name() string
	Run(ctx context.Context, opts RunOptions) (Report, error)
}

func storeUnavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func recordRun(report Report, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if report.DryRun {
		result += "_dry_run"
	}

	observability.WorkerRuns().WithLabelValues(report.Worker, result).Inc()
	observability.WorkerRows().WithLabelValues(report.Worker, "acted").Add(float64(report.Acted))
	observability.WorkerRows().WithLabelValues(report.Worker, "skipped").Add(float64(report.Skipped))
	observability.WorkerRows().WithLabelValues(report.Worker, "failed").Add(float64(report.Failed))
	observability.WorkerDuration().WithLabelValues(report.Worker).Observe(report.Duration.Seconds())
}

func runLogger(ctx context.Context, base zerolog.Logger) *zerolog.Logger {
	logger := middleware.LoggerWithCorrelation(ctx, base)
	return &logger
}
