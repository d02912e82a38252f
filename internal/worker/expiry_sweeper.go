package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/service"
	"github.com/noah-isme/gema-assessment-api/internal/timing"
)

// ExpirySweeperName identifies the sweeper in logs, metrics and locks.
const ExpirySweeperName = "expiry_sweeper"

// ExpirySweeper force-submits started supervised sessions whose time ran out.
type ExpirySweeper struct {
	sessions    repository.SessionRepository
	assessments repository.AssessmentRepository
	lifecycle   service.SessionLifecycle
	batchSize   int
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewExpirySweeper constructs the sweeper.
func NewExpirySweeper(sessions repository.SessionRepository, assessments repository.AssessmentRepository, lifecycle service.SessionLifecycle, batchSize int, logger zerolog.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		sessions:    sessions,
		assessments: assessments,
		lifecycle:   lifecycle,
		batchSize:   batchSize,
		logger:      logger.With().Str("component", ExpirySweeperName).Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/worker/expiry"),
		now:         time.Now,
	}
}

// Name implements Job.
func (w *ExpirySweeper) Name() string {
	return ExpirySweeperName
}

// Run implements Job.
func (w *ExpirySweeper) Run(ctx context.Context, opts RunOptions) (Report, error) {
	ctx, span := w.tracer.Start(ctx, "worker.expiry_sweep", trace.WithAttributes(attribute.Bool("worker.dry_run", opts.DryRun)))
	defer span.End()

	started := time.Now()
	now := w.now()
	report := Report{Worker: ExpirySweeperName, DryRun: opts.DryRun}
	assessments := make(map[uint]models.Assessment)

	err := w.sessions.ScanExpiryCandidates(ctx, w.batchSize, func(session models.AssessmentSession) error {
		report.Processed++

		acted, err := w.process(ctx, session, assessments, now, opts)
		if err != nil {
			rowErr := &RowProcessingError{
				Worker:       ExpirySweeperName,
				AssessmentID: session.AssessmentID,
				SessionID:    session.ID,
				StudentID:    session.StudentID,
				Err:          err,
			}
			runLogger(ctx, w.logger).Error().Err(rowErr).
				Uint("assessment_id", session.AssessmentID).
				Uint("session_id", session.ID).
				Uint("student_id", session.StudentID).
				Msg("failed to process expiry candidate")
			report.fail()
			return nil
		}

		if acted {
			report.Acted++
		} else {
			report.skip()
		}
		return nil
	})

	report.Affected = int64(report.Acted)
	report.Duration = time.Since(started)
	if err != nil {
		span.RecordError(err)
		err = storeUnavailable(err)
	}
	recordRun(report, err)

	runLogger(ctx, w.logger).Info().
		Bool("dry_run", opts.DryRun).
		Int("processed", report.Processed).
		Int("submitted", report.Acted).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("expiry sweep finished")

	return report, err
}

func (w *ExpirySweeper) process(ctx context.Context, session models.AssessmentSession, cache map[uint]models.Assessment, now time.Time, opts RunOptions) (bool, error) {
	assessment, ok := cache[session.AssessmentID]
	if !ok {
		loaded, err := w.assessments.GetByID(ctx, session.AssessmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, service.ErrAssessmentNotFound
			}
			return false, err
		}
		cache[session.AssessmentID] = loaded
		assessment = loaded
	}

	if !timing.ShouldAutoSubmit(session, assessment, now) {
		return false, nil
	}

	auto, err := w.lifecycle.AutoScore(ctx, session)
	if err != nil {
		return false, err
	}

	deadline := timing.EffectiveDeadline(session, assessment, now)
	if opts.DryRun {
		runLogger(ctx, w.logger).Info().
			Uint("session_id", session.ID).
			Uint("student_id", session.StudentID).
			Time("submitted_at", deadline).
			Float64("auto_score", auto.AutoPoints).
			Msg("dry run: would force submit session")
		return true, nil
	}

	result, err := w.lifecycle.Submit(ctx, session, service.SubmitOptions{
		AutoScore:            auto.AutoPoints,
		RequiresManualReview: false,
		Forced:               true,
		ViolationCode:        models.ViolationTimeExpired,
		SubmittedAt:          &deadline,
	})
	if err != nil {
		return false, err
	}

	return result.Applied, nil
}
