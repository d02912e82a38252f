package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/timing"
)

// MaterializerName identifies the materializer in logs, metrics and locks.
const MaterializerName = "assignment_materializer"

// Materializer creates unstarted sessions for enrolled students who never opened an
// assessment that has ended, so every student has a gradeable row.
type Materializer struct {
	assessments repository.AssessmentRepository
	enrollments repository.EnrollmentRepository
	sessions    repository.SessionRepository
	batchSize   int
	logger      zerolog.Logger
	now         func() time.Time
}

// NewMaterializer constructs the materializer.
func NewMaterializer(assessments repository.AssessmentRepository, enrollments repository.EnrollmentRepository, sessions repository.SessionRepository, batchSize int, logger zerolog.Logger) *Materializer {
	return &Materializer{
		assessments: assessments,
		enrollments: enrollments,
		sessions:    sessions,
		batchSize:   batchSize,
		logger:      logger.With().Str("component", MaterializerName).Logger(),
		now:         time.Now,
	}
}

// Name implements Job.
func (w *Materializer) Name() string {
	return MaterializerName
}

// Run implements Job.
func (w *Materializer) Run(ctx context.Context, opts RunOptions) (Report, error) {
	started := time.Now()
	now := w.now()
	report := Report{Worker: MaterializerName, DryRun: opts.DryRun}

	err := w.assessments.ScanPossiblyEnded(ctx, now, w.batchSize, func(assessment models.Assessment) error {
		if !timing.HasAssessmentEnded(assessment, now) {
			return nil
		}
		report.Processed++

		created, err := w.materialize(ctx, assessment, started, opts)
		if err != nil {
			rowErr := &RowProcessingError{Worker: MaterializerName, AssessmentID: assessment.ID, Err: err}
			runLogger(ctx, w.logger).Error().Err(rowErr).Uint("assessment_id", assessment.ID).Msg("failed to materialize sessions")
			report.fail()
			return nil
		}

		if created == 0 {
			report.skip()
			return nil
		}
		report.Acted++
		report.Affected += created
		return nil
	})

	report.Duration = time.Since(started)
	if err != nil {
		err = storeUnavailable(err)
	}
	recordRun(report, err)

	runLogger(ctx, w.logger).Info().
		Bool("dry_run", opts.DryRun).
		Int("processed", report.Processed).
		Int("acted", report.Acted).
		Int64("created", report.Affected).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("materialization finished")

	return report, err
}

// materialize creates the missing rows and stamps the assessment so later runs only
// revisit it when the roster changes. The stamp uses the run start, which precedes
// the roster read.
func (w *Materializer) materialize(ctx context.Context, assessment models.Assessment, runStarted time.Time, opts RunOptions) (int64, error) {
	enrolled, err := w.enrollments.ActiveStudentIDs(ctx, assessment.ClassID)
	if err != nil {
		return 0, err
	}

	existing, err := w.sessions.StudentIDsByAssessment(ctx, assessment.ID)
	if err != nil {
		return 0, err
	}

	missing := difference(enrolled, existing)
	if opts.DryRun {
		if len(missing) > 0 {
			runLogger(ctx, w.logger).Info().Uint("assessment_id", assessment.ID).Int("missing", len(missing)).Msg("dry run: would create sessions")
		}
		return int64(len(missing)), nil
	}

	var created int64
	if len(missing) > 0 {
		if created, err = w.sessions.CreateMissing(ctx, assessment.ID, missing); err != nil {
			return 0, err
		}
	}

	if err := w.assessments.MarkMaterialized(ctx, assessment.ID, runStarted); err != nil {
		return created, err
	}
	return created, nil
}

func difference(all, existing []uint) []uint {
	seen := make(map[uint]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	out := make([]uint, 0, len(all))
	for _, id := range all {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
