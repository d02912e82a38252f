package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/timing"
)

// ReminderDispatcherName identifies the dispatcher in logs, metrics and locks.
const ReminderDispatcherName = "reminder_dispatcher"

// NotificationTypeAssessmentReminder tags reminder notifications.
const NotificationTypeAssessmentReminder = "assessment.reminder"

// Notifier delivers a notification to one user.
type Notifier interface {
	Publish(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// ReminderDispatcher notifies students of supervised assessments starting soon.
type ReminderDispatcher struct {
	assessments repository.AssessmentRepository
	enrollments repository.EnrollmentRepository
	notifier    Notifier
	lead        time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReminderDispatcher constructs the dispatcher. lead is how far ahead of the
// scheduled start reminders go out.
func NewReminderDispatcher(assessments repository.AssessmentRepository, enrollments repository.EnrollmentRepository, notifier Notifier, lead time.Duration, logger zerolog.Logger) *ReminderDispatcher {
	if lead <= 0 {
		lead = 15 * time.Minute
	}
	return &ReminderDispatcher{
		assessments: assessments,
		enrollments: enrollments,
		notifier:    notifier,
		lead:        lead,
		logger:      logger.With().Str("component", ReminderDispatcherName).Logger(),
		now:         time.Now,
	}
}

// Name implements Job.
func (w *ReminderDispatcher) Name() string {
	return ReminderDispatcherName
}

// Run implements Job.
func (w *ReminderDispatcher) Run(ctx context.Context, opts RunOptions) (Report, error) {
	started := time.Now()
	now := w.now()
	report := Report{Worker: ReminderDispatcherName, DryRun: opts.DryRun}
	window := timing.UpcomingWindow(now, w.lead)

	candidates, err := w.assessments.ListReminderCandidates(ctx, window.From, window.To)
	if err != nil {
		report.Duration = time.Since(started)
		err = storeUnavailable(err)
		recordRun(report, err)
		return report, err
	}

	for _, assessment := range candidates {
		if err = ctx.Err(); err != nil {
			break
		}
		report.Processed++

		sent, claimed, err := w.dispatch(ctx, assessment, now, opts)
		if err != nil {
			rowErr := &RowProcessingError{Worker: ReminderDispatcherName, AssessmentID: assessment.ID, Err: err}
			runLogger(ctx, w.logger).Error().Err(rowErr).Uint("assessment_id", assessment.ID).Msg("failed to dispatch reminders")
			report.fail()
			continue
		}
		if !claimed {
			report.skip()
			continue
		}
		report.Acted++
		report.Affected += int64(sent)
	}

	report.Duration = time.Since(started)
	recordRun(report, err)

	runLogger(ctx, w.logger).Info().
		Bool("dry_run", opts.DryRun).
		Int("processed", report.Processed).
		Int("reminded", report.Acted).
		Int64("notifications", report.Affected).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("reminder dispatch finished")

	return report, err
}

// dispatch claims the assessment before sending so overlapping runs cannot both
// notify. The claim is recorded even when nobody is enrolled.
func (w *ReminderDispatcher) dispatch(ctx context.Context, assessment models.Assessment, now time.Time, opts RunOptions) (int, bool, error) {
	recipients, err := w.enrollments.ActiveStudentIDs(ctx, assessment.ClassID)
	if err != nil {
		return 0, false, err
	}

	if opts.DryRun {
		runLogger(ctx, w.logger).Info().Uint("assessment_id", assessment.ID).Int("recipients", len(recipients)).Msg("dry run: would send reminders")
		return len(recipients), true, nil
	}

	claimed, err := w.assessments.MarkReminderSent(ctx, assessment.ID, now)
	if err != nil || !claimed {
		return 0, false, err
	}

	message := reminderMessage(assessment)
	sent := 0
	for _, studentID := range recipients {
		_, err := w.notifier.Publish(ctx, dto.NotificationCreateRequest{
			UserID:  strconv.FormatUint(uint64(studentID), 10),
			Type:    NotificationTypeAssessmentReminder,
			Message: message,
		})
		if err != nil {
			runLogger(ctx, w.logger).Warn().Err(err).Uint("assessment_id", assessment.ID).Uint("student_id", studentID).Msg("failed to send reminder")
			continue
		}
		sent++
	}

	return sent, true, nil
}

func reminderMessage(assessment models.Assessment) string {
	if assessment.ScheduledAt == nil {
		return fmt.Sprintf("%s starts soon", assessment.Title)
	}
	message := fmt.Sprintf("%s starts at %s", assessment.Title, assessment.ScheduledAt.UTC().Format("15:04 MST"))
	if minutes := assessment.DurationMinutes; minutes != nil {
		message += fmt.Sprintf(" and lasts %d minutes", *minutes)
	}
	return message
}
