package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func TestGradingAccessGuard(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	minutes := 120
	recent := now.Add(-5 * time.Minute)
	earlier := now.Add(-3 * time.Hour)
	pastDue := now.Add(-time.Hour)
	futureDue := now.Add(time.Hour)

	lateStart := now.Add(-30 * time.Minute)
	unscheduled := models.Assessment{DeliveryMode: models.DeliveryModeSupervised, DurationMinutes: &minutes, IsPublished: true}
	hourLong := 60
	closedWindow := now.Add(-65 * time.Minute)

	supervised := func(scheduledAt time.Time) models.Assessment {
		return models.Assessment{DeliveryMode: models.DeliveryModeSupervised, ScheduledAt: &scheduledAt, DurationMinutes: &minutes, IsPublished: true}
	}

	cases := []struct {
		name       string
		session    models.AssessmentSession
		assessment models.Assessment
		allowed    bool
		reason     string
		warning    string
	}{
		{
			name:       "live supervised session",
			session:    models.AssessmentSession{StartedAt: &recent},
			assessment: supervised(recent),
			reason:     GradingReasonAssessmentStillLive,
		},
		{
			name:       "supervised session past its time",
			session:    models.AssessmentSession{StartedAt: &earlier},
			assessment: supervised(earlier),
			allowed:    true,
			reason:     GradingReasonNotSubmittedAssessmentEnded,
			warning:    GradingWarningWithoutSubmission,
		},
		{
			name:       "late starter inside own time after window closed",
			session:    models.AssessmentSession{StartedAt: &lateStart},
			assessment: models.Assessment{DeliveryMode: models.DeliveryModeSupervised, ScheduledAt: &closedWindow, DurationMinutes: &hourLong, IsPublished: true},
			reason:     GradingReasonAssessmentStillLive,
		},
		{
			name:       "unscheduled supervised session out of time",
			session:    models.AssessmentSession{StartedAt: &earlier},
			assessment: unscheduled,
			allowed:    true,
			reason:     GradingReasonNotSubmittedAssessmentEnded,
			warning:    GradingWarningWithoutSubmission,
		},
		{
			name:       "unscheduled supervised session never started",
			session:    models.AssessmentSession{},
			assessment: unscheduled,
			reason:     GradingReasonAssessmentStillLive,
		},
		{
			name:       "submitted session",
			session:    models.AssessmentSession{StartedAt: &recent, SubmittedAt: &now},
			assessment: supervised(recent),
			allowed:    true,
			reason:     GradingReasonSubmitted,
		},
		{
			name:       "homework past due",
			session:    models.AssessmentSession{},
			assessment: models.Assessment{DeliveryMode: models.DeliveryModeHomework, DueDate: &pastDue},
			allowed:    true,
			reason:     GradingReasonNotSubmittedAssessmentEnded,
			warning:    GradingWarningWithoutSubmission,
		},
		{
			name:       "homework still open",
			session:    models.AssessmentSession{StartedAt: &earlier},
			assessment: models.Assessment{DeliveryMode: models.DeliveryModeHomework, DueDate: &futureDue},
			reason:     GradingReasonAssessmentStillLive,
		},
		{
			name:       "homework without due date",
			session:    models.AssessmentSession{StartedAt: &earlier},
			assessment: models.Assessment{DeliveryMode: models.DeliveryModeHomework},
			reason:     GradingReasonAssessmentStillLive,
		},
	}

	guard := NewGradingAccessGuard()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision := guard.Check(tc.session, tc.assessment, now)
			require.Equal(t, tc.allowed, decision.Allowed)
			require.Equal(t, tc.reason, decision.Reason)
			require.Equal(t, tc.warning, decision.Warning)

			err := decision.Err()
			if tc.allowed {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrGradingDenied)
			var denied *GradingDeniedError
			require.True(t, errors.As(err, &denied))
			require.Equal(t, tc.reason, denied.Reason)
		})
	}
}
