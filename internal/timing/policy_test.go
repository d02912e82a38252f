package timing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func timePointer(t time.Time) *time.Time { return &t }

func intPointer(v int) *int { return &v }

func supervised(scheduledAt *time.Time, minutes *int) models.Assessment {
	return models.Assessment{
		ID:              1,
		DeliveryMode:    models.DeliveryModeSupervised,
		ScheduledAt:     scheduledAt,
		DurationMinutes: minutes,
		IsPublished:     true,
	}
}

func TestPersonalTimeExpiresOnlyAfterDuration(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	assessment := supervised(nil, intPointer(60))
	session := models.AssessmentSession{StartedAt: timePointer(start)}

	require.False(t, IsPersonalTimeExpired(session, assessment, start.Add(59*time.Minute)))
	require.False(t, IsPersonalTimeExpired(session, assessment, start.Add(60*time.Minute)))
	require.True(t, IsPersonalTimeExpired(session, assessment, start.Add(61*time.Minute)))
}

func TestPersonalTimeRequiresStartAndDuration(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	require.False(t, IsPersonalTimeExpired(models.AssessmentSession{}, supervised(nil, intPointer(10)), now))
	require.False(t, IsPersonalTimeExpired(models.AssessmentSession{StartedAt: timePointer(now.Add(-time.Hour))}, supervised(nil, nil), now))

	homework := models.Assessment{DeliveryMode: models.DeliveryModeHomework, DurationMinutes: intPointer(10)}
	require.False(t, IsPersonalTimeExpired(models.AssessmentSession{StartedAt: timePointer(now.Add(-time.Hour))}, homework, now))
}

func TestHasAssessmentEnded(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		assessment models.Assessment
		ended      bool
	}{
		{"homework without due date", models.Assessment{DeliveryMode: models.DeliveryModeHomework}, false},
		{"homework due in future", models.Assessment{DeliveryMode: models.DeliveryModeHomework, DueDate: timePointer(now.Add(time.Hour))}, false},
		{"homework past due", models.Assessment{DeliveryMode: models.DeliveryModeHomework, DueDate: timePointer(now.Add(-time.Minute))}, true},
		{"supervised unscheduled", supervised(nil, intPointer(30)), false},
		{"supervised schedule only", supervised(timePointer(now.Add(-time.Minute)), nil), true},
		{"supervised running", supervised(timePointer(now.Add(-10*time.Minute)), intPointer(30)), false},
		{"supervised finished", supervised(timePointer(now.Add(-31*time.Minute)), intPointer(30)), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.ended, HasAssessmentEnded(tc.assessment, now))
		})
	}
}

func TestHomeworkWithoutDueDateNeverEnds(t *testing.T) {
	assessment := models.Assessment{DeliveryMode: models.DeliveryModeHomework, IsPublished: true}
	far := time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)

	require.False(t, HasAssessmentEnded(assessment, far))
	require.False(t, ShouldAutoSubmit(models.AssessmentSession{StartedAt: timePointer(far.Add(-time.Hour))}, assessment, far))
}

func TestEffectiveDeadlinePrefersPersonalWindow(t *testing.T) {
	scheduled := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	started := scheduled.Add(10 * time.Minute)
	now := scheduled.Add(3 * time.Hour)
	assessment := supervised(timePointer(scheduled), intPointer(60))

	personal := EffectiveDeadline(models.AssessmentSession{StartedAt: timePointer(started)}, assessment, now)
	require.Equal(t, started.Add(time.Hour), personal)

	global := EffectiveDeadline(models.AssessmentSession{}, assessment, now)
	require.Equal(t, scheduled.Add(time.Hour), global)

	homework := models.Assessment{DeliveryMode: models.DeliveryModeHomework}
	require.Equal(t, now, EffectiveDeadline(models.AssessmentSession{}, homework, now))

	due := now.Add(-time.Hour)
	homework.DueDate = &due
	require.Equal(t, due, EffectiveDeadline(models.AssessmentSession{}, homework, now))
}

func TestShouldAutoSubmitLateStarterKeepsFullDuration(t *testing.T) {
	scheduled := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	assessment := supervised(timePointer(scheduled), intPointer(60))
	session := models.AssessmentSession{StartedAt: timePointer(scheduled.Add(10 * time.Minute))}

	require.False(t, ShouldAutoSubmit(session, assessment, scheduled.Add(5*time.Minute)))
	require.False(t, ShouldAutoSubmit(session, assessment, scheduled.Add(65*time.Minute)))
	require.True(t, ShouldAutoSubmit(session, assessment, scheduled.Add(75*time.Minute)))
}

func TestShouldAutoSubmitIgnoresClosedOrUnpublished(t *testing.T) {
	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Hour)
	assessment := supervised(timePointer(start), intPointer(30))

	submitted := models.AssessmentSession{StartedAt: timePointer(start), SubmittedAt: timePointer(start.Add(time.Minute))}
	require.False(t, ShouldAutoSubmit(submitted, assessment, now))

	assessment.IsPublished = false
	require.False(t, ShouldAutoSubmit(models.AssessmentSession{StartedAt: timePointer(start)}, assessment, now))
}

func TestUpcomingWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 45, 0, 0, time.UTC)
	window := UpcomingWindow(now, 15*time.Minute)

	require.False(t, window.Contains(now))
	require.True(t, window.Contains(now.Add(time.Minute)))
	require.True(t, window.Contains(now.Add(15*time.Minute)))
	require.False(t, window.Contains(now.Add(16*time.Minute)))
}
