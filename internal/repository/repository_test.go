package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Assessment{},
		&models.Question{},
		&models.AssessmentSession{},
		&models.Answer{},
		&models.Enrollment{},
		&models.ActivityLog{},
		&models.Notification{},
	))
	return db
}

func createSupervised(t *testing.T, db *gorm.DB, published bool, scheduledAt time.Time, minutes int) models.Assessment {
	t.Helper()
	assessment := models.Assessment{
		ClassID:         1,
		Title:           "Midterm",
		DeliveryMode:    models.DeliveryModeSupervised,
		ScheduledAt:     &scheduledAt,
		DurationMinutes: &minutes,
		IsPublished:     published,
	}
	require.NoError(t, db.Create(&assessment).Error)
	return assessment
}

func TestSessionRepositoryMarkStartedOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	session, err := repo.FindOrCreate(ctx, 1, 2)
	require.NoError(t, err)

	first := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	applied, err := repo.MarkStarted(ctx, session.ID, first)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.MarkStarted(ctx, session.ID, first.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, applied)

	stored, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, first.Equal(*stored.StartedAt))
}

func TestSessionRepositoryFindOrCreateIsUnique(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	first, err := repo.FindOrCreate(ctx, 3, 4)
	require.NoError(t, err)
	second, err := repo.FindOrCreate(ctx, 3, 4)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestSessionRepositoryMarkSubmittedAppliesOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	session, err := repo.FindOrCreate(ctx, 1, 1)
	require.NoError(t, err)

	first := time.Date(2025, 1, 1, 11, 10, 0, 0, time.UTC)
	applied := 0
	for i := 0; i < 3; i++ {
		violation := models.ViolationTimeExpired
		ok, err := repo.MarkSubmitted(ctx, session.ID, SubmissionFields{
			SubmittedAt:       first.Add(time.Duration(i) * time.Minute),
			ForcedSubmission:  i > 0,
			SecurityViolation: &violation,
		})
		require.NoError(t, err)
		if ok {
			applied++
		}
	}
	require.Equal(t, 1, applied)

	stored, err := repo.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.True(t, first.Equal(*stored.SubmittedAt))
	require.False(t, stored.ForcedSubmission)
}

func TestSessionRepositoryResetBlockedByAnswers(t *testing.T) {
	db := setupTestDB(t)
	sessions := NewSessionRepository(db)
	answers := NewAnswerRepository(db)
	ctx := context.Background()

	session, err := sessions.FindOrCreate(ctx, 1, 1)
	require.NoError(t, err)
	_, err = sessions.MarkStarted(ctx, session.ID, time.Now())
	require.NoError(t, err)

	applied, err := sessions.Reset(ctx, session.ID, ResetGuard{RequireNotStarted: true})
	require.NoError(t, err)
	require.False(t, applied, "started sessions are protected by the guard")

	_, err = answers.Upsert(ctx, session.ID, 9, datatypes.JSON(`"A"`), time.Now())
	require.NoError(t, err)

	applied, err = sessions.Reset(ctx, session.ID, ResetGuard{})
	require.NoError(t, err)
	require.False(t, applied, "answers block reset")

	require.NoError(t, db.Where("session_id = ?", session.ID).Delete(&models.Answer{}).Error)
	applied, err = sessions.Reset(ctx, session.ID, ResetGuard{})
	require.NoError(t, err)
	require.True(t, applied)

	stored, err := sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	require.Nil(t, stored.StartedAt)
	require.Equal(t, models.SessionStatusNotSubmitted, stored.Status())
}

func TestSessionRepositoryScanExpiryCandidates(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	published := createSupervised(t, db, true, now.Add(-2*time.Hour), 60)
	draft := createSupervised(t, db, false, now.Add(-2*time.Hour), 60)
	homework := models.Assessment{ClassID: 1, Title: "HW", DeliveryMode: models.DeliveryModeHomework, IsPublished: true}
	require.NoError(t, db.Create(&homework).Error)

	started := now.Add(-90 * time.Minute)
	submitted := now.Add(-80 * time.Minute)
	rows := []models.AssessmentSession{
		{AssessmentID: published.ID, StudentID: 1, StartedAt: &started},
		{AssessmentID: published.ID, StudentID: 2},
		{AssessmentID: published.ID, StudentID: 3, StartedAt: &started, SubmittedAt: &submitted},
		{AssessmentID: draft.ID, StudentID: 4, StartedAt: &started},
		{AssessmentID: homework.ID, StudentID: 5, StartedAt: &started},
		{AssessmentID: published.ID, StudentID: 6, StartedAt: &started},
	}
	require.NoError(t, db.Create(&rows).Error)

	var seen []uint
	require.NoError(t, repo.ScanExpiryCandidates(ctx, 1, func(session models.AssessmentSession) error {
		seen = append(seen, session.StudentID)
		return nil
	}))
	require.Equal(t, []uint{1, 6}, seen)
}

func TestSessionRepositoryCreateMissingSkipsExisting(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	_, err := repo.FindOrCreate(ctx, 7, 1)
	require.NoError(t, err)

	created, err := repo.CreateMissing(ctx, 7, []uint{2, 3})
	require.NoError(t, err)
	require.Equal(t, int64(2), created)

	ids, err := repo.StudentIDsByAssessment(ctx, 7)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint{1, 2, 3}, ids)

	created, err = repo.CreateMissing(ctx, 7, []uint{3})
	require.NoError(t, err)
	require.Zero(t, created)
}

func TestAnswerRepositoryUpsertReplacesPayload(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAnswerRepository(db)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, 1, 2, datatypes.JSON(`"A"`), time.Now())
	require.NoError(t, err)
	stored, err := repo.Upsert(ctx, 1, 2, datatypes.JSON(`"B"`), time.Now())
	require.NoError(t, err)
	require.JSONEq(t, `"B"`, string(stored.Payload))

	total, err := repo.CountBySession(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestAssessmentRepositoryReminderCandidatesAndMark(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssessmentRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 9, 50, 0, 0, time.UTC)

	soon := createSupervised(t, db, true, now.Add(10*time.Minute), 60)
	createSupervised(t, db, true, now.Add(40*time.Minute), 60)
	createSupervised(t, db, false, now.Add(5*time.Minute), 60)

	candidates, err := repo.ListReminderCandidates(ctx, now, now.Add(15*time.Minute))
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, soon.ID, candidates[0].ID)

	marked, err := repo.MarkReminderSent(ctx, soon.ID, now)
	require.NoError(t, err)
	require.True(t, marked)
	marked, err = repo.MarkReminderSent(ctx, soon.ID, now)
	require.NoError(t, err)
	require.False(t, marked)

	candidates, err = repo.ListReminderCandidates(ctx, now, now.Add(15*time.Minute))
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestEnrollmentRepositoryActiveOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEnrollmentRepository(db)

	require.NoError(t, db.Create(&[]models.Enrollment{
		{ClassID: 1, StudentID: 10, Status: models.EnrollmentStatusActive},
		{ClassID: 1, StudentID: 11, Status: models.EnrollmentStatusWithdrawn},
		{ClassID: 2, StudentID: 12, Status: models.EnrollmentStatusActive},
	}).Error)

	ids, err := repo.ActiveStudentIDs(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []uint{10}, ids)
}

func TestAssessmentRepositoryScanPossiblyEndedSkipsMaterialized(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAssessmentRepository(db)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	ended := createSupervised(t, db, true, now.Add(-3*time.Hour), 60)
	other := createSupervised(t, db, true, now.Add(-2*time.Hour), 60)
	createSupervised(t, db, true, now.Add(time.Hour), 60)
	createSupervised(t, db, false, now.Add(-3*time.Hour), 60)
	require.NoError(t, db.Create(&models.Enrollment{ClassID: 1, StudentID: 10, Status: models.EnrollmentStatusActive}).Error)

	scan := func() []uint {
		var ids []uint
		require.NoError(t, repo.ScanPossiblyEnded(ctx, now, 1, func(assessment models.Assessment) error {
			ids = append(ids, assessment.ID)
			return nil
		}))
		return ids
	}

	require.Equal(t, []uint{ended.ID, other.ID}, scan())

	require.NoError(t, repo.MarkMaterialized(ctx, ended.ID, time.Now()))
	require.Equal(t, []uint{other.ID}, scan())

	require.NoError(t, db.Create(&models.Enrollment{ClassID: 1, StudentID: 11, Status: models.EnrollmentStatusActive}).Error)
	require.Equal(t, []uint{ended.ID, other.ID}, scan())
}
