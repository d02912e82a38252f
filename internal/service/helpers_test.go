package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func ptrUint(v uint) *uint {
	return &v
}

type fixture struct {
	db          *gorm.DB
	assessments repository.AssessmentRepository
	sessions    repository.SessionRepository
	answers     repository.AnswerRepository
	questions   repository.QuestionRepository
	activity    ActivityService
	lifecycle   *sessionLifecycle
	clock       *testClock
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Assessment{},
		&models.Question{},
		&models.AssessmentSession{},
		&models.Answer{},
		&models.ActivityLog{},
	))

	f := &fixture{
		db:          db,
		assessments: repository.NewAssessmentRepository(db),
		sessions:    repository.NewSessionRepository(db),
		answers:     repository.NewAnswerRepository(db),
		questions:   repository.NewQuestionRepository(db),
		clock:       &testClock{now: now},
	}
	f.activity = NewActivityService(repository.NewActivityLogRepository(db), testLogger())

	lifecycle := NewSessionLifecycle(f.sessions, f.answers, f.questions, scoring.NewDefaultScorer(), nil, testLogger()).(*sessionLifecycle)
	lifecycle.now = f.clock.Now
	f.lifecycle = lifecycle
	return f
}

func (f *fixture) supervised(t *testing.T, scheduledAt time.Time, minutes int) models.Assessment {
	t.Helper()
	assessment := models.Assessment{
		ClassID:         1,
		Title:           "Quiz",
		DeliveryMode:    models.DeliveryModeSupervised,
		ScheduledAt:     &scheduledAt,
		DurationMinutes: &minutes,
		IsPublished:     true,
		MaxScore:        100,
	}
	require.NoError(t, f.assessments.Create(context.Background(), &assessment))
	return assessment
}

func (f *fixture) homework(t *testing.T, due *time.Time) models.Assessment {
	t.Helper()
	assessment := models.Assessment{
		ClassID:      1,
		Title:        "Reading",
		DeliveryMode: models.DeliveryModeHomework,
		DueDate:      due,
		IsPublished:  true,
		MaxScore:     100,
	}
	require.NoError(t, f.assessments.Create(context.Background(), &assessment))
	return assessment
}

func (f *fixture) question(t *testing.T, assessmentID uint, question models.Question) models.Question {
	t.Helper()
	question.AssessmentID = assessmentID
	if question.Prompt == "" {
		question.Prompt = "Question"
	}
	require.NoError(t, f.db.Create(&question).Error)
	return question
}

func (f *fixture) session(t *testing.T, assessmentID, studentID uint, startedAt *time.Time) models.AssessmentSession {
	t.Helper()
	ctx := context.Background()
	session, err := f.sessions.FindOrCreate(ctx, assessmentID, studentID)
	require.NoError(t, err)
	if startedAt != nil {
		applied, err := f.sessions.MarkStarted(ctx, session.ID, *startedAt)
		require.NoError(t, err)
		require.True(t, applied)
	}
	session, err = f.sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	return session
}

func (f *fixture) reload(t *testing.T, id uint) models.AssessmentSession {
	t.Helper()
	session, err := f.sessions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return session
}

func timePtr(t time.Time) *time.Time {
	return &t
}
