package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
)

func newStudentSessionService(f *fixture) *studentSessionService {
	svc := NewStudentSessionService(f.assessments, f.questions, f.lifecycle, validator.New(validator.WithRequiredStructEnabled()), testLogger()).(*studentSessionService)
	svc.now = f.clock.Now
	return svc
}

func TestStudentSessionServiceRefusesBeforeScheduledStart(t *testing.T) {
	scheduled := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, scheduled.Add(-5*time.Minute))
	assessment := f.supervised(t, scheduled, 60)
	svc := newStudentSessionService(f)

	_, err := svc.Start(context.Background(), assessment.ID, 7)
	require.ErrorIs(t, err, ErrAssessmentNotOpen)

	f.clock.now = scheduled.Add(time.Minute)
	session, err := svc.Start(context.Background(), assessment.ID, 7)
	require.NoError(t, err)
	require.NotNil(t, session.StartedAt)
	require.NotNil(t, session.Deadline)
	require.True(t, session.Deadline.Equal(scheduled.Add(61*time.Minute)))
}

func TestStudentSessionServiceLateStarterAfterHorizonIsClosed(t *testing.T) {
	scheduled := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, scheduled.Add(2*time.Hour))
	assessment := f.supervised(t, scheduled, 60)
	svc := newStudentSessionService(f)

	_, err := svc.Start(context.Background(), assessment.ID, 7)
	require.ErrorIs(t, err, ErrSessionClosed)

	view, err := svc.Get(context.Background(), assessment.ID, 7)
	require.NoError(t, err)
	require.Nil(t, view.StartedAt)
}

func TestStudentSessionServiceHidesUnfinishedGrades(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 30, 0, 0, time.UTC)
	f := newFixture(t, now)
	assessment := f.supervised(t, now.Add(-30*time.Minute), 60)
	essay := f.question(t, assessment.ID, models.Question{Type: models.QuestionTypeEssay, Points: 5})
	svc := newStudentSessionService(f)
	ctx := context.Background()

	_, err := svc.SaveAnswer(ctx, assessment.ID, 7, essay.ID, dto.SaveAnswerRequest{Payload: json.RawMessage(`  "my answer"  `)})
	require.NoError(t, err)

	result, err := svc.Submit(ctx, assessment.ID, 7)
	require.NoError(t, err)
	require.True(t, result.Applied)
	require.Equal(t, models.SessionStatusSubmitted, result.Session.Status)
	require.Nil(t, result.Session.Score)

	stored := f.reload(t, result.Session.ID)
	require.NotNil(t, stored.Score)

	notes := "see me"
	score := 4.0
	gradedAt := now.Add(time.Hour)
	require.NoError(t, f.db.Model(&models.AssessmentSession{}).Where("id = ?", stored.ID).Updates(map[string]interface{}{
		"graded_at":     gradedAt,
		"score":         score,
		"teacher_notes": notes,
	}).Error)

	view, err := svc.Get(ctx, assessment.ID, 7)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusGraded, view.Status)
	require.NotNil(t, view.Score)
	require.InDelta(t, 4.0, *view.Score, 0.0001)
	require.Nil(t, view.TeacherNotes)
}

func TestStudentSessionServiceCompactsPayload(t *testing.T) {
	now := time.Date(2025, 3, 3, 10, 30, 0, 0, time.UTC)
	f := newFixture(t, now)
	assessment := f.homework(t, nil)
	question := f.question(t, assessment.ID, models.Question{Type: models.QuestionTypeMultiChoice, Points: 2, AnswerKey: datatypes.JSON(`["a","b"]`)})
	svc := newStudentSessionService(f)

	answer, err := svc.SaveAnswer(context.Background(), assessment.ID, 7, question.ID, dto.SaveAnswerRequest{Payload: json.RawMessage("[ \"a\",\n \"b\" ]")})
	require.NoError(t, err)
	require.Equal(t, `["a","b"]`, string(answer.Payload))
}

func TestStudentSessionServiceHidesDrafts(t *testing.T) {
	f := newFixture(t, time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC))
	assessment := f.homework(t, nil)
	require.NoError(t, f.db.Model(&models.Assessment{}).Where("id = ?", assessment.ID).Update("is_published", false).Error)
	svc := newStudentSessionService(f)

	_, err := svc.Get(context.Background(), assessment.ID, 7)
	require.ErrorIs(t, err, ErrAssessmentNotFound)

	_, err = svc.Get(context.Background(), 999, 7)
	require.ErrorIs(t, err, ErrAssessmentNotFound)
}

func TestStudentSessionServiceRejectedAnswerLeavesSessionUnstarted(t *testing.T) {
	scheduled := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	f := newFixture(t, scheduled.Add(5*time.Minute))
	assessment := f.supervised(t, scheduled, 60)
	other := f.supervised(t, scheduled, 60)
	foreign := f.question(t, other.ID, models.Question{Type: models.QuestionTypeEssay, Points: 5})
	numeric := f.question(t, assessment.ID, models.Question{
		Type:           models.QuestionTypeEssay,
		Points:         5,
		ResponseSchema: datatypes.JSON(`{"type":"number"}`),
	})
	svc := newStudentSessionService(f)
	reassign := NewReassignmentService(f.sessions, f.assessments, f.answers, f.activity, nil, testLogger())
	ctx := context.Background()
	actor := ActivityActor{ID: 3, Role: "teacher"}

	cases := []struct {
		name       string
		studentID  uint
		questionID uint
		payload    string
		err        error
	}{
		{name: "unknown question", studentID: 7, questionID: 99999, payload: `"x"`, err: ErrQuestionNotFound},
		{name: "question of another assessment", studentID: 8, questionID: foreign.ID, payload: `"x"`, err: ErrQuestionNotFound},
		{name: "payload fails schema", studentID: 9, questionID: numeric.ID, payload: `"not a number"`, err: ErrInvalidAnswerPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.SaveAnswer(ctx, assessment.ID, tc.studentID, tc.questionID, dto.SaveAnswerRequest{Payload: json.RawMessage(tc.payload)})
			require.ErrorIs(t, err, tc.err)

			view, err := svc.Get(ctx, assessment.ID, tc.studentID)
			require.NoError(t, err)
			require.Nil(t, view.StartedAt)

			session, err := f.sessions.GetByID(ctx, view.ID)
			require.NoError(t, err)
			reset, err := reassign.Reassign(ctx, session, assessment, "wrong link", actor)
			require.NoError(t, err)
			require.Nil(t, reset.StartedAt)
		})
	}

	answer, err := svc.SaveAnswer(ctx, assessment.ID, 9, numeric.ID, dto.SaveAnswerRequest{Payload: json.RawMessage(`42`)})
	require.NoError(t, err)
	require.Equal(t, `42`, string(answer.Payload))

	view, err := svc.Get(ctx, assessment.ID, 9)
	require.NoError(t, err)
	require.NotNil(t, view.StartedAt)
}
