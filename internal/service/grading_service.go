package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/timing"
)

// GradingService backs the teacher grading page and grade writes. Both paths run
// the access guard; the write path re-reads the session first so a page loaded
// before the assessment ended cannot be used to grade a live session.
type GradingService interface {
	Show(ctx context.Context, sessionID uint) (dto.GradingView, error)
	Grade(ctx context.Context, sessionID uint, payload dto.GradeSessionRequest, actor ActivityActor) (dto.GradingView, error)
}

type gradingService struct {
	sessions    repository.SessionRepository
	assessments repository.AssessmentRepository
	answers     repository.AnswerRepository
	lifecycle   SessionLifecycle
	guard       GradingAccessGuard
	activity    ActivityService
	events      SessionEventPublisher
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewGradingService constructs the grading service.
func NewGradingService(sessions repository.SessionRepository, assessments repository.AssessmentRepository, answers repository.AnswerRepository, lifecycle SessionLifecycle, guard GradingAccessGuard, activity ActivityService, events SessionEventPublisher, validate *validator.Validate, logger zerolog.Logger) GradingService {
	return &gradingService{
		sessions:    sessions,
		assessments: assessments,
		answers:     answers,
		lifecycle:   lifecycle,
		guard:       guard,
		activity:    activity,
		events:      events,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

func (s *gradingService) Show(ctx context.Context, sessionID uint) (dto.GradingView, error) {
	session, assessment, err := s.load(ctx, sessionID)
	if err != nil {
		return dto.GradingView{}, err
	}

	decision := s.guard.Check(session, assessment, s.now())
	if err := decision.Err(); err != nil {
		s.logger.Info().Uint("session_id", sessionID).Str("reason", decision.Reason).Msg("grading view denied")
		return dto.GradingView{}, err
	}

	return s.view(ctx, session, assessment, decision)
}

func (s *gradingService) Grade(ctx context.Context, sessionID uint, payload dto.GradeSessionRequest, actor ActivityActor) (dto.GradingView, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.update")
	span.SetAttributes(
		attribute.Int64("grading.session_id", int64(sessionID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	)
	defer span.End()

	if err := s.validator.Struct(payload); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return dto.GradingView{}, err
	}

	session, assessment, err := s.load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session_lookup_failed")
		return dto.GradingView{}, err
	}

	now := s.now()
	decision := s.guard.Check(session, assessment, now)
	if err := decision.Err(); err != nil {
		span.SetStatus(codes.Error, "grading_denied")
		s.logger.Warn().Uint("session_id", sessionID).Uint("actor_id", actor.ID).Str("reason", decision.Reason).Msg("grade write denied")
		return dto.GradingView{}, err
	}

	maxScore := assessment.MaxScore
	if maxScore <= 0 {
		maxScore = 100
	}
	if payload.Score > maxScore+1e-9 {
		span.SetStatus(codes.Error, "score_exceeds_max")
		return dto.GradingView{}, ErrScoreExceedsMax
	}

	if !session.IsSubmitted() {
		closed, err := s.closeAbandoned(ctx, session, assessment, now)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "close_failed")
			return dto.GradingView{}, err
		}
		session = closed
	}

	notes := strings.TrimSpace(s.sanitizer.Sanitize(payload.TeacherNotes))
	if s.isIdempotent(session, payload.Score, notes, actor) && len(payload.Answers) == 0 {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		return s.view(ctx, session, assessment, decision)
	}

	var notesPtr *string
	if notes != "" {
		notesPtr = &notes
	}

	answerGrades := make([]repository.AnswerGrade, 0, len(payload.Answers))
	for _, answer := range payload.Answers {
		answerGrades = append(answerGrades, repository.AnswerGrade{
			QuestionID: answer.QuestionID,
			Score:      answer.Score,
			Feedback:   strings.TrimSpace(s.sanitizer.Sanitize(answer.Feedback)),
		})
	}

	grade := repository.GradeFields{
		Score:        payload.Score,
		TeacherNotes: notesPtr,
		GradedBy:     actor.ID,
		GradedAt:     now,
	}
	if err := s.sessions.SaveGrade(ctx, session.ID, grade, answerGrades); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session_update_failed")
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.GradingView{}, ErrSessionNotFound
		}
		return dto.GradingView{}, err
	}

	updated, _, err := s.load(ctx, session.ID)
	if err != nil {
		return dto.GradingView{}, err
	}

	entityID := updated.ID
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "session.graded",
		EntityType: entityTypeSession,
		EntityID:   &entityID,
		Metadata: map[string]interface{}{
			"assessment_id": updated.AssessmentID,
			"student_id":    updated.StudentID,
			"score":         payload.Score,
			"access_reason": decision.Reason,
		},
	})

	publishSessionEvent(ctx, s.events, s.logger, SessionEvent{
		Type:         SessionEventGraded,
		SessionID:    updated.ID,
		AssessmentID: updated.AssessmentID,
		StudentID:    updated.StudentID,
		SubmittedAt:  updated.SubmittedAt,
		OccurredAt:   now,
	})

	span.SetAttributes(
		attribute.Float64("grading.score", payload.Score),
		attribute.String("grading.access_reason", decision.Reason),
	)

	return s.view(ctx, updated, assessment, decision)
}

// closeAbandoned closes a session whose time is over before a grade is written on
// it, through the same submit path the sweeper uses.
func (s *gradingService) closeAbandoned(ctx context.Context, session models.AssessmentSession, assessment models.Assessment, now time.Time) (models.AssessmentSession, error) {
	auto, err := s.lifecycle.AutoScore(ctx, session)
	if err != nil {
		return models.AssessmentSession{}, err
	}

	deadline := timing.EffectiveDeadline(session, assessment, now)
	result, err := s.lifecycle.Submit(ctx, session, SubmitOptions{
		AutoScore:            auto.AutoPoints,
		RequiresManualReview: true,
		Forced:               true,
		ViolationCode:        models.ViolationTimeExpired,
		SubmittedAt:          &deadline,
	})
	if err != nil {
		return models.AssessmentSession{}, err
	}
	return result.Session, nil
}

func (s *gradingService) isIdempotent(session models.AssessmentSession, score float64, notes string, actor ActivityActor) bool {
	if session.GradedAt == nil || session.Score == nil || session.GradedBy == nil {
		return false
	}
	currentNotes := ""
	if session.TeacherNotes != nil {
		currentNotes = strings.TrimSpace(*session.TeacherNotes)
	}
	return math.Abs(*session.Score-score) < 1e-6 && currentNotes == notes && *session.GradedBy == actor.ID
}

func (s *gradingService) load(ctx context.Context, sessionID uint) (models.AssessmentSession, models.Assessment, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentSession{}, models.Assessment{}, ErrSessionNotFound
		}
		return models.AssessmentSession{}, models.Assessment{}, err
	}

	assessment, err := s.assessments.GetByID(ctx, session.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentSession{}, models.Assessment{}, ErrAssessmentNotFound
		}
		return models.AssessmentSession{}, models.Assessment{}, err
	}

	return session, assessment, nil
}

func (s *gradingService) view(ctx context.Context, session models.AssessmentSession, assessment models.Assessment, decision GradingDecision) (dto.GradingView, error) {
	answers, err := s.answers.ListBySession(ctx, session.ID)
	if err != nil {
		return dto.GradingView{}, err
	}

	auto, err := s.lifecycle.AutoScore(ctx, session)
	if err != nil {
		return dto.GradingView{}, err
	}

	history := []dto.ActivityLogResponse{}
	if s.activity != nil {
		entries, err := s.activity.SessionHistory(ctx, session.ID)
		if err != nil {
			s.logger.Warn().Err(err).Uint("session_id", session.ID).Msg("failed to load session history")
		} else {
			history = entries
		}
	}

	response := dto.NewSessionResponse(session)
	if deadline, ok := timing.KnownDeadline(session, assessment); ok {
		response.Deadline = &deadline
	}

	return dto.GradingView{
		Session:    response,
		Assessment: dto.NewAssessmentSummary(assessment),
		Answers:    dto.NewAnswerResponseSlice(answers),
		AutoScore:  auto.AutoPoints,
		Access: dto.GradingAccess{
			Reason:  decision.Reason,
			Warning: decision.Warning,
		},
		History: history,
	}, nil
}
