package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
)

// ReassignmentService returns sessions to a pristine state so the student can take
// the assessment again.
type ReassignmentService interface {
	Reassign(ctx context.Context, session models.AssessmentSession, assessment models.Assessment, reason string, actor ActivityActor) (models.AssessmentSession, error)
	ReassignByID(ctx context.Context, sessionID uint, reason string, actor ActivityActor) (models.AssessmentSession, error)
}

type reassignmentService struct {
	sessions    repository.SessionRepository
	assessments repository.AssessmentRepository
	answers     repository.AnswerRepository
	activity    ActivityRecorder
	events      SessionEventPublisher
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	now         func() time.Time
}

// NewReassignmentService constructs the reassignment service.
func NewReassignmentService(sessions repository.SessionRepository, assessments repository.AssessmentRepository, answers repository.AnswerRepository, activity ActivityRecorder, events SessionEventPublisher, logger zerolog.Logger) ReassignmentService {
	return &reassignmentService{
		sessions:    sessions,
		assessments: assessments,
		answers:     answers,
		activity:    activity,
		events:      events,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "reassignment_service").Logger(),
		now:         time.Now,
	}
}

func (s *reassignmentService) ReassignByID(ctx context.Context, sessionID uint, reason string, actor ActivityActor) (models.AssessmentSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentSession{}, ErrSessionNotFound
		}
		return models.AssessmentSession{}, err
	}

	assessment, err := s.assessments.GetByID(ctx, session.AssessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentSession{}, ErrAssessmentNotFound
		}
		return models.AssessmentSession{}, err
	}

	return s.Reassign(ctx, session, assessment, reason, actor)
}

// Reassign refuses when no reason is given, when any answer exists, or when a
// supervised session was already started. Answers are never deleted; the answer
// precondition guarantees there are none to orphan.
func (s *reassignmentService) Reassign(ctx context.Context, session models.AssessmentSession, assessment models.Assessment, reason string, actor ActivityActor) (models.AssessmentSession, error) {
	reason = strings.TrimSpace(s.sanitizer.Sanitize(reason))
	if reason == "" {
		return models.AssessmentSession{}, &ReassignmentNotAllowedError{Reason: ReassignReasonMissingReason}
	}

	blocked, err := s.precondition(ctx, session, assessment)
	if err != nil {
		return models.AssessmentSession{}, err
	}
	if blocked != "" {
		return models.AssessmentSession{}, &ReassignmentNotAllowedError{Reason: blocked}
	}

	applied, err := s.sessions.Reset(ctx, session.ID, repository.ResetGuard{RequireNotStarted: assessment.IsSupervised()})
	if err != nil {
		return models.AssessmentSession{}, err
	}

	current, err := s.sessions.GetByID(ctx, session.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentSession{}, ErrSessionNotFound
		}
		return models.AssessmentSession{}, err
	}

	if !applied {
		// The row changed between the check and the reset.
		blocked, err = s.precondition(ctx, current, assessment)
		if err != nil {
			return models.AssessmentSession{}, err
		}
		if blocked == "" {
			blocked = ReassignReasonHasResponses
		}
		return models.AssessmentSession{}, &ReassignmentNotAllowedError{Reason: blocked}
	}

	s.logger.Info().
		Uint("session_id", current.ID).
		Uint("assessment_id", current.AssessmentID).
		Uint("student_id", current.StudentID).
		Uint("actor_id", actor.ID).
		Msg("session reassigned")

	entityID := current.ID
	recordActivity(ctx, s.activity, s.logger, ActivityEntry{
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     "session.reassigned",
		EntityType: entityTypeSession,
		EntityID:   &entityID,
		Metadata: map[string]interface{}{
			"assessment_id":   current.AssessmentID,
			"student_id":      current.StudentID,
			"reason":          reason,
			"previous_status": string(session.Status()),
		},
	})

	publishSessionEvent(ctx, s.events, s.logger, SessionEvent{
		Type:         SessionEventReassigned,
		SessionID:    current.ID,
		AssessmentID: current.AssessmentID,
		StudentID:    current.StudentID,
		OccurredAt:   s.now(),
	})

	return current, nil
}

func (s *reassignmentService) precondition(ctx context.Context, session models.AssessmentSession, assessment models.Assessment) (string, error) {
	total, err := s.answers.CountBySession(ctx, session.ID)
	if err != nil {
		return "", err
	}
	if total > 0 {
		return ReassignReasonHasResponses, nil
	}
	if assessment.IsSupervised() && session.IsStarted() {
		return ReassignReasonSupervisedAlreadyStarted, nil
	}
	return "", nil
}
