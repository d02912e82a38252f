package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/scoring"
	"github.com/noah-isme/gema-assessment-api/internal/timing"
)

const triggerVoluntary = "voluntary"

// SubmitOptions controls how a session is closed.
type SubmitOptions struct {
	AutoScore            float64
	RequiresManualReview bool
	Forced               bool
	ViolationCode        string
	// SubmittedAt overrides the recorded submission instant. Forced expiry stamps
	// the effective deadline instead of the wall clock.
	SubmittedAt *time.Time
}

// SubmitResult reports the stored session after a submit call and whether this
// call was the one that closed it.
type SubmitResult struct {
	Session models.AssessmentSession
	Applied bool
}

// SessionLifecycle is the state machine behind every student-facing session action.
// All transitions are conditional row writes, so repeated or concurrent calls converge.
type SessionLifecycle interface {
	Open(ctx context.Context, assessmentID, studentID uint) (models.AssessmentSession, error)
	Start(ctx context.Context, session models.AssessmentSession) (models.AssessmentSession, error)
	ValidateAnswer(question models.Question, payload datatypes.JSON) error
	SaveAnswer(ctx context.Context, session models.AssessmentSession, assessment models.Assessment, question models.Question, payload datatypes.JSON) (models.Answer, error)
	Submit(ctx context.Context, session models.AssessmentSession, opts SubmitOptions) (SubmitResult, error)
	SubmitVoluntary(ctx context.Context, session models.AssessmentSession, assessment models.Assessment) (SubmitResult, error)
	ReportViolation(ctx context.Context, session models.AssessmentSession, assessment models.Assessment, code string) (SubmitResult, error)
	AutoScore(ctx context.Context, session models.AssessmentSession) (scoring.Result, error)
}

type sessionLifecycle struct {
	sessions  repository.SessionRepository
	answers   repository.AnswerRepository
	questions repository.QuestionRepository
	scorer    scoring.Scorer
	events    SessionEventPublisher
	schemas   *answerSchemas
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewSessionLifecycle constructs the lifecycle service. events may be nil.
func NewSessionLifecycle(sessions repository.SessionRepository, answers repository.AnswerRepository, questions repository.QuestionRepository, scorer scoring.Scorer, events SessionEventPublisher, logger zerolog.Logger) SessionLifecycle {
	return &sessionLifecycle{
		sessions:  sessions,
		answers:   answers,
		questions: questions,
		scorer:    scorer,
		events:    events,
		schemas:   &answerSchemas{},
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "session_lifecycle").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-assessment-api/internal/service/session_lifecycle"),
		now:       time.Now,
	}
}

func (s *sessionLifecycle) Open(ctx context.Context, assessmentID, studentID uint) (models.AssessmentSession, error) {
	return s.sessions.FindOrCreate(ctx, assessmentID, studentID)
}

func (s *sessionLifecycle) Start(ctx context.Context, session models.AssessmentSession) (models.AssessmentSession, error) {
	ctx, span := s.tracer.Start(ctx, "session.start", trace.WithAttributes(attribute.Int64("session.id", int64(session.ID))))
	defer span.End()

	if session.IsSubmitted() {
		span.SetStatus(codes.Error, "already_submitted")
		return session, ErrAlreadySubmitted
	}
	if session.IsStarted() {
		return session, nil
	}

	applied, err := s.sessions.MarkStarted(ctx, session.ID, s.now())
	if err != nil {
		span.RecordError(err)
		return models.AssessmentSession{}, err
	}

	current, err := s.reload(ctx, session.ID)
	if err != nil {
		return models.AssessmentSession{}, err
	}

	if !applied && current.IsSubmitted() {
		// Lost the race to a submit.
		return current, ErrAlreadySubmitted
	}

	if applied {
		s.logger.Info().Uint("session_id", current.ID).Uint("student_id", current.StudentID).Msg("session started")
	}
	return current, nil
}

// ValidateAnswer checks a payload against the question's response schema without
// touching the session.
func (s *sessionLifecycle) ValidateAnswer(question models.Question, payload datatypes.JSON) error {
	return s.schemas.validate(question, payload)
}

func (s *sessionLifecycle) SaveAnswer(ctx context.Context, session models.AssessmentSession, assessment models.Assessment, question models.Question, payload datatypes.JSON) (models.Answer, error) {
	ctx, span := s.tracer.Start(ctx, "session.save_answer", trace.WithAttributes(
		attribute.Int64("session.id", int64(session.ID)),
		attribute.Int64("question.id", int64(question.ID)),
	))
	defer span.End()

	if question.AssessmentID != session.AssessmentID {
		return models.Answer{}, ErrQuestionNotFound
	}

	current, err := s.reload(ctx, session.ID)
	if err != nil {
		return models.Answer{}, err
	}

	now := s.now()
	if current.Status() != models.SessionStatusNotSubmitted || timing.IsSessionOver(current, assessment, now) {
		span.SetStatus(codes.Error, "session_closed")
		return models.Answer{}, ErrSessionClosed
	}

	if err := s.schemas.validate(question, payload); err != nil {
		span.SetStatus(codes.Error, "invalid_payload")
		return models.Answer{}, err
	}

	answer, err := s.answers.Upsert(ctx, current.ID, question.ID, payload, now)
	if err != nil {
		span.RecordError(err)
		return models.Answer{}, err
	}

	return answer, nil
}

func (s *sessionLifecycle) Submit(ctx context.Context, session models.AssessmentSession, opts SubmitOptions) (SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "session.submit", trace.WithAttributes(
		attribute.Int64("session.id", int64(session.ID)),
		attribute.Bool("session.forced", opts.Forced),
	))
	defer span.End()

	if session.IsSubmitted() {
		span.SetAttributes(attribute.Bool("session.idempotent", true))
		return SubmitResult{Session: session}, nil
	}

	now := s.now()
	submittedAt := now
	if opts.SubmittedAt != nil {
		submittedAt = *opts.SubmittedAt
	}

	score := opts.AutoScore
	fields := repository.SubmissionFields{
		SubmittedAt: submittedAt,
		Score:       &score,
	}
	if !opts.RequiresManualReview {
		gradedAt := now
		fields.GradedAt = &gradedAt
	}
	if opts.Forced {
		fields.ForcedSubmission = true
		if code := strings.TrimSpace(opts.ViolationCode); code != "" {
			fields.SecurityViolation = &code
		}
	}

	applied, err := s.sessions.MarkSubmitted(ctx, session.ID, fields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit_failed")
		return SubmitResult{}, err
	}

	current, err := s.reload(ctx, session.ID)
	if err != nil {
		return SubmitResult{}, err
	}

	if applied {
		trigger := triggerVoluntary
		if opts.Forced {
			trigger = "forced"
			if fields.SecurityViolation != nil {
				trigger = *fields.SecurityViolation
			}
		}
		observability.SessionsSubmitted().WithLabelValues(trigger).Inc()

		s.logger.Info().
			Uint("session_id", current.ID).
			Uint("assessment_id", current.AssessmentID).
			Uint("student_id", current.StudentID).
			Str("trigger", trigger).
			Time("submitted_at", submittedAt).
			Msg("session submitted")

		publishSessionEvent(ctx, s.events, s.logger, SessionEvent{
			Type:              SessionEventSubmitted,
			SessionID:         current.ID,
			AssessmentID:      current.AssessmentID,
			StudentID:         current.StudentID,
			SubmittedAt:       current.SubmittedAt,
			ForcedSubmission:  current.ForcedSubmission,
			SecurityViolation: current.SecurityViolation,
			OccurredAt:        now,
		})
	}

	span.SetAttributes(attribute.Bool("session.applied", applied))
	return SubmitResult{Session: current, Applied: applied}, nil
}

func (s *sessionLifecycle) SubmitVoluntary(ctx context.Context, session models.AssessmentSession, assessment models.Assessment) (SubmitResult, error) {
	if session.IsSubmitted() {
		return SubmitResult{Session: session}, nil
	}

	result, err := s.AutoScore(ctx, session)
	if err != nil {
		return SubmitResult{}, err
	}

	opts := SubmitOptions{
		AutoScore:            result.AutoPoints,
		RequiresManualReview: result.RequiresManualReview,
	}

	// A student clicking submit after the deadline but before the sweeper ran is
	// recorded as an expiry, stamped at the deadline.
	now := s.now()
	if timing.ShouldAutoSubmit(session, assessment, now) {
		deadline := timing.EffectiveDeadline(session, assessment, now)
		opts.Forced = true
		opts.ViolationCode = models.ViolationTimeExpired
		opts.SubmittedAt = &deadline
	}

	return s.Submit(ctx, session, opts)
}

func (s *sessionLifecycle) ReportViolation(ctx context.Context, session models.AssessmentSession, assessment models.Assessment, code string) (SubmitResult, error) {
	code = strings.ToLower(strings.TrimSpace(s.sanitizer.Sanitize(code)))
	if code == "" {
		return SubmitResult{}, fmt.Errorf("violation code is required")
	}
	if session.IsSubmitted() {
		return SubmitResult{Session: session}, nil
	}

	result, err := s.AutoScore(ctx, session)
	if err != nil {
		return SubmitResult{}, err
	}

	s.logger.Warn().
		Uint("session_id", session.ID).
		Uint("assessment_id", assessment.ID).
		Str("violation", code).
		Msg("security violation reported")

	return s.Submit(ctx, session, SubmitOptions{
		AutoScore:            result.AutoPoints,
		RequiresManualReview: result.RequiresManualReview,
		Forced:               true,
		ViolationCode:        code,
	})
}

func (s *sessionLifecycle) AutoScore(ctx context.Context, session models.AssessmentSession) (scoring.Result, error) {
	questions, err := s.questions.ListByAssessment(ctx, session.AssessmentID)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("load questions: %w", err)
	}

	answers, err := s.answers.ListBySession(ctx, session.ID)
	if err != nil {
		return scoring.Result{}, fmt.Errorf("load answers: %w", err)
	}

	return s.scorer.Score(ctx, questions, answers)
}

func (s *sessionLifecycle) reload(ctx context.Context, id uint) (models.AssessmentSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AssessmentSession{}, ErrSessionNotFound
		}
		return models.AssessmentSession{}, err
	}
	return session, nil
}
