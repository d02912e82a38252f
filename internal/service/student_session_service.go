package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-assessment-api/internal/dto"
	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/repository"
	"github.com/noah-isme/gema-assessment-api/internal/timing"
)

// StudentSessionService resolves the caller's session for an assessment and routes
// student actions into the lifecycle.
type StudentSessionService interface {
	Get(ctx context.Context, assessmentID, studentID uint) (dto.SessionResponse, error)
	Start(ctx context.Context, assessmentID, studentID uint) (dto.SessionResponse, error)
	SaveAnswer(ctx context.Context, assessmentID, studentID, questionID uint, payload dto.SaveAnswerRequest) (dto.AnswerResponse, error)
	Submit(ctx context.Context, assessmentID, studentID uint) (dto.SubmitResponse, error)
	ReportViolation(ctx context.Context, assessmentID, studentID uint, payload dto.ViolationRequest) (dto.SubmitResponse, error)
}

type studentSessionService struct {
	assessments repository.AssessmentRepository
	questions   repository.QuestionRepository
	lifecycle   SessionLifecycle
	validator   *validator.Validate
	logger      zerolog.Logger
	now         func() time.Time
}

// NewStudentSessionService constructs the student-facing session service.
func NewStudentSessionService(assessments repository.AssessmentRepository, questions repository.QuestionRepository, lifecycle SessionLifecycle, validate *validator.Validate, logger zerolog.Logger) StudentSessionService {
	return &studentSessionService{
		assessments: assessments,
		questions:   questions,
		lifecycle:   lifecycle,
		validator:   validate,
		logger:      logger.With().Str("component", "student_session_service").Logger(),
		now:         time.Now,
	}
}

func (s *studentSessionService) Get(ctx context.Context, assessmentID, studentID uint) (dto.SessionResponse, error) {
	assessment, session, err := s.resolve(ctx, assessmentID, studentID)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return s.response(session, assessment), nil
}

func (s *studentSessionService) Start(ctx context.Context, assessmentID, studentID uint) (dto.SessionResponse, error) {
	assessment, session, err := s.resolve(ctx, assessmentID, studentID)
	if err != nil {
		return dto.SessionResponse{}, err
	}

	started, err := s.begin(ctx, session, assessment)
	if err != nil {
		return dto.SessionResponse{}, err
	}
	return s.response(started, assessment), nil
}

func (s *studentSessionService) SaveAnswer(ctx context.Context, assessmentID, studentID, questionID uint, payload dto.SaveAnswerRequest) (dto.AnswerResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AnswerResponse{}, err
	}

	assessment, session, err := s.resolve(ctx, assessmentID, studentID)
	if err != nil {
		return dto.AnswerResponse{}, err
	}

	question, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AnswerResponse{}, ErrQuestionNotFound
		}
		return dto.AnswerResponse{}, err
	}
	if question.AssessmentID != assessment.ID {
		return dto.AnswerResponse{}, ErrQuestionNotFound
	}

	body := datatypes.JSON(compact(payload.Payload))
	// A rejected write must not start the clock.
	if err := s.lifecycle.ValidateAnswer(question, body); err != nil {
		return dto.AnswerResponse{}, err
	}

	if !session.IsStarted() && !session.IsSubmitted() {
		// The first answer starts the clock for students who skipped the start call.
		if session, err = s.begin(ctx, session, assessment); err != nil {
			return dto.AnswerResponse{}, err
		}
	}

	answer, err := s.lifecycle.SaveAnswer(ctx, session, assessment, question, body)
	if err != nil {
		return dto.AnswerResponse{}, err
	}
	return dto.NewAnswerResponse(answer), nil
}

func (s *studentSessionService) Submit(ctx context.Context, assessmentID, studentID uint) (dto.SubmitResponse, error) {
	assessment, session, err := s.resolve(ctx, assessmentID, studentID)
	if err != nil {
		return dto.SubmitResponse{}, err
	}

	result, err := s.lifecycle.SubmitVoluntary(ctx, session, assessment)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	return dto.SubmitResponse{Session: s.response(result.Session, assessment), Applied: result.Applied}, nil
}

func (s *studentSessionService) ReportViolation(ctx context.Context, assessmentID, studentID uint, payload dto.ViolationRequest) (dto.SubmitResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmitResponse{}, err
	}

	assessment, session, err := s.resolve(ctx, assessmentID, studentID)
	if err != nil {
		return dto.SubmitResponse{}, err
	}

	result, err := s.lifecycle.ReportViolation(ctx, session, assessment, payload.Code)
	if err != nil {
		return dto.SubmitResponse{}, err
	}
	return dto.SubmitResponse{Session: s.response(result.Session, assessment), Applied: result.Applied}, nil
}

// begin starts the session unless the assessment has not opened yet or its
// horizon already passed for a student who never started.
func (s *studentSessionService) begin(ctx context.Context, session models.AssessmentSession, assessment models.Assessment) (models.AssessmentSession, error) {
	if !session.IsStarted() && !session.IsSubmitted() {
		now := s.now()
		if assessment.IsSupervised() && assessment.ScheduledAt != nil && now.Before(*assessment.ScheduledAt) {
			return models.AssessmentSession{}, ErrAssessmentNotOpen
		}
		if timing.IsSessionOver(session, assessment, now) {
			return models.AssessmentSession{}, ErrSessionClosed
		}
	}
	return s.lifecycle.Start(ctx, session)
}

// resolve loads the published assessment and the caller's session, creating the
// session row on first contact.
func (s *studentSessionService) resolve(ctx context.Context, assessmentID, studentID uint) (models.Assessment, models.AssessmentSession, error) {
	assessment, err := s.assessments.GetByID(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assessment{}, models.AssessmentSession{}, ErrAssessmentNotFound
		}
		return models.Assessment{}, models.AssessmentSession{}, err
	}
	if !assessment.IsPublished {
		return models.Assessment{}, models.AssessmentSession{}, ErrAssessmentNotFound
	}

	session, err := s.lifecycle.Open(ctx, assessment.ID, studentID)
	if err != nil {
		return models.Assessment{}, models.AssessmentSession{}, err
	}
	return assessment, session, nil
}

func (s *studentSessionService) response(session models.AssessmentSession, assessment models.Assessment) dto.SessionResponse {
	response := dto.NewSessionResponse(session)
	if deadline, ok := timing.KnownDeadline(session, assessment); ok {
		response.Deadline = &deadline
	}
	// Students see their score only once grading is final.
	if session.GradedAt == nil {
		response.Score = nil
	}
	response.TeacherNotes = nil
	return response
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
