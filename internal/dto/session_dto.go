package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// SessionResponse exposes a session together with its derived status.
type SessionResponse struct {
	ID                uint                 `json:"id"`
	AssessmentID      uint                 `json:"assessment_id"`
	StudentID         uint                 `json:"student_id"`
	Status            models.SessionStatus `json:"status"`
	StartedAt         *time.Time           `json:"started_at"`
	SubmittedAt       *time.Time           `json:"submitted_at"`
	GradedAt          *time.Time           `json:"graded_at"`
	Deadline          *time.Time           `json:"deadline,omitempty"`
	Score             *float64             `json:"score"`
	ForcedSubmission  bool                 `json:"forced_submission"`
	SecurityViolation *string              `json:"security_violation"`
	TeacherNotes      *string              `json:"teacher_notes,omitempty"`
}

// NewSessionResponse converts a session model into its response DTO.
func NewSessionResponse(session models.AssessmentSession) SessionResponse {
	return SessionResponse{
		ID:                session.ID,
		AssessmentID:      session.AssessmentID,
		StudentID:         session.StudentID,
		Status:            session.Status(),
		StartedAt:         session.StartedAt,
		SubmittedAt:       session.SubmittedAt,
		GradedAt:          session.GradedAt,
		Score:             session.Score,
		ForcedSubmission:  session.ForcedSubmission,
		SecurityViolation: session.SecurityViolation,
		TeacherNotes:      session.TeacherNotes,
	}
}

// SaveAnswerRequest carries the raw answer payload for one question.
type SaveAnswerRequest struct {
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// AnswerResponse represents a stored answer.
type AnswerResponse struct {
	QuestionID uint            `json:"question_id"`
	Payload    json.RawMessage `json:"payload"`
	Score      *float64        `json:"score,omitempty"`
	Feedback   string          `json:"feedback,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewAnswerResponse converts an answer model to DTO.
func NewAnswerResponse(answer models.Answer) AnswerResponse {
	return AnswerResponse{
		QuestionID: answer.QuestionID,
		Payload:    json.RawMessage(answer.Payload),
		Score:      answer.Score,
		Feedback:   answer.Feedback,
		UpdatedAt:  answer.UpdatedAt,
	}
}

// NewAnswerResponseSlice converts a slice of answers.
func NewAnswerResponseSlice(items []models.Answer) []AnswerResponse {
	out := make([]AnswerResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewAnswerResponse(item))
	}
	return out
}

// SubmitResponse reports the outcome of a submit call.
type SubmitResponse struct {
	Session SessionResponse `json:"session"`
	Applied bool            `json:"applied"`
}

// ViolationRequest reports a proctoring violation detected on the client.
type ViolationRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}
