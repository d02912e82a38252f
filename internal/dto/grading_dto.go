package dto

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// GradeSessionRequest captures a teacher's grade for a session.
type GradeSessionRequest struct {
	Score        float64              `json:"score" validate:"gte=0"`
	TeacherNotes string               `json:"teacher_notes" validate:"omitempty,max=5000"`
	Answers      []AnswerGradeRequest `json:"answers" validate:"omitempty,dive"`
}

// AnswerGradeRequest grades a single answer.
type AnswerGradeRequest struct {
	QuestionID uint    `json:"question_id" validate:"required"`
	Score      float64 `json:"score" validate:"gte=0"`
	Feedback   string  `json:"feedback" validate:"omitempty,max=2000"`
}

// ReassignSessionRequest carries the teacher's justification for a reassignment.
type ReassignSessionRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// GradingAccess explains why grading is allowed.
type GradingAccess struct {
	Reason  string `json:"reason"`
	Warning string `json:"warning,omitempty"`
}

// GradingView is the teacher-facing grading page payload.
type GradingView struct {
	Session    SessionResponse       `json:"session"`
	Assessment AssessmentSummary     `json:"assessment"`
	Answers    []AnswerResponse      `json:"answers"`
	AutoScore  float64               `json:"auto_score"`
	Access     GradingAccess         `json:"access"`
	History    []ActivityLogResponse `json:"history"`
}

// AssessmentSummary is the subset of assessment fields shown next to a session.
type AssessmentSummary struct {
	ID           uint                `json:"id"`
	Title        string              `json:"title"`
	DeliveryMode models.DeliveryMode `json:"delivery_mode"`
	MaxScore     float64             `json:"max_score"`
	EndsAt       *time.Time          `json:"ends_at,omitempty"`
	DueDate      *time.Time          `json:"due_date,omitempty"`
}

// NewAssessmentSummary converts an assessment model.
func NewAssessmentSummary(assessment models.Assessment) AssessmentSummary {
	return AssessmentSummary{
		ID:           assessment.ID,
		Title:        assessment.Title,
		DeliveryMode: assessment.DeliveryMode,
		MaxScore:     assessment.MaxScore,
		EndsAt:       assessment.EndsAt(),
		DueDate:      assessment.DueDate,
	}
}

// ActivityLogResponse serializes audit entries.
type ActivityLogResponse struct {
	ID         uint                   `json:"id"`
	ActorID    uint                   `json:"actor_id"`
	ActorRole  string                 `json:"actor_role"`
	Action     string                 `json:"action"`
	EntityType string                 `json:"entity_type"`
	EntityID   *uint                  `json:"entity_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// NewActivityLogResponse converts an activity log model.
func NewActivityLogResponse(entry models.ActivityLog) ActivityLogResponse {
	var metadata map[string]interface{}
	if entry.Metadata != nil {
		metadata = map[string]interface{}(entry.Metadata)
	}
	return ActivityLogResponse{
		ID:         entry.ID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
		CreatedAt:  entry.CreatedAt,
	}
}
