package models

import (
	"time"

	"gorm.io/datatypes"
)

// Question types understood by the automatic scorer.
const (
	QuestionTypeSingleChoice = "single_choice"
	QuestionTypeMultiChoice  = "multi_choice"
	QuestionTypeExactText    = "exact_text"
	QuestionTypeNumeric      = "numeric"
	QuestionTypeEssay        = "essay"
)

// Question is a gradable item belonging to an assessment.
type Question struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	AssessmentID   uint           `gorm:"not null;index" json:"assessment_id"`
	Type           string         `gorm:"size:32;not null" json:"type"`
	Prompt         string         `gorm:"type:text" json:"prompt"`
	Points         float64        `gorm:"not null;default:1" json:"points"`
	AnswerKey      datatypes.JSON `gorm:"type:json" json:"-"`
	Tolerance      float64        `json:"-"`
	ResponseSchema datatypes.JSON `gorm:"type:json" json:"response_schema,omitempty"`
	Position       int            `json:"position"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
