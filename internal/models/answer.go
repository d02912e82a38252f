package models

import (
	"time"

	"gorm.io/datatypes"
)

// Answer stores a student's response to a single question within a session.
type Answer struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	SessionID  uint           `gorm:"not null;uniqueIndex:idx_answers_session_question" json:"session_id"`
	QuestionID uint           `gorm:"not null;uniqueIndex:idx_answers_session_question" json:"question_id"`
	Payload    datatypes.JSON `gorm:"type:json" json:"payload"`
	Score      *float64       `json:"score"`
	Feedback   string         `gorm:"type:text" json:"feedback"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
