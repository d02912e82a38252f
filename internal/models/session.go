package models

import "time"

// SessionStatus is derived from the session timestamps and never stored.
type SessionStatus string

const (
	// SessionStatusNotSubmitted indicates the session is still open for answers.
	SessionStatusNotSubmitted SessionStatus = "not_submitted"
	// SessionStatusSubmitted indicates the session was closed but no final grade exists.
	SessionStatusSubmitted SessionStatus = "submitted"
	// SessionStatusGraded indicates a final score has been recorded.
	SessionStatusGraded SessionStatus = "graded"
)

// ViolationTimeExpired is recorded when the system closes a session whose time ran out.
const ViolationTimeExpired = "time_expired"

// AssessmentSession tracks one student's attempt at one assessment.
type AssessmentSession struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	AssessmentID      uint       `gorm:"not null;uniqueIndex:idx_sessions_assessment_student" json:"assessment_id"`
	StudentID         uint       `gorm:"not null;uniqueIndex:idx_sessions_assessment_student;index" json:"student_id"`
	StartedAt         *time.Time `json:"started_at"`
	SubmittedAt       *time.Time `gorm:"index" json:"submitted_at"`
	GradedAt          *time.Time `json:"graded_at"`
	Score             *float64   `json:"score"`
	ForcedSubmission  bool       `gorm:"not null;default:false" json:"forced_submission"`
	SecurityViolation *string    `gorm:"size:64" json:"security_violation"`
	TeacherNotes      *string    `gorm:"type:text" json:"teacher_notes"`
	GradedBy          *uint      `json:"graded_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Status computes the lifecycle state from the recorded timestamps.
func (s AssessmentSession) Status() SessionStatus {
	switch {
	case s.GradedAt != nil:
		return SessionStatusGraded
	case s.SubmittedAt != nil:
		return SessionStatusSubmitted
	default:
		return SessionStatusNotSubmitted
	}
}

// IsSubmitted reports whether the session has been closed for answering.
func (s AssessmentSession) IsSubmitted() bool {
	return s.SubmittedAt != nil
}

// IsStarted reports whether the student has opened the working surface.
func (s AssessmentSession) IsStarted() bool {
	return s.StartedAt != nil
}
