package models

import "time"

const (
	// EnrollmentStatusActive marks a student currently attending the class.
	EnrollmentStatusActive = "active"
	// EnrollmentStatusWithdrawn marks a student who left the class.
	EnrollmentStatusWithdrawn = "withdrawn"
)

// Enrollment links a student to a class roster.
type Enrollment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ClassID   uint      `gorm:"not null;uniqueIndex:idx_enrollments_class_student" json:"class_id"`
	StudentID uint      `gorm:"not null;uniqueIndex:idx_enrollments_class_student" json:"student_id"`
	Status    string    `gorm:"size:16;not null;default:active;index" json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
