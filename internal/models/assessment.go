package models

import "time"

// DeliveryMode identifies how an assessment is delivered to students.
type DeliveryMode string

const (
	// DeliveryModeHomework assessments stay open until an optional due date.
	DeliveryModeHomework DeliveryMode = "homework"
	// DeliveryModeSupervised assessments run from a scheduled start for a fixed duration.
	DeliveryModeSupervised DeliveryMode = "supervised"
)

// Assessment is an authored assessment delivered to a class.
type Assessment struct {
	ID              uint         `gorm:"primaryKey" json:"id"`
	ClassID         uint         `gorm:"not null;index" json:"class_id"`
	Title           string       `gorm:"size:255;not null" json:"title"`
	DeliveryMode    DeliveryMode `gorm:"size:16;not null;index" json:"delivery_mode"`
	DueDate         *time.Time   `json:"due_date"`
	ScheduledAt     *time.Time   `gorm:"index" json:"scheduled_at"`
	DurationMinutes *int         `json:"duration_minutes"`
	IsPublished     bool         `gorm:"not null;default:false;index" json:"is_published"`
	MaxScore        float64      `gorm:"not null;default:100" json:"max_score"`
	ReminderSentAt  *time.Time   `json:"reminder_sent_at"`
	MaterializedAt  *time.Time   `json:"materialized_at"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
	Questions       []Question   `json:"questions,omitempty"`
}

// IsSupervised reports whether the assessment uses the supervised delivery mode.
func (a Assessment) IsSupervised() bool {
	return a.DeliveryMode == DeliveryModeSupervised
}

// Duration returns the configured duration of a supervised assessment.
func (a Assessment) Duration() (time.Duration, bool) {
	if a.DurationMinutes == nil {
		return 0, false
	}
	return time.Duration(*a.DurationMinutes) * time.Minute, true
}

// EndsAt returns the global end of a supervised assessment, or nil when unknown.
// Homework assessments have no single end; their horizon is the due date.
func (a Assessment) EndsAt() *time.Time {
	if !a.IsSupervised() || a.ScheduledAt == nil {
		return nil
	}

	end := *a.ScheduledAt
	if duration, ok := a.Duration(); ok {
		end = end.Add(duration)
	}
	return &end
}
