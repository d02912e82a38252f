// Package timing decides when assessment sessions run out of time.
//
// Every deadline decision in the service goes through this package so that the
// homework and supervised delivery modes are reconciled in one place. All
// functions are pure: the caller supplies the reference time.
package timing

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
)

// Policy captures the deadline rules of a single delivery mode.
type Policy interface {
	// PersonalDeadline returns the end of the student's own time window, if any.
	PersonalDeadline(session models.AssessmentSession) (time.Time, bool)
	// Horizon returns the instant after which the assessment as a whole is over, if any.
	Horizon() (time.Time, bool)
}

// For returns the policy matching the assessment's delivery mode.
func For(assessment models.Assessment) Policy {
	if assessment.IsSupervised() {
		return supervisedPolicy{assessment: assessment}
	}
	return homeworkPolicy{assessment: assessment}
}

type homeworkPolicy struct {
	assessment models.Assessment
}

func (p homeworkPolicy) PersonalDeadline(models.AssessmentSession) (time.Time, bool) {
	return time.Time{}, false
}

func (p homeworkPolicy) Horizon() (time.Time, bool) {
	if p.assessment.DueDate == nil {
		return time.Time{}, false
	}
	return *p.assessment.DueDate, true
}

type supervisedPolicy struct {
	assessment models.Assessment
}

func (p supervisedPolicy) PersonalDeadline(session models.AssessmentSession) (time.Time, bool) {
	if session.StartedAt == nil {
		return time.Time{}, false
	}
	duration, ok := p.assessment.Duration()
	if !ok {
		return time.Time{}, false
	}
	return session.StartedAt.Add(duration), true
}

func (p supervisedPolicy) Horizon() (time.Time, bool) {
	end := p.assessment.EndsAt()
	if end == nil {
		return time.Time{}, false
	}
	return *end, true
}

// IsPersonalTimeExpired reports whether a started supervised session has used up its duration.
func IsPersonalTimeExpired(session models.AssessmentSession, assessment models.Assessment, now time.Time) bool {
	deadline, ok := For(assessment).PersonalDeadline(session)
	if !ok {
		return false
	}
	return now.After(deadline)
}

// HasAssessmentEnded reports whether the assessment's global horizon has passed.
// An assessment without a horizon never ends on its own.
func HasAssessmentEnded(assessment models.Assessment, now time.Time) bool {
	horizon, ok := For(assessment).Horizon()
	if !ok {
		return false
	}
	return now.After(horizon)
}

// IsSessionOver reports whether the student's entitlement to work on the session has
// ended. A known personal deadline governs on its own, so a student who started late
// keeps the full duration even after the scheduled window closes. Without one, the
// assessment horizon decides.
func IsSessionOver(session models.AssessmentSession, assessment models.Assessment, now time.Time) bool {
	if _, ok := For(assessment).PersonalDeadline(session); ok {
		return IsPersonalTimeExpired(session, assessment, now)
	}
	return HasAssessmentEnded(assessment, now)
}

// ShouldAutoSubmit reports whether the system must close an open session on the
// student's behalf.
func ShouldAutoSubmit(session models.AssessmentSession, assessment models.Assessment, now time.Time) bool {
	if session.IsSubmitted() || !assessment.IsPublished {
		return false
	}
	return IsSessionOver(session, assessment, now)
}

// EffectiveDeadline returns the instant the student's entitlement ends. The personal
// deadline wins when known; otherwise the assessment horizon; otherwise now.
//
// The now fallback only stamps a forced submission. It must not be used to decide
// whether to force one.
func EffectiveDeadline(session models.AssessmentSession, assessment models.Assessment, now time.Time) time.Time {
	if deadline, ok := KnownDeadline(session, assessment); ok {
		return deadline
	}
	return now
}

// KnownDeadline is EffectiveDeadline without the wall-clock fallback.
func KnownDeadline(session models.AssessmentSession, assessment models.Assessment) (time.Time, bool) {
	policy := For(assessment)
	if deadline, ok := policy.PersonalDeadline(session); ok {
		return deadline, true
	}
	return policy.Horizon()
}

// Window is a half-open interval (From, To].
type Window struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return t.After(w.From) && !t.After(w.To)
}

// UpcomingWindow returns the interval of start times considered imminent at now.
func UpcomingWindow(now time.Time, lead time.Duration) Window {
	return Window{From: now, To: now.Add(lead)}
}
