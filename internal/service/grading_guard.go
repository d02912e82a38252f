package service

import (
	"time"

	"github.com/noah-isme/gema-assessment-api/internal/models"
	"github.com/noah-isme/gema-assessment-api/internal/observability"
	"github.com/noah-isme/gema-assessment-api/internal/timing"
)

// Grading access reason and warning codes.
const (
	GradingReasonSubmitted                   = "submitted"
	GradingReasonNotSubmittedAssessmentEnded = "not_submitted_assessment_ended"
	GradingReasonAssessmentStillLive         = "assessment_still_live"
	GradingWarningWithoutSubmission          = "grading_without_submission"
)

// GradingDecision is the outcome of a grading access check.
type GradingDecision struct {
	Allowed bool
	Reason  string
	Warning string
}

// Err converts a denial into a GradingDeniedError.
func (d GradingDecision) Err() error {
	if d.Allowed {
		return nil
	}
	return &GradingDeniedError{Reason: d.Reason}
}

// GradingAccessGuard decides whether a teacher may view or score a session now.
// A session that is still live must never be graded.
type GradingAccessGuard interface {
	Check(session models.AssessmentSession, assessment models.Assessment, now time.Time) GradingDecision
}

type gradingAccessGuard struct{}

// NewGradingAccessGuard returns the guard shared by the grading page and the grade write.
func NewGradingAccessGuard() GradingAccessGuard {
	return gradingAccessGuard{}
}

// Check allows a submitted session, or an unsubmitted one whose time is over as the
// student sees it (timing.IsSessionOver). A late starter still inside their own
// duration stays live even after the scheduled window closed. A supervised session
// with no schedule becomes gradeable once its personal duration runs out.
func (gradingAccessGuard) Check(session models.AssessmentSession, assessment models.Assessment, now time.Time) GradingDecision {
	var decision GradingDecision
	switch {
	case session.IsSubmitted():
		decision = GradingDecision{Allowed: true, Reason: GradingReasonSubmitted}
	case timing.IsSessionOver(session, assessment, now):
		decision = GradingDecision{
			Allowed: true,
			Reason:  GradingReasonNotSubmittedAssessmentEnded,
			Warning: GradingWarningWithoutSubmission,
		}
	default:
		decision = GradingDecision{Reason: GradingReasonAssessmentStillLive}
	}

	observability.GradingDecisions().WithLabelValues(decision.Reason).Inc()
	return decision
}
