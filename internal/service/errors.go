package service

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound indicates the session row does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrAssessmentNotFound indicates the assessment does not exist.
	ErrAssessmentNotFound = errors.New("assessment not found")
	// ErrQuestionNotFound indicates the question does not belong to the assessment.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAlreadySubmitted is returned when a closed session is started again.
	ErrAlreadySubmitted = errors.New("this session is already closed")
	// ErrSessionClosed is returned when an answer arrives after the session closed.
	ErrSessionClosed = errors.New("session is closed for answers")
	// ErrInvalidAnswerPayload indicates the answer does not match the question's response schema.
	ErrInvalidAnswerPayload = errors.New("answer payload is invalid for this question")
	// ErrGradingDenied is the sentinel behind every GradingDeniedError.
	ErrGradingDenied = errors.New("grading is not permitted for this session")
	// ErrReassignmentNotAllowed is the sentinel behind every ReassignmentNotAllowedError.
	ErrReassignmentNotAllowed = errors.New("reassignment is not allowed")
	// ErrAssessmentNotOpen is returned when a supervised assessment is started before its scheduled time.
	ErrAssessmentNotOpen = errors.New("assessment has not opened yet")
	// ErrScoreExceedsMax indicates a grading score surpasses the assessment max.
	ErrScoreExceedsMax = errors.New("score exceeds assessment max")
)

// Reassignment refusal reasons.
const (
	ReassignReasonMissingReason            = "missing_reason"
	ReassignReasonHasResponses             = "has_responses"
	ReassignReasonSupervisedAlreadyStarted = "supervised_already_started"
)

// GradingDeniedError carries the guard's reason code so callers can redirect with an explanation.
type GradingDeniedError struct {
	Reason string
}

func (e *GradingDeniedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrGradingDenied.Error(), e.Reason)
}

func (e *GradingDeniedError) Unwrap() error {
	return ErrGradingDenied
}

// ReassignmentNotAllowedError explains why a session could not be reassigned.
type ReassignmentNotAllowedError struct {
	Reason string
}

func (e *ReassignmentNotAllowedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrReassignmentNotAllowed.Error(), e.Reason)
}

func (e *ReassignmentNotAllowedError) Unwrap() error {
	return ErrReassignmentNotAllowed
}
