package models

import (
	"errors"
	"fmt"
)

// Verification outcomes
var (
	ErrChallengeNotFound = errors.New("verification challenge not found")
	ErrChallengeExpired  = errors.New("verification challenge expired")
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	ErrCodeMismatch      = errors.New("verification value mismatch")
	ErrValidation        = errors.New("validation failed")
)

// Account directory errors
var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountAlreadyVerified = errors.New("email is already verified")
)

// MismatchError is returned when a supplied token or code does not match
type MismatchError struct {
	AttemptsRemaining int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %d attempts remaining", ErrCodeMismatch, e.AttemptsRemaining)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrCodeMismatch
}

// ValidationError reports malformed input
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError builds a ValidationError for field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// Outcome is the label of a verification result
type Outcome string

const (
	OutcomeSuccess           Outcome = "success"
	OutcomeNotFound          Outcome = "not_found"
	OutcomeExpired           Outcome = "expired"
	OutcomeAttemptsExhausted Outcome = "attempts_exhausted"
	OutcomeMismatch          Outcome = "mismatch"
	OutcomeValidation        Outcome = "validation"
	OutcomeInfrastructure    Outcome = "infrastructure"
)

// OutcomeOf maps an error returned by the registry to its outcome label
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrChallengeNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrChallengeExpired):
		return OutcomeExpired
	case errors.Is(err, ErrAttemptsExhausted):
		return OutcomeAttemptsExhausted
	case errors.Is(err, ErrCodeMismatch):
		return OutcomeMismatch
	case errors.Is(err, ErrValidation):
		return OutcomeValidation
	default:
		return OutcomeInfrastructure
	}
}
