package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "nil is success", err: nil, want: OutcomeSuccess},
		{name: "not found", err: ErrChallengeNotFound, want: OutcomeNotFound},
		{name: "wrapped not found", err: fmt.Errorf("lookup: %w", ErrChallengeNotFound), want: OutcomeNotFound},
		{name: "expired", err: ErrChallengeExpired, want: OutcomeExpired},
		{name: "exhausted", err: ErrAttemptsExhausted, want: OutcomeAttemptsExhausted},
		{name: "mismatch", err: &MismatchError{AttemptsRemaining: 2}, want: OutcomeMismatch},
		{name: "validation", err: NewValidationError("email", "invalid email format"), want: OutcomeValidation},
		{name: "storage failure", err: errors.New("connection refused"), want: OutcomeInfrastructure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OutcomeOf(tt.err))
		})
	}
}

func TestMismatchError(t *testing.T) {
	var err error = &MismatchError{AttemptsRemaining: 3}

	assert.True(t, errors.Is(err, ErrCodeMismatch))
	assert.False(t, errors.Is(err, ErrChallengeNotFound))
	assert.Contains(t, err.Error(), "3 attempts remaining")

	var mismatch *MismatchError
	wrapped := fmt.Errorf("verify: %w", err)
	if assert.True(t, errors.As(wrapped, &mismatch)) {
		assert.Equal(t, 3, mismatch.AttemptsRemaining)
	}
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("email", "invalid email format")
	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "email: invalid email format", err.Error())

	bare := &ValidationError{Message: "token or code and email are required"}
	assert.Equal(t, "token or code and email are required", bare.Error())
}
