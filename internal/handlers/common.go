package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextmind-ai/app-verification/internal/models"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse reports the state of the service and its dependencies
type HealthResponse struct {
	Status       string            `json:"status"`
	Timestamp    time.Time         `json:"timestamp"`
	Services     map[string]string `json:"services"`
	ResponseTime string            `json:"response_time,omitempty"`
}

// User facing messages. Not-found and mismatch share one message so a
// response never tells whether a code exists.
const (
	msgInvalidChallenge  = "Invalid or expired verification token/code"
	msgChallengeExpired  = "Verification code has expired. Please request a new one."
	msgAttemptsExhausted = "Too many verification attempts. Please request a new verification email."
	msgVerifyFailed      = "Verification failed. Please try again."
	msgTokenOrCode       = "Verification token or code is required"
	msgInvalidEmail      = "Valid email address is required"
	msgEmailRequired     = "Email address is required"
	msgAlreadyVerified   = "Email address is already verified"
	msgRecordNotFound    = "Verification record not found"
)

// verificationErrorStatus maps a registry error to its HTTP status and message
func verificationErrorStatus(err error) (int, string) {
	switch models.OutcomeOf(err) {
	case models.OutcomeNotFound, models.OutcomeMismatch:
		return http.StatusBadRequest, msgInvalidChallenge
	case models.OutcomeExpired:
		return http.StatusBadRequest, msgChallengeExpired
	case models.OutcomeAttemptsExhausted:
		return http.StatusTooManyRequests, msgAttemptsExhausted
	case models.OutcomeValidation:
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			return http.StatusBadRequest, validationErr.Message
		}
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, msgVerifyFailed
	}
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, ErrorResponse{Error: message})
}
