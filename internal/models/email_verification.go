package models

import "time"

// SendVerificationRequest is the body of a challenge issuance request
type SendVerificationRequest struct {
	Email  string `json:"email" binding:"required"`
	UserID string `json:"user_id,omitempty"`
}

// ResendVerificationRequest is the body of a resend request
type ResendVerificationRequest struct {
	Email string `json:"email" binding:"required"`
}

// VerifyEmailRequest carries either a token or a code and email pair
type VerifyEmailRequest struct {
	Token string `json:"token,omitempty"`
	Code  string `json:"code,omitempty"`
	Email string `json:"email,omitempty"`
}

// DebugChallenge exposes the secret values in development responses only
type DebugChallenge struct {
	Code  string `json:"code"`
	Token string `json:"token"`
}

// SendVerificationResponse is returned after a challenge is issued
type SendVerificationResponse struct {
	Message   string          `json:"message"`
	Email     string          `json:"email"`
	ExpiresAt time.Time       `json:"expires_at"`
	Debug     *DebugChallenge `json:"debug,omitempty"`
}

// VerifyEmailResponse is returned after a challenge is consumed
type VerifyEmailResponse struct {
	Message  string          `json:"message"`
	Email    string          `json:"email"`
	Verified bool            `json:"verified"`
	User     *AccountSummary `json:"user,omitempty"`
}

// CleanupResponse is returned by the administrative reap endpoint
type CleanupResponse struct {
	Message      string `json:"message"`
	DeletedCount int64  `json:"deleted_count"`
}
