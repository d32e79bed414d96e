package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Constants for challenge configuration
const (
	DefaultChallengeTTL  = 15 * time.Minute
	DefaultMaxAttempts   = 5
	VerificationCodeLen  = 6
	VerificationTokenLen = 64
)

// RequestOrigin records where an issuance request came from
type RequestOrigin struct {
	IPAddress string `bson:"ip_address,omitempty" json:"ip_address,omitempty"`
	UserAgent string `bson:"user_agent,omitempty" json:"user_agent,omitempty"`
}

// Challenge is one pending email verification
type Challenge struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	Token        string             `bson:"token" json:"-"`
	Code         string             `bson:"code" json:"-"`
	AccountID    string             `bson:"account_id,omitempty" json:"account_id,omitempty"`
	Consumed     bool               `bson:"consumed" json:"consumed"`
	AttemptCount int                `bson:"attempt_count" json:"attempt_count"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	ExpiresAt    time.Time          `bson:"expires_at" json:"expires_at"`
	Origin       RequestOrigin      `bson:"origin" json:"origin"`
}

// IsExpired reports whether the challenge is past its deadline at now
func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AttemptsRemaining returns how many comparisons are left under maxAttempts
func (c *Challenge) AttemptsRemaining(maxAttempts int) int {
	remaining := maxAttempts - c.AttemptCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// HasAccount reports whether the challenge is linked to an account
func (c *Challenge) HasAccount() bool {
	return c.AccountID != ""
}

// ChallengeStatus is the read-only view returned for status polling
type ChallengeStatus struct {
	Email        string    `json:"email"`
	Verified     bool      `json:"verified"`
	Expired      bool      `json:"expired"`
	AttemptCount int       `json:"attempts"`
	MaxAttempts  int       `json:"max_attempts"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// VerificationSuccess carries what a caller needs after a challenge is consumed
type VerificationSuccess struct {
	Email       string    `json:"email"`
	AccountID   string    `json:"account_id,omitempty"`
	ChallengeID string    `json:"challenge_id"`
	VerifiedAt  time.Time `json:"verified_at"`
}

// ChallengeIndexModels returns the indexes of the verification collection
func ChallengeIndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetName("token_1").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}, {Key: "consumed", Value: 1}},
			Options: options.Index().SetName("email_1_consumed_1"),
		},
		{
			// At most one unconsumed challenge per email
			Keys: bson.D{{Key: "email", Value: 1}},
			Options: options.Index().
				SetName("email_active_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"consumed": false}),
		},
		{
			Keys: bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().
				SetName("expires_at_ttl").
				SetExpireAfterSeconds(0),
		},
	}
}
