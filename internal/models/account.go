package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscription plans
const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Account is the subset of a user document this service reads and updates
type Account struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name            string             `bson:"name" json:"name"`
	Email           string             `bson:"email" json:"email"`
	Plan            string             `bson:"plan" json:"plan"`
	IsEmailVerified bool               `bson:"is_email_verified" json:"is_email_verified"`
	UpdatedAt       time.Time          `bson:"updated_at,omitempty" json:"updated_at,omitempty"`
}

// AccountSummary is returned to clients after a successful verification
type AccountSummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	IsEmailVerified bool   `json:"is_email_verified"`
}

// Summary returns the client facing view of the account
func (a *Account) Summary() *AccountSummary {
	return &AccountSummary{
		ID:              a.ID.Hex(),
		Name:            a.Name,
		Email:           a.Email,
		IsEmailVerified: a.IsEmailVerified,
	}
}
