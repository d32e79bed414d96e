package services

import (
	"context"
	"time"

	"github.com/nextmind-ai/app-verification/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChallengeStore persists verification challenges.
//
// Find methods return models.ErrChallengeNotFound when nothing matches. The
// conditional updates return false, with a nil error, when the record no
// longer has the expected attempt count or has already been consumed.
type ChallengeStore interface {
	// ReplaceActive removes every unconsumed challenge of the email and
	// inserts challenge as one per-email serialized step. It sets
	// challenge.ID on success.
	ReplaceActive(ctx context.Context, challenge *models.Challenge) error

	FindActiveByID(ctx context.Context, id primitive.ObjectID) (*models.Challenge, error)
	FindActiveByToken(ctx context.Context, token string) (*models.Challenge, error)
	FindActiveByEmail(ctx context.Context, email string) (*models.Challenge, error)
	FindActiveByCode(ctx context.Context, email, code string) (*models.Challenge, error)

	// FindByToken returns the challenge whatever its state
	FindByToken(ctx context.Context, token string) (*models.Challenge, error)

	IncrementAttempts(ctx context.Context, id primitive.ObjectID, expectedAttempts int) (bool, error)
	MarkConsumed(ctx context.Context, id primitive.ObjectID, expectedAttempts int) (bool, error)

	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
