package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const replaceActiveRetries = 5

// MongoChallengeStore stores challenges in a MongoDB collection. The
// email_active_unique partial index serializes ReplaceActive per email.
type MongoChallengeStore struct {
	collection *mongo.Collection
}

// NewMongoChallengeStore creates a store backed by collection
func NewMongoChallengeStore(collection *mongo.Collection) *MongoChallengeStore {
	return &MongoChallengeStore{collection: collection}
}

func recordDBOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	observability.DatabaseOperations.WithLabelValues(operation, status).Inc()
}

// ReplaceActive deletes the unconsumed challenges of the email and inserts the
// new one. A concurrent issue for the same email surfaces as a duplicate key
// on the partial index, and the loop retries until this insert wins.
func (s *MongoChallengeStore) ReplaceActive(ctx context.Context, challenge *models.Challenge) (err error) {
	ctx, span, cleanup := utils.TraceDatabaseOperation(ctx, "replace_active", s.collection.Name())
	defer cleanup()
	defer func() { recordDBOperation("replace_active", err) }()

	if challenge.ID.IsZero() {
		challenge.ID = primitive.NewObjectID()
	}

	for attempt := 0; attempt < replaceActiveRetries; attempt++ {
		deleted, err := s.collection.DeleteMany(ctx, bson.M{"email": challenge.Email, "consumed": false})
		if err != nil {
			return fmt.Errorf("failed to delete prior challenges: %w", err)
		}
		utils.AddSpanAttribute(span, "db.deleted_count", deleted.DeletedCount)

		_, err = s.collection.InsertOne(ctx, challenge)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to insert challenge: %w", err)
		}
		utils.AddSpanAttribute(span, "db.replace_conflicts", attempt+1)
	}

	return fmt.Errorf("failed to insert challenge: concurrent issuance for the same email did not settle")
}

func (s *MongoChallengeStore) findOne(ctx context.Context, operation string, filter bson.M) (challenge *models.Challenge, err error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, operation, s.collection.Name())
	defer cleanup()

	challenge = &models.Challenge{}
	err = s.collection.FindOne(ctx, filter).Decode(challenge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		recordDBOperation(operation, nil)
		return nil, models.ErrChallengeNotFound
	}
	recordDBOperation(operation, err)
	if err != nil {
		return nil, fmt.Errorf("failed to find challenge: %w", err)
	}
	return challenge, nil
}

func (s *MongoChallengeStore) FindActiveByID(ctx context.Context, id primitive.ObjectID) (*models.Challenge, error) {
	return s.findOne(ctx, "find_active_by_id", bson.M{"_id": id, "consumed": false})
}

func (s *MongoChallengeStore) FindActiveByToken(ctx context.Context, token string) (*models.Challenge, error) {
	return s.findOne(ctx, "find_active_by_token", bson.M{"token": token, "consumed": false})
}

func (s *MongoChallengeStore) FindActiveByEmail(ctx context.Context, email string) (*models.Challenge, error) {
	return s.findOne(ctx, "find_active_by_email", bson.M{"email": email, "consumed": false})
}

func (s *MongoChallengeStore) FindActiveByCode(ctx context.Context, email, code string) (*models.Challenge, error) {
	return s.findOne(ctx, "find_active_by_code", bson.M{"email": email, "code": code, "consumed": false})
}

func (s *MongoChallengeStore) FindByToken(ctx context.Context, token string) (*models.Challenge, error) {
	return s.findOne(ctx, "find_by_token", bson.M{"token": token})
}

func (s *MongoChallengeStore) conditionalUpdate(ctx context.Context, operation string, id primitive.ObjectID, expectedAttempts int, update bson.M) (ok bool, err error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, operation, s.collection.Name())
	defer cleanup()
	defer func() { recordDBOperation(operation, err) }()

	filter := bson.M{
		"_id":           id,
		"consumed":      false,
		"attempt_count": expectedAttempts,
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update challenge: %w", err)
	}
	return result.MatchedCount == 1, nil
}

// IncrementAttempts adds one attempt if the record still has expectedAttempts
func (s *MongoChallengeStore) IncrementAttempts(ctx context.Context, id primitive.ObjectID, expectedAttempts int) (bool, error) {
	return s.conditionalUpdate(ctx, "increment_attempts", id, expectedAttempts,
		bson.M{"$inc": bson.M{"attempt_count": 1}})
}

// MarkConsumed consumes the record if it still has expectedAttempts. The
// successful comparison counts as an attempt.
func (s *MongoChallengeStore) MarkConsumed(ctx context.Context, id primitive.ObjectID, expectedAttempts int) (bool, error) {
	return s.conditionalUpdate(ctx, "mark_consumed", id, expectedAttempts,
		bson.M{
			"$set": bson.M{"consumed": true},
			"$inc": bson.M{"attempt_count": 1},
		})
}

func (s *MongoChallengeStore) Delete(ctx context.Context, id primitive.ObjectID) (err error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "delete", s.collection.Name())
	defer cleanup()
	defer func() { recordDBOperation("delete", err) }()

	if _, err = s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("failed to delete challenge: %w", err)
	}
	return nil
}

func (s *MongoChallengeStore) DeleteExpired(ctx context.Context, now time.Time) (count int64, err error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "delete_expired", s.collection.Name())
	defer cleanup()
	defer func() { recordDBOperation("delete_expired", err) }()

	result, err := s.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": now}})
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired challenges: %w", err)
	}
	return result.DeletedCount, nil
}
