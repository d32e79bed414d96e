package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// AccountDirectory reads and updates the user accounts a challenge may be linked to
type AccountDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Account, error)
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	// MarkEmailVerified flips the verified flag and returns the updated account
	MarkEmailVerified(ctx context.Context, id string) (*models.Account, error)
}

// MongoAccountDirectory implements AccountDirectory over the users collection
type MongoAccountDirectory struct {
	collection *mongo.Collection
	logger     *logging.SafeLogger
}

// NewMongoAccountDirectory creates a directory backed by collection
func NewMongoAccountDirectory(collection *mongo.Collection, logger *logging.SafeLogger) *MongoAccountDirectory {
	return &MongoAccountDirectory{
		collection: collection,
		logger:     logger.Named("account_directory"),
	}
}

func (d *MongoAccountDirectory) findOne(ctx context.Context, operation string, filter bson.M) (*models.Account, error) {
	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, operation, d.collection.Name())
	defer cleanup()

	var account models.Account
	err := d.collection.FindOne(ctx, filter).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		recordDBOperation(operation, nil)
		return nil, models.ErrAccountNotFound
	}
	recordDBOperation(operation, err)
	if err != nil {
		d.logger.Error("failed to load account", zap.String("operation", operation), zap.Error(err))
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

func (d *MongoAccountDirectory) FindByID(ctx context.Context, id string) (*models.Account, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrAccountNotFound
	}
	return d.findOne(ctx, "find_account_by_id", bson.M{"_id": objectID})
}

func (d *MongoAccountDirectory) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	return d.findOne(ctx, "find_account_by_email", bson.M{"email": utils.NormalizeEmail(email)})
}

func (d *MongoAccountDirectory) MarkEmailVerified(ctx context.Context, id string) (*models.Account, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrAccountNotFound
	}

	ctx, _, cleanup := utils.TraceDatabaseOperation(ctx, "mark_email_verified", d.collection.Name())
	defer cleanup()

	update := bson.M{
		"$set":   bson.M{"is_email_verified": true, "updated_at": time.Now()},
		"$unset": bson.M{"email_verification_token": ""},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var account models.Account
	err = d.collection.FindOneAndUpdate(ctx, bson.M{"_id": objectID}, update, opts).Decode(&account)
	if errors.Is(err, mongo.ErrNoDocuments) {
		recordDBOperation("mark_email_verified", nil)
		return nil, models.ErrAccountNotFound
	}
	recordDBOperation("mark_email_verified", err)
	if err != nil {
		return nil, fmt.Errorf("failed to mark email verified: %w", err)
	}

	d.logger.Info("account email verified",
		zap.String("account_id", id),
		zap.String("email", observability.MaskEmail(account.Email)))
	return &account, nil
}

// MemoryAccountDirectory is an in-process AccountDirectory
type MemoryAccountDirectory struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
}

// NewMemoryAccountDirectory creates a directory holding accounts
func NewMemoryAccountDirectory(accounts ...models.Account) *MemoryAccountDirectory {
	d := &MemoryAccountDirectory{accounts: make(map[string]*models.Account)}
	for _, account := range accounts {
		d.Put(account)
	}
	return d
}

// Put stores or replaces an account, assigning an ID when missing
func (d *MemoryAccountDirectory) Put(account models.Account) *models.Account {
	d.mu.Lock()
	defer d.mu.Unlock()

	if account.ID.IsZero() {
		account.ID = primitive.NewObjectID()
	}
	account.Email = utils.NormalizeEmail(account.Email)
	d.accounts[account.ID.Hex()] = &account
	stored := account
	return &stored
}

func (d *MemoryAccountDirectory) FindByID(_ context.Context, id string) (*models.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	account, ok := d.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	found := *account
	return &found, nil
}

func (d *MemoryAccountDirectory) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	email = utils.NormalizeEmail(email)
	for _, account := range d.accounts {
		if account.Email == email {
			found := *account
			return &found, nil
		}
	}
	return nil, models.ErrAccountNotFound
}

func (d *MemoryAccountDirectory) MarkEmailVerified(_ context.Context, id string) (*models.Account, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	account, ok := d.accounts[id]
	if !ok {
		return nil, models.ErrAccountNotFound
	}
	account.IsEmailVerified = true
	account.UpdatedAt = time.Now()
	updated := *account
	return &updated, nil
}
