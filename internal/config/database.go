package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/nextmind-ai/app-verification/internal/redisclient"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.uber.org/zap"
)

var (
	// MongoDB database handle
	MongoDB *mongo.Database
	// Redis client
	Redis *redisclient.Client
)

// InitMongoDB initializes the MongoDB connection and ensures indexes
func InitMongoDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(AppConfig.MongoURI).
		SetMonitor(otelmongo.NewMonitor()).
		SetMaxPoolSize(100).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(5 * time.Minute).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	MongoDB = client.Database(AppConfig.MongoDatabase)

	if err := EnsureIndexes(context.Background(), MongoDB); err != nil {
		logging.Logger.Error("failed to ensure indexes on startup", zap.Error(err))
	}

	logging.Logger.Info("connected to MongoDB",
		zap.String("uri", maskMongoURI(AppConfig.MongoURI)),
		zap.String("database", AppConfig.MongoDatabase),
	)
	return nil
}

// InitRedis initializes the Redis connection. A failed ping is logged and
// leaves Redis nil so callers fall back to in-process rate limiting.
func InitRedis() {
	if !AppConfig.RedisEnabled {
		logging.Logger.Info("redis disabled, using in-memory rate limiting")
		return
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:         AppConfig.RedisURI,
		Password:     AppConfig.RedisPassword,
		DB:           AppConfig.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	client := redisclient.NewClient(redisClient)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logging.Logger.Error("failed to connect to Redis",
			zap.String("uri", AppConfig.RedisURI),
			zap.Error(err))
		_ = redisClient.Close()
		return
	}

	Redis = client
	logging.Logger.Info("connected to Redis",
		zap.String("uri", AppConfig.RedisURI))
}

// maskMongoURI masks credentials in a MongoDB URI
func maskMongoURI(uri string) string {
	at := strings.LastIndex(uri, "@")
	if at < 0 {
		return uri
	}
	scheme := "mongodb://"
	if strings.HasPrefix(uri, "mongodb+srv://") {
		scheme = "mongodb+srv://"
	}
	return scheme + "****:****@" + uri[at+1:]
}

// EnsureIndexes creates the indexes of every collection the service owns
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	logger := logging.Logger.Named("database")
	logger.Info("ensuring required indexes exist")

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for name, indexes := range ownedIndexes() {
		if err := EnsureCollectionIndexes(ctx, db.Collection(name), indexes); err != nil {
			return err
		}
	}

	logger.Info("all required indexes verified")
	return nil
}

// EnsureCollectionIndexes creates the named indexes missing from a collection
func EnsureCollectionIndexes(ctx context.Context, collection *mongo.Collection, indexes []mongo.IndexModel) error {
	logger := logging.Logger.Named("database").With(zap.String("collection", collection.Name()))

	cursor, err := collection.Indexes().List(ctx)
	if err != nil {
		logger.Error("failed to list indexes", zap.Error(err))
		return err
	}
	defer cursor.Close(ctx)

	existingIndexes := make(map[string]bool)
	for cursor.Next(ctx) {
		var index bson.M
		if err := cursor.Decode(&index); err != nil {
			continue
		}
		if name, ok := index["name"].(string); ok {
			existingIndexes[name] = true
		}
	}

	created := 0
	for _, indexModel := range indexes {
		name := indexName(indexModel)
		if name != "" && existingIndexes[name] {
			continue
		}

		if _, err := collection.Indexes().CreateOne(ctx, indexModel); err != nil {
			// Another instance may have created it concurrently
			if mongo.IsDuplicateKeyError(err) {
				logger.Info("index already exists (created by another instance)", zap.String("index", name))
				continue
			}
			logger.Error("failed to create index", zap.String("index", name), zap.Error(err))
			return err
		}
		created++
	}

	if created > 0 {
		logger.Info("created collection indexes", zap.Int("count", created))
	} else {
		logger.Debug("collection indexes already exist")
	}
	return nil
}

// ownedIndexes maps each collection this service owns to its indexes. The
// users collection belongs to the account directory and is left untouched.
func ownedIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		AppConfig.VerificationCollection: models.ChallengeIndexModels(),
		AppConfig.AuditLogsCollection:    auditLogIndexModels(),
	}
}

func indexName(model mongo.IndexModel) string {
	if model.Options == nil || model.Options.Name == nil {
		return ""
	}
	return *model.Options.Name
}

func auditLogIndexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_1"),
		},
		{
			Keys:    bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("action_1_timestamp_-1"),
		},
		{
			// Keep audit entries for 90 days
			Keys:    bson.D{{Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("timestamp_ttl").SetExpireAfterSeconds(90 * 24 * 60 * 60),
		},
	}
}
