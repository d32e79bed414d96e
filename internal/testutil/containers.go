// Package testutil provides MongoDB and Redis fixtures for integration tests.
//
// Each fixture uses an explicit address from the environment when present
// (MONGODB_URI, REDIS_ADDR), starts a container when RUN_CONTAINER_TESTS=1,
// and skips the test otherwise.
package testutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func containersEnabled() bool {
	return os.Getenv("RUN_CONTAINER_TESTS") == "1"
}

// MongoDatabase returns a fresh database that is dropped when the test ends
func MongoDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	ctx := context.Background()

	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		if !containersEnabled() {
			t.Skip("Skipping MongoDB integration tests: MONGODB_URI not set")
		}

		container, err := mongodb.Run(ctx, "mongo:7.0")
		require.NoError(t, err, "Failed to start MongoDB container")
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		mongoURI, err = container.ConnectionString(ctx)
		require.NoError(t, err, "Failed to get MongoDB connection string")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(mongoURI))
	require.NoError(t, err, "Failed to connect to MongoDB")
	require.NoError(t, client.Ping(connectCtx, nil), "Failed to ping MongoDB")

	name := fmt.Sprintf("verification_test_%s_%d", sanitize(t.Name()), time.Now().UnixNano())
	db := client.Database(name)

	t.Cleanup(func() {
		ctx := context.Background()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

// RedisClient returns a client on a flushed logical database
func RedisClient(t *testing.T) *goredis.Client {
	t.Helper()
	ctx := context.Background()

	opts := &goredis.Options{Addr: os.Getenv("REDIS_ADDR"), Password: os.Getenv("REDIS_PASSWORD"), DB: 15}
	if opts.Addr == "" {
		if !containersEnabled() {
			t.Skip("Skipping Redis integration tests: REDIS_ADDR not set")
		}

		container, err := redis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err, "Failed to start Redis container")
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		uri, err := container.ConnectionString(ctx)
		require.NoError(t, err, "Failed to get Redis connection string")

		opts, err = goredis.ParseURL(uri)
		require.NoError(t, err)
	}

	client := goredis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err(), "Failed to connect to Redis")
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func sanitize(name string) string {
	replacer := strings.NewReplacer("/", "_", " ", "_", "-", "_")
	name = replacer.Replace(name)
	if len(name) > 30 {
		name = name[:30]
	}
	return name
}
