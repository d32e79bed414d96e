package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextmind-ai/app-verification/internal/config"
	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/nextmind-ai/app-verification/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newChallenge(email, token, code string, now time.Time) *models.Challenge {
	return &models.Challenge{
		Email:     email,
		Token:     token,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(15 * time.Minute),
	}
}

// storeContract runs the ChallengeStore behaviour shared by every backend
func storeContract(t *testing.T, newStore func(t *testing.T) ChallengeStore) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	t.Run("replace active keeps one unconsumed per email", func(t *testing.T) {
		store := newStore(t)

		first := newChallenge("a@x.com", "token-1", "111111", now)
		require.NoError(t, store.ReplaceActive(ctx, first))
		assert.False(t, first.ID.IsZero())

		second := newChallenge("a@x.com", "token-2", "222222", now)
		require.NoError(t, store.ReplaceActive(ctx, second))

		_, err := store.FindActiveByToken(ctx, "token-1")
		assert.ErrorIs(t, err, models.ErrChallengeNotFound)

		active, err := store.FindActiveByEmail(ctx, "a@x.com")
		require.NoError(t, err)
		assert.Equal(t, second.ID, active.ID)
	})

	t.Run("finders", func(t *testing.T) {
		store := newStore(t)
		c := newChallenge("b@x.com", "token-b", "333333", now)
		require.NoError(t, store.ReplaceActive(ctx, c))

		byID, err := store.FindActiveByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "b@x.com", byID.Email)

		byCode, err := store.FindActiveByCode(ctx, "b@x.com", "333333")
		require.NoError(t, err)
		assert.Equal(t, c.ID, byCode.ID)

		_, err = store.FindActiveByCode(ctx, "b@x.com", "000000")
		assert.ErrorIs(t, err, models.ErrChallengeNotFound)
		_, err = store.FindActiveByID(ctx, primitive.NewObjectID())
		assert.ErrorIs(t, err, models.ErrChallengeNotFound)
	})

	t.Run("conditional updates compare attempt count", func(t *testing.T) {
		store := newStore(t)
		c := newChallenge("c@x.com", "token-c", "444444", now)
		require.NoError(t, store.ReplaceActive(ctx, c))

		ok, err := store.IncrementAttempts(ctx, c.ID, 0)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.IncrementAttempts(ctx, c.ID, 0)
		require.NoError(t, err)
		assert.False(t, ok, "stale expected count must lose")

		ok, err = store.MarkConsumed(ctx, c.ID, 1)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.MarkConsumed(ctx, c.ID, 2)
		require.NoError(t, err)
		assert.False(t, ok, "consumed record must not be consumed twice")

		_, err = store.FindActiveByToken(ctx, "token-c")
		assert.ErrorIs(t, err, models.ErrChallengeNotFound)

		consumed, err := store.FindByToken(ctx, "token-c")
		require.NoError(t, err)
		assert.True(t, consumed.Consumed)
		assert.Equal(t, 2, consumed.AttemptCount)
	})

	t.Run("concurrent increments with the same expectation", func(t *testing.T) {
		store := newStore(t)
		c := newChallenge("d@x.com", "token-d", "555555", now)
		require.NoError(t, store.ReplaceActive(ctx, c))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.IncrementAttempts(ctx, c.ID, 0)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("delete and delete expired", func(t *testing.T) {
		store := newStore(t)
		old := newChallenge("e@x.com", "token-e", "666666", now.Add(-time.Hour))
		live := newChallenge("f@x.com", "token-f", "777777", now)
		require.NoError(t, store.ReplaceActive(ctx, old))
		require.NoError(t, store.ReplaceActive(ctx, live))

		count, err := store.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		require.NoError(t, store.Delete(ctx, live.ID))
		_, err = store.FindByToken(ctx, "token-f")
		assert.ErrorIs(t, err, models.ErrChallengeNotFound)

		require.NoError(t, store.Delete(ctx, live.ID), "deleting a missing record is not an error")
	})
}

func TestMemoryChallengeStore(t *testing.T) {
	storeContract(t, func(t *testing.T) ChallengeStore {
		return NewMemoryChallengeStore()
	})
}

func TestMemoryChallengeStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryChallengeStore()
	ctx := context.Background()
	c := newChallenge("copy@x.com", "token-copy", "888888", time.Now())
	require.NoError(t, store.ReplaceActive(ctx, c))

	found, err := store.FindActiveByID(ctx, c.ID)
	require.NoError(t, err)
	found.AttemptCount = 99
	found.Consumed = true

	again, err := store.FindActiveByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.AttemptCount)
}

func TestMongoChallengeStore(t *testing.T) {
	db := testutil.MongoDatabase(t)
	ctx := context.Background()

	storeContract(t, func(t *testing.T) ChallengeStore {
		coll := db.Collection("email_verifications_" + primitive.NewObjectID().Hex())
		require.NoError(t, config.EnsureCollectionIndexes(ctx, coll, models.ChallengeIndexModels()))
		t.Cleanup(func() { _ = coll.Drop(context.Background()) })
		return NewMongoChallengeStore(coll)
	})
}

func TestMongoChallengeStore_ConcurrentReplaceActive(t *testing.T) {
	db := testutil.MongoDatabase(t)
	ctx := context.Background()

	coll := db.Collection("email_verifications")
	require.NoError(t, config.EnsureCollectionIndexes(ctx, coll, models.ChallengeIndexModels()))
	store := NewMongoChallengeStore(coll)

	var wg sync.WaitGroup
	for i := 0; i < replaceActiveRetries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := newChallenge("race@x.com", primitive.NewObjectID().Hex(), "123456", time.Now())
			assert.NoError(t, store.ReplaceActive(ctx, c))
		}()
	}
	wg.Wait()

	count, err := coll.CountDocuments(ctx, bson.M{"email": "race@x.com", "consumed": false})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
