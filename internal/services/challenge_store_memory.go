package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nextmind-ai/app-verification/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryChallengeStore keeps challenges in process. A single mutex makes every
// operation atomic.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[primitive.ObjectID]*models.Challenge
}

// NewMemoryChallengeStore creates an empty in-memory store
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[primitive.ObjectID]*models.Challenge),
	}
}

func (s *MemoryChallengeStore) ReplaceActive(_ context.Context, challenge *models.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.challenges {
		if existing.Token == challenge.Token && existing.Email != challenge.Email {
			return fmt.Errorf("failed to insert challenge: duplicate token")
		}
		if existing.Email == challenge.Email && !existing.Consumed {
			delete(s.challenges, id)
		}
	}

	if challenge.ID.IsZero() {
		challenge.ID = primitive.NewObjectID()
	}
	stored := *challenge
	s.challenges[stored.ID] = &stored
	return nil
}

func (s *MemoryChallengeStore) find(match func(*models.Challenge) bool) (*models.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, challenge := range s.challenges {
		if match(challenge) {
			found := *challenge
			return &found, nil
		}
	}
	return nil, models.ErrChallengeNotFound
}

func (s *MemoryChallengeStore) FindActiveByID(_ context.Context, id primitive.ObjectID) (*models.Challenge, error) {
	return s.find(func(c *models.Challenge) bool { return c.ID == id && !c.Consumed })
}

func (s *MemoryChallengeStore) FindActiveByToken(_ context.Context, token string) (*models.Challenge, error) {
	return s.find(func(c *models.Challenge) bool { return c.Token == token && !c.Consumed })
}

func (s *MemoryChallengeStore) FindActiveByEmail(_ context.Context, email string) (*models.Challenge, error) {
	return s.find(func(c *models.Challenge) bool { return c.Email == email && !c.Consumed })
}

func (s *MemoryChallengeStore) FindActiveByCode(_ context.Context, email, code string) (*models.Challenge, error) {
	return s.find(func(c *models.Challenge) bool { return c.Email == email && c.Code == code && !c.Consumed })
}

func (s *MemoryChallengeStore) FindByToken(_ context.Context, token string) (*models.Challenge, error) {
	return s.find(func(c *models.Challenge) bool { return c.Token == token })
}

func (s *MemoryChallengeStore) update(id primitive.ObjectID, expectedAttempts int, apply func(*models.Challenge)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.challenges[id]
	if !ok || challenge.Consumed || challenge.AttemptCount != expectedAttempts {
		return false
	}
	apply(challenge)
	return true
}

func (s *MemoryChallengeStore) IncrementAttempts(_ context.Context, id primitive.ObjectID, expectedAttempts int) (bool, error) {
	return s.update(id, expectedAttempts, func(c *models.Challenge) {
		c.AttemptCount++
	}), nil
}

func (s *MemoryChallengeStore) MarkConsumed(_ context.Context, id primitive.ObjectID, expectedAttempts int) (bool, error) {
	return s.update(id, expectedAttempts, func(c *models.Challenge) {
		c.AttemptCount++
		c.Consumed = true
	}), nil
}

func (s *MemoryChallengeStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, id)
	return nil
}

func (s *MemoryChallengeStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for id, challenge := range s.challenges {
		if challenge.ExpiresAt.Before(now) {
			delete(s.challenges, id)
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored challenges, consumed ones included
func (s *MemoryChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
