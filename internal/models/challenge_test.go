package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChallenge_IsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	challenge := &Challenge{ExpiresAt: now}

	assert.False(t, challenge.IsExpired(now.Add(-time.Second)))
	assert.False(t, challenge.IsExpired(now), "deadline itself is still valid")
	assert.True(t, challenge.IsExpired(now.Add(time.Nanosecond)))
}

func TestChallenge_AttemptsRemaining(t *testing.T) {
	tests := []struct {
		attempts int
		want     int
	}{
		{attempts: 0, want: 5},
		{attempts: 4, want: 1},
		{attempts: 5, want: 0},
		{attempts: 7, want: 0},
	}

	for _, tt := range tests {
		challenge := &Challenge{AttemptCount: tt.attempts}
		assert.Equal(t, tt.want, challenge.AttemptsRemaining(DefaultMaxAttempts))
	}
}

func TestChallenge_HasAccount(t *testing.T) {
	assert.False(t, (&Challenge{}).HasAccount())
	assert.True(t, (&Challenge{AccountID: "65f1c2a7e4b0a1b2c3d4e5f6"}).HasAccount())
}

func TestChallengeIndexModels(t *testing.T) {
	indexes := ChallengeIndexModels()

	byName := make(map[string]int)
	for i, model := range indexes {
		byName[*model.Options.Name] = i
	}

	assert.Contains(t, byName, "token_1")
	assert.Contains(t, byName, "email_1_consumed_1")
	assert.Contains(t, byName, "email_active_unique")
	assert.Contains(t, byName, "expires_at_ttl")

	active := indexes[byName["email_active_unique"]].Options
	assert.True(t, *active.Unique)
	assert.NotNil(t, active.PartialFilterExpression)

	ttl := indexes[byName["expires_at_ttl"]].Options
	assert.Equal(t, int32(0), *ttl.ExpireAfterSeconds)
}

func TestAccount_Summary(t *testing.T) {
	account := &Account{Name: "Ada", Email: "ada@example.com", IsEmailVerified: true}
	summary := account.Summary()

	assert.Equal(t, "Ada", summary.Name)
	assert.Equal(t, "ada@example.com", summary.Email)
	assert.True(t, summary.IsEmailVerified)
	assert.Equal(t, account.ID.Hex(), summary.ID)
}
