package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/utils"
	"go.uber.org/zap"
)

// casRetries bounds how often a verify attempt is replayed after losing a
// compare-and-swap to a concurrent attempt on the same challenge.
const casRetries = 8

// IssueRequest describes a challenge to create
type IssueRequest struct {
	Email     string
	AccountID string
	Origin    models.RequestOrigin
}

// VerificationRegistry owns the lifecycle of email verification challenges
type VerificationRegistry struct {
	store       ChallengeStore
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	logger      *logging.SafeLogger
}

// RegistryOption configures a VerificationRegistry
type RegistryOption func(*VerificationRegistry)

// WithChallengeTTL sets the challenge lifetime
func WithChallengeTTL(ttl time.Duration) RegistryOption {
	return func(r *VerificationRegistry) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// WithMaxAttempts sets the comparison budget of a challenge
func WithMaxAttempts(maxAttempts int) RegistryOption {
	return func(r *VerificationRegistry) {
		if maxAttempts > 0 {
			r.maxAttempts = maxAttempts
		}
	}
}

// WithClock replaces the time source
func WithClock(now func() time.Time) RegistryOption {
	return func(r *VerificationRegistry) {
		r.now = now
	}
}

// WithLogger sets the registry logger
func WithLogger(logger *logging.SafeLogger) RegistryOption {
	return func(r *VerificationRegistry) {
		r.logger = logger
	}
}

// NewVerificationRegistry creates a registry over store
func NewVerificationRegistry(store ChallengeStore, opts ...RegistryOption) *VerificationRegistry {
	r := &VerificationRegistry{
		store:       store,
		ttl:         models.DefaultChallengeTTL,
		maxAttempts: models.DefaultMaxAttempts,
		now:         time.Now,
		logger:      logging.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("registry")
	return r
}

// TTL returns the configured challenge lifetime
func (r *VerificationRegistry) TTL() time.Duration { return r.ttl }

// MaxAttempts returns the configured comparison budget
func (r *VerificationRegistry) MaxAttempts() int { return r.maxAttempts }

// Issue creates a fresh challenge for the email, replacing any unconsumed one
func (r *VerificationRegistry) Issue(ctx context.Context, req IssueRequest) (*models.Challenge, error) {
	ctx, span, cleanup := utils.TraceRegistryOperation(ctx, "issue")
	defer cleanup()

	email, err := utils.ValidateEmail(req.Email)
	if err != nil {
		observability.ChallengesIssued.WithLabelValues("invalid").Inc()
		return nil, err
	}

	token, err := utils.GenerateToken()
	if err != nil {
		return nil, err
	}
	code, err := utils.GenerateVerificationCode()
	if err != nil {
		return nil, err
	}

	now := r.now()
	challenge := &models.Challenge{
		Email:        email,
		Token:        token,
		Code:         code,
		AccountID:    req.AccountID,
		Consumed:     false,
		AttemptCount: 0,
		CreatedAt:    now,
		ExpiresAt:    now.Add(r.ttl),
		Origin:       req.Origin,
	}

	if err := r.store.ReplaceActive(ctx, challenge); err != nil {
		utils.RecordErrorInSpan(span, err, map[string]interface{}{"registry.outcome": "infrastructure"})
		observability.ChallengesIssued.WithLabelValues("error").Inc()
		r.logger.Error("failed to store challenge",
			zap.String("email", observability.MaskEmail(email)),
			zap.Error(err))
		return nil, err
	}

	observability.ChallengesIssued.WithLabelValues("issued").Inc()
	r.logger.Info("verification challenge issued",
		zap.String("email", observability.MaskEmail(email)),
		zap.String("challenge_id", challenge.ID.Hex()),
		zap.Time("expires_at", challenge.ExpiresAt))

	return challenge, nil
}

// LookupByToken returns the unconsumed challenge holding token
func (r *VerificationRegistry) LookupByToken(ctx context.Context, token string) (*models.Challenge, error) {
	if token == "" {
		return nil, models.ErrChallengeNotFound
	}
	return r.store.FindActiveByToken(ctx, token)
}

// LookupByCodeAndEmail returns the unconsumed challenge of email holding code
func (r *VerificationRegistry) LookupByCodeAndEmail(ctx context.Context, code, email string) (*models.Challenge, error) {
	email = utils.NormalizeEmail(email)
	if code == "" || email == "" {
		return nil, models.ErrChallengeNotFound
	}
	return r.store.FindActiveByCode(ctx, email, code)
}

// Verify runs one attempt of value against challenge. value is compared with
// the code when it has the shape of a code and with the token otherwise.
//
// Checks run in order: expiry, attempt budget, comparison. Expired and
// exhausted challenges are deleted without counting an attempt. A match
// consumes and deletes the challenge. A mismatch counts one attempt, and the
// attempt that spends the budget deletes the challenge and reports
// ErrAttemptsExhausted instead of a mismatch.
func (r *VerificationRegistry) Verify(ctx context.Context, challenge *models.Challenge, value string) (*models.VerificationSuccess, error) {
	method := "token"
	if utils.IsValidCode(value) {
		method = "code"
	}
	return r.verify(ctx, challenge, method, value)
}

// VerifyToken looks up the challenge by token and verifies it
func (r *VerificationRegistry) VerifyToken(ctx context.Context, token string) (*models.VerificationSuccess, error) {
	challenge, err := r.LookupByToken(ctx, token)
	if err != nil {
		r.recordOutcome("token", err)
		return nil, err
	}
	return r.verify(ctx, challenge, "token", token)
}

// VerifyCode verifies code against the active challenge of email. A wrong code
// spends an attempt of that challenge but is reported as not found, so a stale
// or guessed code reads the same as an unknown one. The returned error also
// matches ErrCodeMismatch and carries the remaining attempts.
func (r *VerificationRegistry) VerifyCode(ctx context.Context, email, code string) (*models.VerificationSuccess, error) {
	email = utils.NormalizeEmail(email)
	if email == "" || code == "" {
		err := &models.ValidationError{Message: "verification code and email are required"}
		r.recordOutcome("code", err)
		return nil, err
	}

	challenge, err := r.store.FindActiveByEmail(ctx, email)
	if err != nil {
		r.recordOutcome("code", err)
		return nil, err
	}

	success, err := r.verify(ctx, challenge, "code", code)
	var mismatch *models.MismatchError
	if errors.As(err, &mismatch) {
		return nil, fmt.Errorf("%w: %w", models.ErrChallengeNotFound, mismatch)
	}
	return success, err
}

func (r *VerificationRegistry) verify(ctx context.Context, challenge *models.Challenge, method, value string) (*models.VerificationSuccess, error) {
	ctx, span, cleanup := utils.TraceRegistryOperation(ctx, "verify")
	defer cleanup()
	utils.AddSpanAttribute(span, "registry.method", method)

	var success *models.VerificationSuccess
	current := challenge
	reload := false

	err := utils.RetryWithOptimisticLock(ctx, casRetries, func() error {
		if reload {
			fresh, err := r.store.FindActiveByID(ctx, challenge.ID)
			if err != nil {
				return err
			}
			current = fresh
		}
		reload = true

		var err error
		success, err = r.attempt(ctx, current, method, value)
		return err
	})

	outcome := r.recordOutcome(method, err)
	utils.AddSpanAttribute(span, "registry.outcome", string(outcome))
	if outcome == models.OutcomeInfrastructure {
		utils.RecordErrorInSpan(span, err, nil)
		r.logger.Error("verification failed",
			zap.String("challenge_id", challenge.ID.Hex()),
			zap.Error(err))
	}
	return success, err
}

// attempt applies one pass of the state machine to a snapshot of the challenge
func (r *VerificationRegistry) attempt(ctx context.Context, c *models.Challenge, method, value string) (*models.VerificationSuccess, error) {
	now := r.now()
	logger := r.logger.With(
		zap.String("challenge_id", c.ID.Hex()),
		zap.String("email", observability.MaskEmail(c.Email)),
		zap.String("method", method),
	)

	if c.IsExpired(now) {
		r.discard(ctx, c, "expired")
		logger.Info("verification challenge expired")
		return nil, models.ErrChallengeExpired
	}

	if c.AttemptCount >= r.maxAttempts {
		r.discard(ctx, c, "attempts_exhausted")
		logger.Warn("verification attempts exhausted", zap.Int("attempts", c.AttemptCount))
		return nil, models.ErrAttemptsExhausted
	}

	if matches(c, method, value) {
		ok, err := r.store.MarkConsumed(ctx, c.ID, c.AttemptCount)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, utils.OptimisticLockError{Resource: "challenge", Message: "state changed before consume"}
		}
		r.discard(ctx, c, "consumed")

		logger.Info("email verified", zap.Int("attempts", c.AttemptCount+1))
		return &models.VerificationSuccess{
			Email:       c.Email,
			AccountID:   c.AccountID,
			ChallengeID: c.ID.Hex(),
			VerifiedAt:  now,
		}, nil
	}

	ok, err := r.store.IncrementAttempts(ctx, c.ID, c.AttemptCount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.OptimisticLockError{Resource: "challenge", Message: "state changed before increment"}
	}

	attempts := c.AttemptCount + 1
	if attempts >= r.maxAttempts {
		r.discard(ctx, c, "attempts_exhausted")
		logger.Warn("verification attempts exhausted", zap.Int("attempts", attempts))
		return nil, models.ErrAttemptsExhausted
	}

	logger.Info("verification value mismatch", zap.Int("attempts", attempts))
	return nil, &models.MismatchError{AttemptsRemaining: r.maxAttempts - attempts}
}

// discard deletes a challenge that reached a terminal state. A failed delete
// is logged only: the record is already unusable and the reaper removes it.
func (r *VerificationRegistry) discard(ctx context.Context, c *models.Challenge, reason string) {
	if err := r.store.Delete(ctx, c.ID); err != nil {
		r.logger.Warn("failed to delete challenge",
			zap.String("challenge_id", c.ID.Hex()),
			zap.String("reason", reason),
			zap.Error(err))
	}
}

func matches(c *models.Challenge, method, value string) bool {
	expected := c.Token
	if method == "code" {
		expected = c.Code
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(value)) == 1
}

func (r *VerificationRegistry) recordOutcome(method string, err error) models.Outcome {
	outcome := models.OutcomeOf(err)
	observability.VerificationOutcomes.WithLabelValues(method, string(outcome)).Inc()
	return outcome
}

// StatusByToken returns a read-only view of the challenge holding token,
// consumed or expired ones included while they are still stored
func (r *VerificationRegistry) StatusByToken(ctx context.Context, token string) (*models.ChallengeStatus, error) {
	if token == "" {
		return nil, models.ErrChallengeNotFound
	}

	challenge, err := r.store.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	return &models.ChallengeStatus{
		Email:        challenge.Email,
		Verified:     challenge.Consumed,
		Expired:      challenge.IsExpired(r.now()),
		AttemptCount: challenge.AttemptCount,
		MaxAttempts:  r.maxAttempts,
		ExpiresAt:    challenge.ExpiresAt,
		CreatedAt:    challenge.CreatedAt,
	}, nil
}

// ReapExpired deletes every challenge past its deadline and returns the count
func (r *VerificationRegistry) ReapExpired(ctx context.Context) (int64, error) {
	ctx, _, cleanup := utils.TraceRegistryOperation(ctx, "reap_expired")
	defer cleanup()

	count, err := r.store.DeleteExpired(ctx, r.now())
	if err != nil {
		r.logger.Error("failed to reap expired challenges", zap.Error(err))
		return 0, err
	}

	observability.ChallengesReaped.Add(float64(count))
	if count > 0 {
		r.logger.Info("reaped expired challenges", zap.Int64("count", count))
	}
	return count, nil
}
