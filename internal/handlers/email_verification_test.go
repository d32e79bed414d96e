package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sendVerification(t *testing.T, env *testEnv, email string) models.SendVerificationResponse {
	t.Helper()
	w := env.do(http.MethodPost, "/api/email-verification/send", gin.H{"email": email})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.SendVerificationResponse
	require.NoError(t, decodeJSON(w, &resp))
	require.NotNil(t, resp.Debug)
	return resp
}

func errorMessage(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, decodeJSON(w, &resp))
	return resp.Error
}

func TestSendVerification(t *testing.T) {
	tests := []struct {
		name         string
		body         interface{}
		expectedCode int
		expectedMsg  string
	}{
		{name: "missing body", body: nil, expectedCode: http.StatusBadRequest, expectedMsg: msgInvalidEmail},
		{name: "missing email", body: gin.H{}, expectedCode: http.StatusBadRequest, expectedMsg: msgInvalidEmail},
		{name: "malformed email", body: gin.H{"email": "not-an-email"}, expectedCode: http.StatusBadRequest, expectedMsg: msgInvalidEmail},
		{name: "valid email", body: gin.H{"email": "  Person@Example.COM "}, expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(false)
			w := env.do(http.MethodPost, "/api/email-verification/send", tt.body)
			assert.Equal(t, tt.expectedCode, w.Code)

			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, errorMessage(t, w))
				assert.Equal(t, 0, env.store.Len())
				return
			}

			var resp models.SendVerificationResponse
			require.NoError(t, decodeJSON(w, &resp))
			assert.Equal(t, "person@example.com", resp.Email)
			assert.Nil(t, resp.Debug)
			assert.Equal(t, 1, env.store.Len())
			assert.Equal(t, "person@example.com", env.dispatcher.lastVerification().Email)
		})
	}
}

func TestSendVerification_DebugFields(t *testing.T) {
	env := setupTestRouter(true)
	resp := sendVerification(t, env, "person@example.com")

	msg := env.dispatcher.lastVerification()
	assert.Equal(t, msg.Code, resp.Debug.Code)
	assert.Equal(t, msg.Token, resp.Debug.Token)
	assert.Len(t, resp.Debug.Code, 6)
	assert.WithinDuration(t, env.now.Add(env.registry.TTL()), resp.ExpiresAt, time.Second)
}

func TestSendVerification_AlreadyVerified(t *testing.T) {
	env := setupTestRouter(true)
	env.accounts.Put(models.Account{Name: "Ana", Email: "ana@example.com", IsEmailVerified: true})

	w := env.do(http.MethodPost, "/api/email-verification/send", gin.H{"email": "ana@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgAlreadyVerified, errorMessage(t, w))
	assert.Equal(t, 0, env.store.Len())
}

func TestSendVerification_UsesExistingAccount(t *testing.T) {
	env := setupTestRouter(true)
	account := env.accounts.Put(models.Account{Name: "Ana", Email: "ana@example.com"})

	sendVerification(t, env, "ana@example.com")
	assert.Equal(t, "Ana", env.dispatcher.lastVerification().DisplayName)

	challenge, err := env.store.FindActiveByEmail(t.Context(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID.Hex(), challenge.AccountID)
}

func TestSendVerification_DispatchFailureStillSucceeds(t *testing.T) {
	env := setupTestRouter(false)
	env.dispatcher.err = errors.New("queue full")

	w := env.do(http.MethodPost, "/api/email-verification/send", gin.H{"email": "person@example.com"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.store.Len())
}

func TestResendVerification(t *testing.T) {
	env := setupTestRouter(true)
	first := sendVerification(t, env, "person@example.com")

	w := env.do(http.MethodPost, "/api/email-verification/resend", gin.H{"email": "person@example.com"})
	require.Equal(t, http.StatusOK, w.Code)

	var second models.SendVerificationResponse
	require.NoError(t, decodeJSON(w, &second))
	require.NotNil(t, second.Debug)
	assert.NotEqual(t, first.Debug.Token, second.Debug.Token)
	assert.Equal(t, 1, env.store.Len())

	// the replaced token no longer verifies
	w = env.do(http.MethodPost, "/api/email-verification/verify", gin.H{"token": first.Debug.Token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgInvalidChallenge, errorMessage(t, w))

	w = env.do(http.MethodPost, "/api/email-verification/verify", gin.H{"token": second.Debug.Token})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResendVerification_MissingEmail(t *testing.T) {
	env := setupTestRouter(false)
	w := env.do(http.MethodPost, "/api/email-verification/resend", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgEmailRequired, errorMessage(t, w))
}

func TestVerifyEmail_Token(t *testing.T) {
	env := setupTestRouter(true)
	account := env.accounts.Put(models.Account{Name: "Ana", Email: "ana@example.com"})
	issued := sendVerification(t, env, "ana@example.com")

	w := env.do(http.MethodPost, "/api/email-verification/verify", gin.H{"token": issued.Debug.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.VerifyEmailResponse
	require.NoError(t, decodeJSON(w, &resp))
	assert.True(t, resp.Verified)
	assert.Equal(t, "ana@example.com", resp.Email)
	require.NotNil(t, resp.User)
	assert.Equal(t, account.ID.Hex(), resp.User.ID)
	assert.True(t, resp.User.IsEmailVerified)
	assert.Equal(t, []string{"ana@example.com"}, env.dispatcher.welcome)

	stored, err := env.accounts.FindByID(t.Context(), account.ID.Hex())
	require.NoError(t, err)
	assert.True(t, stored.IsEmailVerified)

	// a consumed token cannot be replayed
	w = env.do(http.MethodPost, "/api/email-verification/verify", gin.H{"token": issued.Debug.Token})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgInvalidChallenge, errorMessage(t, w))
}

func TestVerifyEmail_CodeWithoutAccount(t *testing.T) {
	env := setupTestRouter(true)
	issued := sendVerification(t, env, "person@example.com")

	w := env.do(http.MethodPost, "/api/email-verification/verify",
		gin.H{"code": issued.Debug.Code, "email": "PERSON@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.VerifyEmailResponse
	require.NoError(t, decodeJSON(w, &resp))
	assert.True(t, resp.Verified)
	assert.Nil(t, resp.User)
	assert.Empty(t, env.dispatcher.welcome)
}

func TestVerifyEmail_Errors(t *testing.T) {
	tests := []struct {
		name         string
		prepare      func(env *testEnv, issued models.SendVerificationResponse) interface{}
		expectedCode int
		expectedMsg  string
	}{
		{
			name: "neither token nor code",
			prepare: func(*testEnv, models.SendVerificationResponse) interface{} {
				return gin.H{"email": "person@example.com"}
			},
			expectedCode: http.StatusBadRequest,
			expectedMsg:  msgTokenOrCode,
		},
		{
			name: "code without email",
			prepare: func(_ *testEnv, issued models.SendVerificationResponse) interface{} {
				return gin.H{"code": issued.Debug.Code}
			},
			expectedCode: http.StatusBadRequest,
			expectedMsg:  "verification code and email are required",
		},
		{
			name: "unknown token",
			prepare: func(*testEnv, models.SendVerificationResponse) interface{} {
				return gin.H{"token": "unknown"}
			},
			expectedCode: http.StatusBadRequest,
			expectedMsg:  msgInvalidChallenge,
		},
		{
			name: "wrong code",
			prepare: func(_ *testEnv, issued models.SendVerificationResponse) interface{} {
				return gin.H{"code": otherCode(issued.Debug.Code), "email": "person@example.com"}
			},
			expectedCode: http.StatusBadRequest,
			expectedMsg:  msgInvalidChallenge,
		},
		{
			name: "expired token",
			prepare: func(env *testEnv, issued models.SendVerificationResponse) interface{} {
				env.advance(env.registry.TTL() + time.Second)
				return gin.H{"token": issued.Debug.Token}
			},
			expectedCode: http.StatusBadRequest,
			expectedMsg:  msgChallengeExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestRouter(true)
			issued := sendVerification(t, env, "person@example.com")

			w := env.do(http.MethodPost, "/api/email-verification/verify", tt.prepare(env, issued))
			assert.Equal(t, tt.expectedCode, w.Code)
			assert.Equal(t, tt.expectedMsg, errorMessage(t, w))
		})
	}
}

func TestVerifyEmail_AttemptsExhausted(t *testing.T) {
	env := setupTestRouter(true)
	issued := sendVerification(t, env, "person@example.com")
	wrong := gin.H{"code": otherCode(issued.Debug.Code), "email": "person@example.com"}

	for i := 0; i < env.registry.MaxAttempts()-1; i++ {
		w := env.do(http.MethodPost, "/api/email-verification/verify", wrong)
		require.Equal(t, http.StatusBadRequest, w.Code, "attempt %d", i+1)
	}

	w := env.do(http.MethodPost, "/api/email-verification/verify", wrong)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, msgAttemptsExhausted, errorMessage(t, w))
	assert.Equal(t, 0, env.store.Len())

	// the challenge is gone, so even the right code fails now
	w = env.do(http.MethodPost, "/api/email-verification/verify",
		gin.H{"code": issued.Debug.Code, "email": "person@example.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, msgInvalidChallenge, errorMessage(t, w))
}

func TestGetVerificationStatus(t *testing.T) {
	env := setupTestRouter(true)
	issued := sendVerification(t, env, "person@example.com")

	w := env.do(http.MethodGet, "/api/email-verification/status/"+issued.Debug.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status models.ChallengeStatus
	require.NoError(t, decodeJSON(w, &status))
	assert.Equal(t, "person@example.com", status.Email)
	assert.False(t, status.Verified)
	assert.Equal(t, 0, status.AttemptCount)
	assert.Equal(t, env.registry.MaxAttempts(), status.MaxAttempts)

	w = env.do(http.MethodGet, "/api/email-verification/status/unknown-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, msgRecordNotFound, errorMessage(t, w))
}

func TestCleanupExpired(t *testing.T) {
	env := setupTestRouter(true)
	admin := env.accounts.Put(models.Account{Name: "Admin", Email: "admin@example.com", Plan: models.PlanEnterprise})
	member := env.accounts.Put(models.Account{Name: "Member", Email: "member@example.com", Plan: models.PlanFree})

	sendVerification(t, env, "first@example.com")
	sendVerification(t, env, "second@example.com")
	env.advance(env.registry.TTL() + time.Minute)
	sendVerification(t, env, "fresh@example.com")

	tests := []struct {
		name         string
		headers      []string
		expectedCode int
	}{
		{name: "no token", expectedCode: http.StatusUnauthorized},
		{name: "bad signature", headers: bearer(createTestJWT(admin.ID.Hex(), "other-secret", time.Hour)), expectedCode: http.StatusForbidden},
		{name: "not an admin", headers: bearer(createTestJWT(member.ID.Hex(), testJWTSecret, time.Hour)), expectedCode: http.StatusForbidden},
		{name: "admin", headers: bearer(createTestJWT(admin.ID.Hex(), testJWTSecret, time.Hour)), expectedCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodDelete, "/api/email-verification/cleanup", nil, tt.headers...)
			assert.Equal(t, tt.expectedCode, w.Code, w.Body.String())
			if tt.expectedCode != http.StatusOK {
				return
			}

			var resp models.CleanupResponse
			require.NoError(t, decodeJSON(w, &resp))
			assert.Equal(t, "Cleanup completed", resp.Message)
			assert.Equal(t, int64(2), resp.DeletedCount)
			assert.Equal(t, 1, env.store.Len())
		})
	}
}

func TestVerificationErrorStatus(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedMsg    string
	}{
		{"not found", models.ErrChallengeNotFound, http.StatusBadRequest, msgInvalidChallenge},
		{"mismatch", &models.MismatchError{AttemptsRemaining: 2}, http.StatusBadRequest, msgInvalidChallenge},
		{"expired", models.ErrChallengeExpired, http.StatusBadRequest, msgChallengeExpired},
		{"exhausted", models.ErrAttemptsExhausted, http.StatusTooManyRequests, msgAttemptsExhausted},
		{"validation", models.NewValidationError("email", "email is required"), http.StatusBadRequest, "email is required"},
		{"infrastructure", errors.New("connection reset"), http.StatusInternalServerError, msgVerifyFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := verificationErrorStatus(tt.err)
			assert.Equal(t, tt.expectedStatus, status)
			assert.Equal(t, tt.expectedMsg, msg)
		})
	}
}

func otherCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestSendVerification_ForeignUserIDIsNotLinked(t *testing.T) {
	env := setupTestRouter(true)
	victim := env.accounts.Put(models.Account{Name: "Victim", Email: "victim@example.com"})

	w := env.do(http.MethodPost, "/api/email-verification/send",
		gin.H{"email": "attacker@example.com", "user_id": victim.ID.Hex()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var issued models.SendVerificationResponse
	require.NoError(t, decodeJSON(w, &issued))
	require.NotNil(t, issued.Debug)
	assert.Empty(t, env.dispatcher.lastVerification().DisplayName)

	challenge, err := env.store.FindActiveByEmail(t.Context(), "attacker@example.com")
	require.NoError(t, err)
	assert.Empty(t, challenge.AccountID)

	w = env.do(http.MethodPost, "/api/email-verification/verify",
		gin.H{"code": issued.Debug.Code, "email": "attacker@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.VerifyEmailResponse
	require.NoError(t, decodeJSON(w, &resp))
	assert.Nil(t, resp.User)

	stored, err := env.accounts.FindByID(t.Context(), victim.ID.Hex())
	require.NoError(t, err)
	assert.False(t, stored.IsEmailVerified)
	assert.Empty(t, env.dispatcher.welcome)
}

func TestSendVerification_OwnUserID(t *testing.T) {
	env := setupTestRouter(true)
	account := env.accounts.Put(models.Account{Name: "Ana", Email: "ana@example.com"})

	w := env.do(http.MethodPost, "/api/email-verification/send",
		gin.H{"email": "ANA@example.com", "user_id": account.ID.Hex()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	challenge, err := env.store.FindActiveByEmail(t.Context(), "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID.Hex(), challenge.AccountID)
	assert.Equal(t, "Ana", env.dispatcher.lastVerification().DisplayName)
}

func TestVerifyEmail_AccountEmailChangedAfterIssue(t *testing.T) {
	env := setupTestRouter(true)
	account := env.accounts.Put(models.Account{Name: "Ana", Email: "ana@example.com"})
	issued := sendVerification(t, env, "ana@example.com")

	account.Email = "ana.new@example.com"
	env.accounts.Put(*account)

	w := env.do(http.MethodPost, "/api/email-verification/verify", gin.H{"token": issued.Debug.Token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp models.VerifyEmailResponse
	require.NoError(t, decodeJSON(w, &resp))
	assert.Nil(t, resp.User)

	stored, err := env.accounts.FindByID(t.Context(), account.ID.Hex())
	require.NoError(t, err)
	assert.False(t, stored.IsEmailVerified)
}
