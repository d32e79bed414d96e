package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nextmind-ai/app-verification/internal/logging"
	"github.com/nextmind-ai/app-verification/internal/middleware"
	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/nextmind-ai/app-verification/internal/services"
)

const testJWTSecret = "test-secret"

// recordingDispatcher captures queued mail instead of sending it
type recordingDispatcher struct {
	mu           sync.Mutex
	verification []services.VerificationMessage
	welcome      []string
	err          error
}

func (d *recordingDispatcher) EnqueueVerification(msg services.VerificationMessage, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.verification = append(d.verification, msg)
	return nil
}

func (d *recordingDispatcher) EnqueueWelcome(email, _ string, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.welcome = append(d.welcome, email)
	return nil
}

func (d *recordingDispatcher) lastVerification() services.VerificationMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.verification) == 0 {
		return services.VerificationMessage{}
	}
	return d.verification[len(d.verification)-1]
}

// testEnv bundles a router with the collaborators behind it
type testEnv struct {
	router     *gin.Engine
	store      *services.MemoryChallengeStore
	accounts   *services.MemoryAccountDirectory
	dispatcher *recordingDispatcher
	registry   *services.VerificationRegistry
	now        time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// setupTestRouter wires the verification routes over in-memory collaborators
func setupTestRouter(exposeDebug bool) *testEnv {
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:      services.NewMemoryChallengeStore(),
		accounts:   services.NewMemoryAccountDirectory(),
		dispatcher: &recordingDispatcher{},
		now:        time.Now(),
	}
	env.registry = services.NewVerificationRegistry(env.store,
		services.WithClock(func() time.Time { return env.now }))

	h := NewEmailVerificationHandlers(env.registry, env.accounts, env.dispatcher, logging.Logger, exposeDebug)

	router := gin.New()
	router.Use(middleware.RequestID())
	group := router.Group("/api/email-verification")
	group.POST("/send", h.SendVerification)
	group.POST("/resend", h.ResendVerification)
	group.POST("/verify", h.VerifyEmail)
	group.GET("/status/:token", h.GetVerificationStatus)
	group.DELETE("/cleanup",
		middleware.AuthMiddleware(testJWTSecret),
		middleware.RequireAdmin(env.accounts, models.PlanEnterprise),
		h.CleanupExpired)

	env.router = router
	return env
}

func (e *testEnv) do(method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// createTestJWT signs an HS256 token for userID
func createTestJWT(userID, secret string, ttl time.Duration) string {
	claims := models.JWTClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	return token
}

func decodeJSON(w *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

