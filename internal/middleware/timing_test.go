package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestRequestTiming(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var elapsed time.Duration
	router := gin.New()
	router.Use(RequestTiming())
	router.GET("/", func(c *gin.Context) {
		time.Sleep(5 * time.Millisecond)
		elapsed = ElapsedSince(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.GreaterOrEqual(t, elapsed, 5*time.Millisecond)
}

func TestElapsedSince_WithoutTiming(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, time.Duration(0), ElapsedSince(c))

	c.Set(RequestStartKey, "not a time")
	assert.Equal(t, time.Duration(0), ElapsedSince(c))
}

func TestRequestTiming_RecordsSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)

	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	router := gin.New()
	router.Use(RequestTiming())
	router.GET("/items/:id", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/items/42", nil))

	ended := recorder.Ended()
	require.Len(t, ended, 1)
	span := ended[0]
	assert.Equal(t, "http.request", span.Name())
	assert.Contains(t, span.Attributes(), attribute.String("http.route", "/items/:id"))
	assert.Contains(t, span.Attributes(), attribute.Int("http.status_code", http.StatusInternalServerError))
	assert.Equal(t, "server error", span.Status().Description)
}
