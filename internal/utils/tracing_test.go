package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceOperation(t *testing.T) {
	attributes := map[string]interface{}{
		"string_attr":   "value",
		"int_attr":      42,
		"int64_attr":    int64(123),
		"bool_attr":     true,
		"float64_attr":  3.14,
		"duration_attr": time.Second,
		"unknown_attr":  struct{}{},
	}

	spanCtx, span, cleanup := TraceOperation(context.Background(), "test_operation", attributes)
	require.NotNil(t, spanCtx)
	require.NotNil(t, span)
	require.NotNil(t, cleanup)

	assert.NotPanics(t, cleanup)
}

func TestToAttributes(t *testing.T) {
	attrs := toAttributes(map[string]interface{}{
		"a": "x",
		"b": 1,
		"c": struct{}{},
	})
	require.Len(t, attrs, 3)

	byKey := make(map[string]string)
	for _, attr := range attrs {
		byKey[string(attr.Key)] = attr.Value.Emit()
	}
	assert.Equal(t, "x", byKey["a"])
	assert.Equal(t, "1", byKey["b"])
	assert.Equal(t, "unknown_type", byKey["c"])
}

func TestTraceHelpers(t *testing.T) {
	ctx := context.Background()

	_, dbSpan, dbCleanup := TraceDatabaseOperation(ctx, "find_one", "email_verifications")
	require.NotNil(t, dbSpan)
	dbCleanup()

	_, regSpan, regCleanup := TraceRegistryOperation(ctx, "verify")
	require.NotNil(t, regSpan)
	RecordErrorInSpan(regSpan, errors.New("boom"), map[string]interface{}{"registry.outcome": "infrastructure"})
	AddSpanAttribute(regSpan, "registry.attempts", 2)
	regCleanup()

	_, extSpan := TraceExternalService(ctx, "smtp", "send")
	require.NotNil(t, extSpan)
	extSpan.End()
}
