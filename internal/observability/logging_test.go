package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	logger := Logger()
	require.NotNil(t, logger)

	// Should be safe to use
	logger.Info("test message")
}

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		expected string
	}{
		{name: "regular address", email: "user@example.com", expected: "u***@example.com"},
		{name: "single character local part", email: "a@x.com", expected: "a***@x.com"},
		{name: "plus addressing", email: "ada+news@nextmind-ai.com", expected: "a***@nextmind-ai.com"},
		{name: "missing at sign", email: "not-an-email", expected: "***"},
		{name: "empty local part", email: "@example.com", expected: "***"},
		{name: "empty", email: "", expected: "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MaskEmail(tt.email))
		})
	}
}

func TestMaskToken(t *testing.T) {
	token := "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	assert.Equal(t, "9f86d081...", MaskToken(token))
	assert.Equal(t, "********", MaskToken("short"))
}
