package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/nextmind-ai/app-verification/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "user@example.com", NormalizeEmail("  User@Example.COM \n"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "valid", input: "user@example.com", want: "user@example.com"},
		{name: "normalized", input: " Ada.Lovelace@NextMind-AI.com ", want: "ada.lovelace@nextmind-ai.com"},
		{name: "plus addressing", input: "a+b@x.com", want: "a+b@x.com"},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
		{name: "missing domain", input: "user@", wantErr: true},
		{name: "missing at", input: "user.example.com", wantErr: true},
		{name: "spaces inside", input: "us er@example.com", wantErr: true},
		{name: "too long", input: strings.Repeat("a", 250) + "@x.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateEmail(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, models.ErrValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsValidCode(t *testing.T) {
	assert.True(t, IsValidCode("123456"))
	assert.False(t, IsValidCode("12345"))
	assert.False(t, IsValidCode("1234567"))
	assert.False(t, IsValidCode("12a456"))
	assert.False(t, IsValidCode(""))
}

func TestIsWellFormedToken(t *testing.T) {
	assert.True(t, IsWellFormedToken(strings.Repeat("ab", 32)))
	assert.False(t, IsWellFormedToken(strings.Repeat("AB", 32)))
	assert.False(t, IsWellFormedToken("abc"))
}
