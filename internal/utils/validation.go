package utils

import (
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/nextmind-ai/app-verification/internal/models"
)

const maxEmailLength = 254

var (
	validate     *validator.Validate
	validateOnce sync.Once

	codeRegex  = regexp.MustCompile(`^\d{6}$`)
	tokenRegex = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// NormalizeEmail trims and lowercases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail normalizes email and checks its syntax
func ValidateEmail(email string) (string, error) {
	normalized := NormalizeEmail(email)
	if normalized == "" {
		return "", models.NewValidationError("email", "email is required")
	}
	if len(normalized) > maxEmailLength {
		return "", models.NewValidationError("email", "email is too long")
	}
	if err := getValidator().Var(normalized, "email"); err != nil {
		return "", models.NewValidationError("email", "invalid email format")
	}
	return normalized, nil
}

// IsValidCode reports whether code is a 6-digit numeric string
func IsValidCode(code string) bool {
	return codeRegex.MatchString(code)
}

// IsWellFormedToken reports whether token has the shape of an issued token
func IsWellFormedToken(token string) bool {
	return tokenRegex.MatchString(token)
}
