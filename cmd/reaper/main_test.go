package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_ReturnsExitCode(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "invalid config",
			env:  map[string]string{"STORAGE_BACKEND": "mongo", "VERIFICATION_TTL": "soon"},
		},
		{
			name: "memory storage",
			env:  map[string]string{"ENVIRONMENT": "development", "STORAGE_BACKEND": "memory", "EMAIL_SERVICE": "log"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			// Setup failures come back as a code instead of exiting the process
			assert.Equal(t, 1, run(true))
		})
	}
}
