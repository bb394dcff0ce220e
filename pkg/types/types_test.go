package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskServiceHealthStatus(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		want     HealthStatus
	}{
		{"zero failures", 0, HealthStatusOK},
		{"one failure", 1, HealthStatusOK},
		{"at threshold", 3, HealthStatusOK},
		{"past threshold", 4, HealthStatusDown},
		{"far past threshold", 42, HealthStatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &TaskService{ConsecutiveFailures: tt.failures}
			assert.Equal(t, tt.want, svc.HealthStatus())
		})
	}
}

func TestClampProgress(t *testing.T) {
	assert.Equal(t, 0, ClampProgress(-5))
	assert.Equal(t, 0, ClampProgress(0))
	assert.Equal(t, 50, ClampProgress(50))
	assert.Equal(t, 100, ClampProgress(100))
	assert.Equal(t, 100, ClampProgress(250))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("SD_000 is not a valid study kf_id", "at least 1 study must be specified")
	assert.Contains(t, err.Error(), "SD_000 is not a valid study kf_id")
	assert.Contains(t, err.Error(), "at least 1")
}
