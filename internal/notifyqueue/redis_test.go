package notifyqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codesprinters/twillmanager/internal/models"
)

func TestApplyJobDefaultsFillsIDAndMaxAttempts(t *testing.T) {
	job := &models.NotificationJob{}
	applyJobDefaults(job, 3)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 3, job.MaxAttempts)
}

func TestApplyJobDefaultsLeavesExplicitValues(t *testing.T) {
	job := &models.NotificationJob{ID: "fixed-id", MaxAttempts: 7}
	applyJobDefaults(job, 3)

	assert.Equal(t, "fixed-id", job.ID)
	assert.Equal(t, 7, job.MaxAttempts)
}

func TestBackoffDelayScalesWithAttempts(t *testing.T) {
	base := 5 * time.Second
	assert.Equal(t, 5*time.Second, backoffDelay(1, base))
	assert.Equal(t, 10*time.Second, backoffDelay(2, base))
}

func TestBackoffDelayCapsAtCeiling(t *testing.T) {
	assert.Equal(t, maxRetryDelay, backoffDelay(1000, time.Minute))
}
