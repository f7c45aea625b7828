package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultQueueConfig(t *testing.T) {
	cfg := DefaultQueueConfig()

	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 1*time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.LockDuration)
	assert.Equal(t, 10*time.Second, cfg.AbandonBackoff)
	assert.Equal(t, 10, cfg.MaxDeliveryCount)
	assert.Equal(t, 1, cfg.WriteBatchSize)
}

func TestDefaultRetentionConfig(t *testing.T) {
	cfg := DefaultRetentionConfig()

	assert.Equal(t, 90, cfg.DocumentRetentionDays)
	assert.Equal(t, 30*24*time.Hour, cfg.TimelineEventTTL)
	assert.Equal(t, 12*time.Hour, cfg.CleanupInterval)
}
