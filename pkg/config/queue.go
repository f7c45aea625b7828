package config

import "time"

// QueueConfig controls how stage workers poll, claim, and retry messages
// on the Queue Broker.
type QueueConfig struct {
	// WorkerCount is the number of worker goroutines per stage, per pod.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the base interval between claim attempts when a
	// queue is empty.
	PollInterval time.Duration `yaml:"poll_interval"`

	// LockDuration is how long a claimed message stays invisible to other
	// workers while being processed — the orphan-recovery window.
	LockDuration time.Duration `yaml:"lock_duration"`

	// AbandonBackoff is the visibility delay applied when a handler fails
	// with a transient error and the message is abandoned for retry.
	AbandonBackoff time.Duration `yaml:"abandon_backoff"`

	// MaxDeliveryCount is the default dead-letter threshold.
	MaxDeliveryCount int `yaml:"max_delivery_count"`

	// WriteBatchSize caps how many ready sections one write message may
	// carry. Corresponds to DOCWRITER_WRITE_BATCH_SIZE.
	WriteBatchSize int `yaml:"write_batch_size"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:      2,
		PollInterval:     1 * time.Second,
		LockDuration:     5 * time.Minute,
		AbandonBackoff:   10 * time.Second,
		MaxDeliveryCount: 10,
		WriteBatchSize:   1,
	}
}
