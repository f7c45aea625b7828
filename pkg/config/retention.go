package config

import "time"

// RetentionConfig controls data retention and the cleanup background loop.
type RetentionConfig struct {
	// DocumentRetentionDays is how many days to keep a completed job's
	// document-index row before it is pruned.
	DocumentRetentionDays int `yaml:"document_retention_days"`

	// TimelineEventTTL is the maximum age of timeline events before deletion.
	TimelineEventTTL time.Duration `yaml:"timeline_event_ttl"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		DocumentRetentionDays: 90,
		TimelineEventTTL:      30 * 24 * time.Hour,
		CleanupInterval:       12 * time.Hour,
	}
}
