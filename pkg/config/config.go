package config

// Config is the umbrella configuration object returned by Initialize()
// and threaded through cmd/docwriter's wiring.
type Config struct {
	configDir string

	Defaults    *Defaults
	Queue       *QueueConfig
	Retention   *RetentionConfig
	LLM         *LLMConfig
	ObjectStore *ObjectStoreConfig
	Slack       *SlackConfig
	ReviewFlags *ReviewFlagsConfig
	System      *SystemConfig
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}
