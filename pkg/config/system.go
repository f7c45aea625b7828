package config

import "time"

// LLMConfig resolves which provider/model backs each pipeline role and
// how the Anthropic-backed gateway retries/breaks.
type LLMConfig struct {
	APIKeyEnv string `yaml:"api_key_env"` // Env var holding the Anthropic API key

	// PlannerModel, WriterModel, ReviewerModel, VerifierModel,
	// RewriterModel select a model per pkg/llm.AgentRole. Empty falls
	// back to DefaultModel.
	DefaultModel  string `yaml:"default_model"`
	PlannerModel  string `yaml:"planner_model,omitempty"`
	WriterModel   string `yaml:"writer_model,omitempty"`
	ReviewerModel string `yaml:"reviewer_model,omitempty"`
	VerifierModel string `yaml:"verifier_model,omitempty"`
	RewriterModel string `yaml:"rewriter_model,omitempty"`

	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ModelFor returns the configured model for a role, falling back to
// DefaultModel when the role has no override.
func (c *LLMConfig) ModelFor(role string) string {
	switch role {
	case "planner":
		if c.PlannerModel != "" {
			return c.PlannerModel
		}
	case "writer":
		if c.WriterModel != "" {
			return c.WriterModel
		}
	case "reviewer":
		if c.ReviewerModel != "" {
			return c.ReviewerModel
		}
	case "verifier":
		if c.VerifierModel != "" {
			return c.VerifierModel
		}
	case "rewriter":
		if c.RewriterModel != "" {
			return c.RewriterModel
		}
	}
	return c.DefaultModel
}

// DefaultLLMConfig returns the built-in LLM gateway defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		APIKeyEnv:      "ANTHROPIC_API_KEY",
		DefaultModel:   "claude-sonnet-4-20250514",
		MaxTokens:      4096,
		Temperature:    0.2,
		RequestTimeout: 2 * time.Minute,
	}
}

// ObjectStoreConfig resolves which Object Store backend is active: an S3
// bucket in production, or a local directory for tests/dev.
type ObjectStoreConfig struct {
	Backend string `yaml:"backend"` // "s3" or "fs"

	Bucket   string `yaml:"bucket,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"` // non-empty for S3-compatible (e.g. MinIO)

	LocalDir string `yaml:"local_dir,omitempty"` // used when Backend == "fs"
}

// DefaultObjectStoreConfig returns the built-in object store defaults
// (local filesystem, for development).
func DefaultObjectStoreConfig() *ObjectStoreConfig {
	return &ObjectStoreConfig{
		Backend:  "fs",
		LocalDir: "./data/objects",
	}
}

// SlackConfig holds Slack terminal-notification settings. Nil-safe:
// pkg/slack.NewService returns nil when Token/Channel resolve empty,
// which every caller treats as "notifications disabled".
type SlackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// ReviewFlagsConfig selects which optional reviewer flavors run
// alongside the mandatory general reviewer.
type ReviewFlagsConfig struct {
	EnableStyle    bool `yaml:"enable_style"`
	EnableCohesion bool `yaml:"enable_cohesion"`
	EnableSummary  bool `yaml:"enable_summary"`
}

// SystemConfig groups infrastructure settings that aren't per-stage
// queue/retention tuning: the observer console origin allowlist, the
// dashboard URL embedded in Slack notifications, and the diagram
// rendering service's base URL.
type SystemConfig struct {
	DashboardURL     string   `yaml:"dashboard_url"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`

	// DiagramRenderURL is the base URL of the external PlantUML/Mermaid
	// rendering HTTP service used by pkg/diagram.HTTPRenderer. Empty
	// disables real rendering (tests and local dev fall back to
	// pkg/diagram.FakeRenderer instead).
	DiagramRenderURL string `yaml:"diagram_render_url,omitempty"`
}

// DefaultSystemConfig returns the built-in system defaults.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DashboardURL: "http://localhost:5173",
	}
}
