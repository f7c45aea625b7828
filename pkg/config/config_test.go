package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_ConfigDir(t *testing.T) {
	cfg := &Config{configDir: "/etc/docwriter"}
	assert.Equal(t, "/etc/docwriter", cfg.ConfigDir())
}

func TestDefaultDefaults(t *testing.T) {
	d := DefaultDefaults()
	assert.Equal(t, 2, d.DefaultCyclesRequested)
	assert.Equal(t, 60, d.DefaultLengthPages)
	assert.Equal(t, "general", d.DefaultAudience)
	assert.True(t, d.Masking.Enabled)
	assert.Equal(t, "security", d.Masking.PatternGroup)
}

func TestDefaultLLMConfig_ModelFor(t *testing.T) {
	cfg := DefaultLLMConfig()
	cfg.WriterModel = "claude-writer-special"

	assert.Equal(t, cfg.DefaultModel, cfg.ModelFor("planner"))
	assert.Equal(t, "claude-writer-special", cfg.ModelFor("writer"))
	assert.Equal(t, cfg.DefaultModel, cfg.ModelFor("unknown-role"))
}

func TestDefaultObjectStoreConfig(t *testing.T) {
	cfg := DefaultObjectStoreConfig()
	assert.Equal(t, "fs", cfg.Backend)
	assert.Equal(t, "./data/objects", cfg.LocalDir)
}

func TestDefaultSystemConfig(t *testing.T) {
	cfg := DefaultSystemConfig()
	assert.Equal(t, "http://localhost:5173", cfg.DashboardURL)
}
