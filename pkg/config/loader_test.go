package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeDocwriterYAML(t *testing.T, configDir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "docwriter.yaml"), []byte(contents), 0644))
}

func TestInitialize_AppliesDefaultsWhenYAMLOmitsSections(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	writeDocwriterYAML(t, configDir, `
object_store:
  backend: fs
  local_dir: ./data/objects
`)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 2, cfg.Defaults.DefaultCyclesRequested)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.LLM.DefaultModel)
	assert.Equal(t, 2, cfg.Queue.WorkerCount)
	assert.Equal(t, "fs", cfg.ObjectStore.Backend)
}

func TestInitialize_UserYAMLOverridesDefaults(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	writeDocwriterYAML(t, configDir, `
defaults:
  default_cycles_requested: 4
  default_audience: executive
queue:
  worker_count: 8
object_store:
  backend: s3
  bucket: docwriter-artifacts
  region: us-east-1
llm:
  api_key_env: ANTHROPIC_API_KEY
  default_model: claude-opus-4-20250514
review_flags:
  enable_style: true
  enable_cohesion: true
`)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Defaults.DefaultCyclesRequested)
	assert.Equal(t, "executive", cfg.Defaults.DefaultAudience)
	assert.Equal(t, 8, cfg.Queue.WorkerCount)
	assert.Equal(t, "s3", cfg.ObjectStore.Backend)
	assert.Equal(t, "docwriter-artifacts", cfg.ObjectStore.Bucket)
	assert.Equal(t, "claude-opus-4-20250514", cfg.LLM.DefaultModel)
	assert.True(t, cfg.ReviewFlags.EnableStyle)
	assert.True(t, cfg.ReviewFlags.EnableCohesion)
	assert.False(t, cfg.ReviewFlags.EnableSummary)
}

func TestInitialize_ExpandsEnvVarsInYAML(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	t.Setenv("DOCWRITER_BUCKET", "env-expanded-bucket")
	writeDocwriterYAML(t, configDir, `
object_store:
  backend: s3
  bucket: ${DOCWRITER_BUCKET}
`)

	ctx := context.Background()
	cfg, err := Initialize(ctx, configDir)
	require.NoError(t, err)
	assert.Equal(t, "env-expanded-bucket", cfg.ObjectStore.Bucket)
}

func TestInitialize_ConfigFileNotFound(t *testing.T) {
	ctx := context.Background()
	_, err := Initialize(ctx, t.TempDir())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load configuration")
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitialize_InvalidYAML(t *testing.T) {
	configDir := t.TempDir()
	writeDocwriterYAML(t, configDir, `{{{not yaml`)

	ctx := context.Background()
	_, err := Initialize(ctx, configDir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitialize_ValidationFailsOnMissingAPIKeyEnv(t *testing.T) {
	configDir := t.TempDir()
	writeDocwriterYAML(t, configDir, `
llm:
  api_key_env: ""
`)

	ctx := context.Background()
	_, err := Initialize(ctx, configDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
}

func TestInitialize_ValidationFailsOnS3BackendWithoutBucket(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	writeDocwriterYAML(t, configDir, `
object_store:
  backend: s3
`)

	ctx := context.Background()
	_, err := Initialize(ctx, configDir)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err.(interface{ Unwrap() error }).Unwrap(), &verr)
	assert.Equal(t, "object_store.bucket", verr.Field)
}

func TestInitialize_ValidationFailsOnInvalidObjectStoreBackend(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	writeDocwriterYAML(t, configDir, `
object_store:
  backend: azure-blob
`)

	ctx := context.Background()
	_, err := Initialize(ctx, configDir)
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err.(interface{ Unwrap() error }).Unwrap(), &verr)
	assert.Equal(t, "object_store.backend", verr.Field)
}
