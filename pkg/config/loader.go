package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// DocwriterYAMLConfig represents the complete docwriter.yaml file structure.
type DocwriterYAMLConfig struct {
	Defaults    *Defaults          `yaml:"defaults"`
	Queue       *QueueConfig       `yaml:"queue"`
	Retention   *RetentionConfig   `yaml:"retention"`
	LLM         *LLMConfig         `yaml:"llm"`
	ObjectStore *ObjectStoreConfig `yaml:"object_store"`
	Slack       *SlackConfig       `yaml:"slack"`
	ReviewFlags *ReviewFlagsConfig `yaml:"review_flags"`
	System      *SystemConfig      `yaml:"system"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load docwriter.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-provided sections onto built-in defaults
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration initialized successfully",
		"object_store_backend", cfg.ObjectStore.Backend,
		"queue_worker_count", cfg.Queue.WorkerCount,
		"review_style", cfg.ReviewFlags.EnableStyle,
		"review_cohesion", cfg.ReviewFlags.EnableCohesion,
		"review_summary", cfg.ReviewFlags.EnableSummary)

	return cfg, nil
}

// load is the internal loader (not exported).
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadDocwriterYAML()
	if err != nil {
		return nil, NewLoadError("docwriter.yaml", err)
	}

	defaults := DefaultDefaults()
	if yamlCfg.Defaults != nil {
		if err := mergo.Merge(defaults, yamlCfg.Defaults, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge defaults: %w", err)
		}
	}

	queueCfg := DefaultQueueConfig()
	if yamlCfg.Queue != nil {
		if err := mergo.Merge(queueCfg, yamlCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	retentionCfg := DefaultRetentionConfig()
	if yamlCfg.Retention != nil {
		if err := mergo.Merge(retentionCfg, yamlCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	llmCfg := DefaultLLMConfig()
	if yamlCfg.LLM != nil {
		if err := mergo.Merge(llmCfg, yamlCfg.LLM, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm config: %w", err)
		}
	}

	objectStoreCfg := DefaultObjectStoreConfig()
	if yamlCfg.ObjectStore != nil {
		if err := mergo.Merge(objectStoreCfg, yamlCfg.ObjectStore, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge object store config: %w", err)
		}
	}

	slackCfg := &SlackConfig{TokenEnv: "SLACK_BOT_TOKEN"}
	if yamlCfg.Slack != nil {
		if err := mergo.Merge(slackCfg, yamlCfg.Slack, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge slack config: %w", err)
		}
	}

	reviewFlags := &ReviewFlagsConfig{}
	if yamlCfg.ReviewFlags != nil {
		reviewFlags = yamlCfg.ReviewFlags
	}

	systemCfg := DefaultSystemConfig()
	if yamlCfg.System != nil {
		if err := mergo.Merge(systemCfg, yamlCfg.System, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge system config: %w", err)
		}
	}

	return &Config{
		configDir:   configDir,
		Defaults:    defaults,
		Queue:       queueCfg,
		Retention:   retentionCfg,
		LLM:         llmCfg,
		ObjectStore: objectStoreCfg,
		Slack:       slackCfg,
		ReviewFlags: reviewFlags,
		System:      systemCfg,
	}, nil
}

// validate performs basic sanity checks on loaded configuration.
func validate(cfg *Config) error {
	if cfg.LLM.APIKeyEnv == "" {
		return NewValidationError("llm.api_key_env", ErrMissingRequiredField)
	}
	if cfg.ObjectStore.Backend != "s3" && cfg.ObjectStore.Backend != "fs" {
		return NewValidationError("object_store.backend", ErrInvalidValue)
	}
	if cfg.ObjectStore.Backend == "s3" && cfg.ObjectStore.Bucket == "" {
		return NewValidationError("object_store.bucket", ErrMissingRequiredField)
	}
	if cfg.Queue.WorkerCount < 1 {
		return NewValidationError("queue.worker_count", ErrInvalidValue)
	}
	return nil
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing the YAML parser to handle the content (or fail with a clearer
	// error message).
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return nil
}

func (l *configLoader) loadDocwriterYAML() (*DocwriterYAMLConfig, error) {
	var cfg DocwriterYAMLConfig
	if err := l.loadYAML("docwriter.yaml", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
