package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SPECD_SERVER_PORT, SPECD_INFERENCE_API_KEY, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// Environment variables are prefixed with SPECD_; the section and field
// are split on the first underscore after the prefix:
//
//	SPECD_SERVER_PORT          -> server.port
//	SPECD_INFERENCE_API_KEY    -> inference.api_key
//	SPECD_PIPELINE_TASK_TIMEOUT -> pipeline.task_timeout
//
// An empty configPath skips the file layer entirely.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// rawbytes avoids re-opening the already-validated file
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("SPECD_", ".", func(s string) string {
		// SPECD_INFERENCE_API_KEY -> inference.api_key
		// Split on the first underscore only; field names keep theirs.
		lower := strings.ToLower(strings.TrimPrefix(s, "SPECD_"))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8750
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Inference.Provider == "" {
		cfg.Inference.Provider = "anthropic"
	}
	if cfg.Inference.MaxRetries == 0 {
		cfg.Inference.MaxRetries = 3
	}
	if cfg.Inference.RetryDelay == 0 {
		cfg.Inference.RetryDelay = 2 * time.Second
	}
	if cfg.Inference.Timeout == 0 {
		cfg.Inference.Timeout = 60 * time.Second
	}

	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.TaskTimeout == 0 {
		cfg.Pipeline.TaskTimeout = 45 * time.Second
	}
	if cfg.Pipeline.MaxDocuments == 0 {
		cfg.Pipeline.MaxDocuments = 10
	}

	// chromem is the default store: embedded, no external deps
	if cfg.Retrieval.Provider == "" {
		cfg.Retrieval.Provider = "chromem"
	}
	if cfg.Retrieval.Chromem.Path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.Retrieval.Chromem.Path = home + "/.config/specd/vectorstore"
		}
	}
	if cfg.Retrieval.Chromem.VectorSize == 0 {
		cfg.Retrieval.Chromem.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.Retrieval.Qdrant.Host == "" {
		cfg.Retrieval.Qdrant.Host = "localhost"
	}
	if cfg.Retrieval.Qdrant.Port == 0 {
		cfg.Retrieval.Qdrant.Port = 6334
	}
	if cfg.Retrieval.Qdrant.VectorSize == 0 {
		cfg.Retrieval.Qdrant.VectorSize = 384
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = 30 * time.Second
	}
}
