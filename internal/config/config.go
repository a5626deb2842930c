// Package config provides configuration loading for specd.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the specd daemon.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Inference  InferenceConfig  `koanf:"inference"`
	Pipeline   PipelineConfig   `koanf:"pipeline"`
	Retrieval  RetrievalConfig  `koanf:"retrieval"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// InferenceConfig configures the external inference call used by the
// primary extraction strategy.
type InferenceConfig struct {
	Provider   string        `koanf:"provider"` // anthropic or openai
	Model      string        `koanf:"model"`
	APIKey     string        `koanf:"api_key"`
	BaseURL    string        `koanf:"base_url"`
	MaxTokens  int           `koanf:"max_tokens"`
	Timeout    time.Duration `koanf:"timeout"`
	MaxRetries int           `koanf:"max_retries"`
	RetryDelay time.Duration `koanf:"retry_delay"`
}

// PipelineConfig configures batch scheduling.
type PipelineConfig struct {
	Workers      int           `koanf:"workers"`
	TaskTimeout  time.Duration `koanf:"task_timeout"`
	MaxDocuments int           `koanf:"max_documents"`
}

// RetrievalConfig configures the document source backend.
type RetrievalConfig struct {
	Provider string        `koanf:"provider"` // chromem or qdrant
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	VectorSize int    `koanf:"vector_size"`
}

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     string `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	VectorSize int    `koanf:"vector_size"`
}

// EmbeddingsConfig configures the text-embeddings-inference endpoint.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	switch c.Inference.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("invalid inference provider: %q", c.Inference.Provider)
	}
	if c.Inference.MaxRetries < 1 {
		return fmt.Errorf("inference max_retries must be at least 1, got %d", c.Inference.MaxRetries)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline workers must be at least 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.TaskTimeout <= 0 {
		return fmt.Errorf("pipeline task_timeout must be positive")
	}
	if c.Pipeline.MaxDocuments < 1 {
		return fmt.Errorf("pipeline max_documents must be at least 1, got %d", c.Pipeline.MaxDocuments)
	}

	switch c.Retrieval.Provider {
	case "chromem":
		if c.Retrieval.Chromem.Path == "" {
			return fmt.Errorf("chromem path is required")
		}
	case "qdrant":
		if c.Retrieval.Qdrant.Host == "" {
			return fmt.Errorf("qdrant host is required")
		}
		if c.Retrieval.Qdrant.Port < 1 || c.Retrieval.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.Retrieval.Qdrant.Port)
		}
	default:
		return fmt.Errorf("invalid retrieval provider: %q", c.Retrieval.Provider)
	}

	if c.Embeddings.BaseURL == "" {
		return fmt.Errorf("embeddings base_url is required")
	}

	return nil
}
