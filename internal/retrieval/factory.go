package retrieval

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/config"
)

// Store is a Source that can also be written to.
type Store interface {
	Source

	// Add indexes documents into the named collection.
	Add(ctx context.Context, collection string, docs []Document) error
}

// New creates the configured retrieval backend.
func New(cfg config.RetrievalConfig, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemSource(cfg.Chromem, embedder, logger)
	case "qdrant":
		return NewQdrantSource(cfg.Qdrant, embedder, logger)
	default:
		return nil, fmt.Errorf("unknown retrieval provider: %q", cfg.Provider)
	}
}
