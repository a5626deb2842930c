package retrieval

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/config"
)

var chromemTracer = otel.Tracer("specd/retrieval/chromem")

// ChromemSource retrieves documents from an embedded chromem-go store.
//
// chromem-go is a pure-Go embeddable vector database with persistence
// to gob files, so no external database service is needed. It is the
// default backend.
type ChromemSource struct {
	db       *chromem.DB
	embedder Embedder
	logger   *zap.Logger
}

// NewChromemSource opens (or creates) the persistent store at the
// configured path.
func NewChromemSource(cfg config.ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemSource, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem source initialized",
		zap.String("path", path),
		zap.Int("vector_size", cfg.VectorSize))

	return &ChromemSource{db: db, embedder: embedder, logger: logger}, nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemSource) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// Retrieve performs similarity search over the named collection.
// A missing collection returns ErrCollectionNotFound.
func (s *ChromemSource) Retrieve(ctx context.Context, collection, query string, limit int) ([]Document, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemSource.Retrieve")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", limit),
	)

	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	col := s.db.GetCollection(collection, s.embeddingFunc())
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	// chromem requires nResults <= document count
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	docs := make([]Document, len(results))
	for i, r := range results {
		docs[i] = Document{
			ID:         r.ID,
			Content:    r.Content,
			SourcePath: r.Metadata["source_path"],
			Score:      r.Similarity,
		}
	}

	span.SetAttributes(attribute.Int("results", len(docs)))
	return docs, nil
}

// Add indexes documents into the named collection, embedding their
// content in one batch.
func (s *ChromemSource) Add(ctx context.Context, collection string, docs []Document) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemSource.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("documents", len(docs)),
	)

	if len(docs) == 0 {
		return fmt.Errorf("documents cannot be empty")
	}

	col, err := s.db.GetOrCreateCollection(collection, nil, s.embeddingFunc())
	if err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("embedding documents: %w", err)
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("doc_%d_%d", time.Now().UnixNano(), i)
		}
		chromemDocs[i] = chromem.Document{
			ID:        id,
			Content:   d.Content,
			Metadata:  map[string]string{"source_path": d.SourcePath},
			Embedding: embeddings[i],
		}
	}

	// concurrency 1: embeddings were already computed above
	if err := col.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		return fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("indexed documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)))
	return nil
}
