package retrieval

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/config"
)

var qdrantTracer = otel.Tracer("specd/retrieval/qdrant")

// QdrantSource retrieves documents from a Qdrant server over gRPC.
type QdrantSource struct {
	client     *qdrant.Client
	embedder   Embedder
	vectorSize int
	logger     *zap.Logger
}

// NewQdrantSource connects to the configured Qdrant instance and
// verifies it is reachable.
func NewQdrantSource(cfg config.QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantSource, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check failed: %v", ErrUnavailable, err)
	}

	logger.Info("qdrant source initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.Bool("tls", cfg.UseTLS))

	return &QdrantSource{
		client:     client,
		embedder:   embedder,
		vectorSize: cfg.VectorSize,
		logger:     logger,
	}, nil
}

// Retrieve embeds the query and performs similarity search over the
// named collection.
func (s *QdrantSource) Retrieve(ctx context.Context, collection, query string, limit int) ([]Document, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantSource.Retrieve")
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

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: query failed: %v", ErrUnavailable, err)
	}

	docs := make([]Document, 0, len(points))
	for _, p := range points {
		doc := Document{Score: p.Score}
		if v, ok := p.Payload["id"]; ok {
			doc.ID = v.GetStringValue()
		}
		if v, ok := p.Payload["content"]; ok {
			doc.Content = v.GetStringValue()
		}
		if v, ok := p.Payload["source_path"]; ok {
			doc.SourcePath = v.GetStringValue()
		}
		docs = append(docs, doc)
	}

	span.SetAttributes(attribute.Int("results", len(docs)))
	return docs, nil
}

// Add indexes documents into the named collection, creating it with the
// configured vector size if needed.
func (s *QdrantSource) Add(ctx context.Context, collection string, docs []Document) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantSource.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("documents", len(docs)),
	)

	if len(docs) == 0 {
		return fmt.Errorf("documents cannot be empty")
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.vectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", collection, err)
		}
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

	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = fmt.Sprintf("doc_%d_%d", time.Now().UnixNano(), i)
		}
		// Qdrant point ids must be UUIDs; the caller's id is preserved
		// in payload["id"] for retrieval.
		pointID := id
		if _, err := uuid.Parse(pointID); err != nil {
			pointID = uuid.New().String()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"id":          id,
				"content":     d.Content,
				"source_path": d.SourcePath,
			}),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("upserting points: %w", err)
	}

	s.logger.Debug("indexed documents",
		zap.String("collection", collection),
		zap.Int("count", len(docs)))
	return nil
}

// Close releases the gRPC connection.
func (s *QdrantSource) Close() error {
	return s.client.Close()
}
