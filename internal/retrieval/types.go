// Package retrieval provides ranked document retrieval over vector
// store backends. A Source answers free-text queries against a named
// collection and returns documents in descending relevance order.
package retrieval

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the retrieval backend could not be reached.
// Callers treat this as fatal for the request that needed documents.
var ErrUnavailable = errors.New("document source unavailable")

// ErrCollectionNotFound indicates the named collection does not exist
// in the backend.
var ErrCollectionNotFound = errors.New("collection not found")

// Document is one retrieved document with its ranking score.
type Document struct {
	ID         string
	Content    string
	SourcePath string
	Score      float32
}

// Source is ranked best-effort retrieval over a document collection.
type Source interface {
	// Retrieve returns up to limit documents from the collection ranked
	// by semantic similarity to the query.
	Retrieve(ctx context.Context, collection, query string, limit int) ([]Document, error)
}

// Embedder converts text into dense vectors for similarity search.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}
