// Package extraction implements the degrading strategy chain that pulls
// schema-shaped facts out of a single document: an inference-backed
// primary strategy, a pattern-based secondary strategy and an empty
// default. The chain never fails; unrecoverable errors degrade the
// result instead of propagating.
package extraction

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/specd/internal/schema"
)

// Document is one retrieved text document. Defined here rather than in
// the retrieval package to avoid a dependency on retrieval backends.
type Document struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	SourcePath string `json:"source_path"`
}

// Confidence indicates which strategy tier produced a result.
type Confidence string

const (
	// ConfidenceHigh means the inference-backed strategy produced a
	// schema-valid result.
	ConfidenceHigh Confidence = "high"
	// ConfidenceMedium means the pattern-based strategy produced
	// non-trivial matches after the primary strategy failed.
	ConfidenceMedium Confidence = "medium"
	// ConfidenceLow means the empty default was used.
	ConfidenceLow Confidence = "low"
)

// Strategy names reported in PartialResult.Strategy.
const (
	StrategyInference = "inference"
	StrategyPattern   = "pattern"
	StrategyEmpty     = "empty"
)

// PartialResult is one document's contribution to one extraction type.
// Fields always conforms to the type's schema: every field is present,
// absent data is an empty list or map.
type PartialResult struct {
	Type             schema.Type   `json:"extraction_type"`
	Fields           schema.Fields `json:"fields"`
	Confidence       Confidence    `json:"confidence"`
	Strategy         string        `json:"strategy_used"`
	SourceDocumentID string        `json:"source_document_id"`
	SourcePath       string        `json:"source_path,omitempty"`
}

// Strategy extracts schema-shaped fields from one document. An error
// means the strategy is unavailable for this task; the chain then falls
// through to the next tier.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc Document, entry schema.Entry) (schema.Fields, error)
}

// RetryPolicy bounds retries of the external inference call. The delay
// between attempts is fixed; the wait exits early on context
// cancellation.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy mirrors the inference defaults: three attempts with
// a two second pause between them.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}
}
