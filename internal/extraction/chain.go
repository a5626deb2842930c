package extraction

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/specd/internal/schema"
	"go.uber.org/zap"
)

// EmptyStrategy is the terminal tier: an all-empty schema-shaped result.
// It guarantees the per-document contract that some result is always
// produced.
type EmptyStrategy struct{}

// Name returns the strategy name.
func (EmptyStrategy) Name() string { return StrategyEmpty }

// Extract returns an empty schema-shaped result.
func (EmptyStrategy) Extract(_ context.Context, _ Document, entry schema.Entry) (schema.Fields, error) {
	return schema.EmptyFields(entry.Schema), nil
}

// tier pairs a strategy with the confidence its results carry and the
// acceptance rule for moving on.
type tier struct {
	strategy   Strategy
	confidence Confidence

	// requireNonEmpty rejects all-empty results so the next tier runs.
	// An empty result from the pattern tier carries no more information
	// than the empty default, so it reports as such.
	requireNonEmpty bool
}

// Chain is the ordered primary → secondary → tertiary degradation
// sequence for one extraction task.
type Chain struct {
	tiers  []tier
	logger *zap.Logger
}

// NewChain builds the three-tier chain. Pattern compilation failure is a
// registry misconfiguration and fails construction.
func NewChain(client InferenceClient, registry *schema.Registry, policy RetryPolicy, logger *zap.Logger) (*Chain, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	patterns, err := NewPatternStrategy(registry)
	if err != nil {
		return nil, fmt.Errorf("compiling patterns: %w", err)
	}

	return &Chain{
		tiers: []tier{
			{strategy: NewInferenceStrategy(client, policy, logger), confidence: ConfidenceHigh},
			{strategy: patterns, confidence: ConfidenceMedium, requireNonEmpty: true},
			{strategy: EmptyStrategy{}, confidence: ConfidenceLow},
		},
		logger: logger,
	}, nil
}

// Extract runs the chain for one (document, type) task. It never fails:
// every error degrades to the next tier and the terminal tier cannot
// error. Confidence reflects the tier that produced the returned data,
// not which tiers were attempted.
func (c *Chain) Extract(ctx context.Context, doc Document, entry schema.Entry) PartialResult {
	for _, t := range c.tiers {
		fields, err := runTier(ctx, t.strategy, doc, entry)
		if err != nil {
			c.logger.Debug("strategy unavailable, degrading",
				zap.String("strategy", t.strategy.Name()),
				zap.String("type", string(entry.Schema.Type)),
				zap.String("document", doc.ID),
				zap.Error(err))
			continue
		}
		if t.requireNonEmpty && !fields.NonEmpty() {
			continue
		}
		return PartialResult{
			Type:             entry.Schema.Type,
			Fields:           fields,
			Confidence:       t.confidence,
			Strategy:         t.strategy.Name(),
			SourceDocumentID: doc.ID,
			SourcePath:       doc.SourcePath,
		}
	}

	// Unreachable while EmptyStrategy terminates the chain; kept so the
	// contract holds even if tiers are reordered.
	return PartialResult{
		Type:             entry.Schema.Type,
		Fields:           schema.EmptyFields(entry.Schema),
		Confidence:       ConfidenceLow,
		Strategy:         StrategyEmpty,
		SourceDocumentID: doc.ID,
		SourcePath:       doc.SourcePath,
	}
}

// runTier converts a panicking strategy into a strategy error so a
// misbehaving tier degrades instead of killing the worker.
func runTier(ctx context.Context, s Strategy, doc Document, entry schema.Entry) (fields schema.Fields, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked: %v", s.Name(), r)
		}
	}()
	return s.Extract(ctx, doc, entry)
}
