package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/specd/internal/schema"
	"go.uber.org/zap"
)

// InferenceStrategy is the primary extraction strategy: it sends the
// type's prompt pair plus the document content to the inference client
// and decodes the response against the schema.
//
// Transient invocation failures are retried up to the policy bound with
// a fixed inter-attempt delay. Decode or validation failure is not
// retried; it fails the strategy for this task.
type InferenceStrategy struct {
	client InferenceClient
	policy RetryPolicy
	logger *zap.Logger
}

// NewInferenceStrategy creates the inference-backed strategy.
func NewInferenceStrategy(client InferenceClient, policy RetryPolicy, logger *zap.Logger) *InferenceStrategy {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InferenceStrategy{
		client: client,
		policy: policy,
		logger: logger,
	}
}

// Name returns the strategy name.
func (s *InferenceStrategy) Name() string { return StrategyInference }

// Extract invokes the inference call and decodes its output.
func (s *InferenceStrategy) Extract(ctx context.Context, doc Document, entry schema.Entry) (schema.Fields, error) {
	output, err := s.invokeWithRetry(ctx, doc, entry)
	if err != nil {
		return schema.Fields{}, err
	}

	fields, err := decodeResponse(output, entry.Schema)
	if err != nil {
		s.logger.Debug("inference output rejected",
			zap.String("type", string(entry.Schema.Type)),
			zap.String("document", doc.ID),
			zap.Error(err))
		return schema.Fields{}, err
	}
	return fields, nil
}

// invokeWithRetry retries transient invocation failures with a fixed
// delay between attempts. The delay exits early on context cancellation.
func (s *InferenceStrategy) invokeWithRetry(ctx context.Context, doc Document, entry schema.Entry) (string, error) {
	var lastErr error
	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.policy.Delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		output, err := s.client.Invoke(ctx, entry.Prompt.System, entry.Prompt.User, doc.Content)
		if err == nil {
			return output, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
		s.logger.Debug("inference call failed, retrying",
			zap.String("type", string(entry.Schema.Type)),
			zap.String("document", doc.ID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Ensure InferenceStrategy implements Strategy.
var _ Strategy = (*InferenceStrategy)(nil)
