package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/extraction"
	"github.com/fyrsmithlabs/specd/internal/retrieval"
	"github.com/fyrsmithlabs/specd/internal/schema"
)

// externalFilesSuffix names the companion collection holding files
// gathered from outside the codebase root (build output, referenced
// configs). It is queried alongside the main collection.
const externalFilesSuffix = "-external-files"

// minContentLength filters out fragments too short to carry any
// extractable structure.
const minContentLength = 20

// DefaultMaxDocuments bounds retrieval per (collection, query) when the
// request does not set a limit.
const DefaultMaxDocuments = 10

// ErrInvalidRequest indicates a malformed request (missing codebase or
// extraction types).
var ErrInvalidRequest = errors.New("invalid request")

// Request names a codebase collection and the extraction types to run
// over it.
type Request struct {
	Codebase     string   `json:"codebase"`
	Types        []string `json:"types"`
	MaxDocuments int      `json:"max_documents,omitempty"`
}

// Service orchestrates one extraction request end to end: document
// gathering, batch scheduling, aggregation, and coverage analysis.
type Service struct {
	registry  *schema.Registry
	scheduler *Scheduler
	source    retrieval.Source
	metrics   *Metrics
	logger    *zap.Logger
}

// NewService creates the pipeline service.
func NewService(registry *schema.Registry, scheduler *Scheduler, source retrieval.Source, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:  registry,
		scheduler: scheduler,
		source:    source,
		logger:    logger,
	}
}

// SetMetrics sets the metrics tracker for this service and its
// scheduler. Optional.
func (s *Service) SetMetrics(m *Metrics) {
	s.metrics = m
	s.scheduler.SetMetrics(m)
}

// Extract runs the full pipeline for one request.
//
// Unknown type tags abort only their own processing and are reported in
// the result's TypeErrors. An unreachable document source is fatal to
// the whole request: the error wraps retrieval.ErrUnavailable and no
// partial response is produced.
func (s *Service) Extract(ctx context.Context, req Request) (*Result, error) {
	requestID := uuid.New().String()
	start := time.Now()

	ctx, span := tracer.Start(ctx, "pipeline.extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.codebase", req.Codebase),
		attribute.Int("request.types", len(req.Types)),
	)

	logger := s.logger.With(
		zap.String("request_id", requestID),
		zap.String("codebase", req.Codebase),
	)

	if req.Codebase == "" {
		s.recordRequest("error", start)
		return nil, fmt.Errorf("%w: codebase is required", ErrInvalidRequest)
	}
	if len(req.Types) == 0 {
		s.recordRequest("error", start)
		return nil, fmt.Errorf("%w: at least one extraction type is required", ErrInvalidRequest)
	}

	entries := make([]schema.Entry, 0, len(req.Types))
	requested := make([]schema.Type, 0, len(req.Types))
	typeErrors := make(map[string]string)
	for _, raw := range req.Types {
		t, err := s.registry.Parse(raw)
		if err != nil {
			typeErrors[raw] = err.Error()
			logger.Warn("skipping unknown extraction type", zap.String("type", raw))
			continue
		}
		entry, err := s.registry.Entry(t)
		if err != nil {
			typeErrors[raw] = err.Error()
			continue
		}
		entries = append(entries, entry)
		requested = append(requested, t)
	}
	if len(entries) == 0 {
		s.recordRequest("error", start)
		return nil, fmt.Errorf("%w: no valid extraction types in request", schema.ErrUnknownType)
	}

	docs, err := s.gatherDocuments(ctx, req, entries, logger)
	if err != nil {
		s.recordRequest("error", start)
		return nil, err
	}
	logger.Info("documents gathered", zap.Int("count", len(docs)))
	if s.metrics != nil {
		s.metrics.DocumentsRetrieved.Add(float64(len(docs)))
	}

	partials, err := s.scheduler.RunBatch(ctx, docs, entries)
	if err != nil {
		s.recordRequest("error", start)
		return nil, fmt.Errorf("batch canceled: %w", err)
	}

	results := make(map[schema.Type]AggregatedResult, len(entries))
	for _, entry := range entries {
		results[entry.Schema.Type] = Aggregate(entry.Schema, partials[entry.Schema.Type])
	}

	coverage := Analyze(requested, results)
	if s.metrics != nil {
		s.metrics.CoveragePercentage.Set(coverage.Percentage)
	}
	s.recordRequest("ok", start)

	elapsed := time.Since(start)
	logger.Info("extraction complete",
		zap.Int("documents", len(docs)),
		zap.Int("types", len(requested)),
		zap.Float64("coverage", coverage.Percentage),
		zap.Duration("elapsed", elapsed))

	return &Result{
		Codebase:   req.Codebase,
		Types:      results,
		TypeErrors: typeErrors,
		Statistics: Statistics{
			DocumentsProcessed: len(docs),
			TypesRequested:     len(requested),
			Coverage:           coverage,
			ElapsedMS:          elapsed.Milliseconds(),
		},
	}, nil
}

func (s *Service) recordRequest(status string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordRequest(status, time.Since(start).Seconds())
	}
}

// gatherDocuments queries the main and external-files collections with
// each requested type's retrieval query and merges the ranked results,
// deduplicating near-identical content by prefix fingerprint.
//
// Individual query failures are tolerated; the request fails only when
// every retrieval call errors. All queries missing their collection
// means the codebase is not indexed; any other total failure indicates
// the source itself is down.
func (s *Service) gatherDocuments(ctx context.Context, req Request, entries []schema.Entry, logger *zap.Logger) ([]extraction.Document, error) {
	limit := req.MaxDocuments
	if limit <= 0 {
		limit = DefaultMaxDocuments
	}
	collections := []string{req.Codebase, req.Codebase + externalFilesSuffix}

	var (
		docs     []extraction.Document
		seen     = make(map[string]struct{})
		attempts int
		failures int
		notFound int
		lastErr  error
	)

	for _, entry := range entries {
		for _, collection := range collections {
			attempts++
			retrieved, err := s.source.Retrieve(ctx, collection, entry.Query, limit)
			if err != nil {
				failures++
				lastErr = err
				if errors.Is(err, retrieval.ErrCollectionNotFound) {
					notFound++
				}
				logger.Debug("retrieval query failed",
					zap.String("collection", collection),
					zap.String("type", string(entry.Schema.Type)),
					zap.Error(err))
				continue
			}
			for _, d := range retrieved {
				if len(d.Content) < minContentLength {
					continue
				}
				fp := fingerprint(d.Content)
				if _, ok := seen[fp]; ok {
					continue
				}
				seen[fp] = struct{}{}
				docs = append(docs, extraction.Document{
					ID:         d.ID,
					Content:    d.Content,
					SourcePath: d.SourcePath,
				})
			}
		}
	}

	if failures == attempts {
		// Every query missing its collection means the codebase was
		// never indexed, which is the caller's mistake, not an outage.
		if notFound == attempts {
			return nil, fmt.Errorf("%w: codebase %q is not indexed",
				retrieval.ErrCollectionNotFound, req.Codebase)
		}
		return nil, fmt.Errorf("%w: all %d retrieval queries failed: %v",
			retrieval.ErrUnavailable, attempts, lastErr)
	}
	return docs, nil
}

// fingerprint keys a document by a content prefix so the same file
// retrieved under different queries or collections is processed once.
func fingerprint(content string) string {
	const n = 200
	if len(content) <= n {
		return content
	}
	return content[:n]
}

// IsSourceUnavailable reports whether err is the fatal
// source-unreachable condition.
func IsSourceUnavailable(err error) bool {
	return errors.Is(err, retrieval.ErrUnavailable)
}
