package pipeline

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/specd/internal/extraction"
	"github.com/fyrsmithlabs/specd/internal/schema"
)

var tracer = otel.Tracer("specd/pipeline")

// DefaultWorkers is the worker pool size used when none is configured.
const DefaultWorkers = 4

// DefaultTaskTimeout bounds one (document, type) task. A task that
// exceeds it degrades through the chain instead of hanging the batch.
const DefaultTaskTimeout = 45 * time.Second

// Scheduler fans extraction tasks out across a bounded worker pool.
// One task is created per (document, extraction type) pair; workers pull
// from a shared queue with no ordering guarantee between tasks.
type Scheduler struct {
	chain       *extraction.Chain
	workers     int
	taskTimeout time.Duration
	metrics     *Metrics
	logger      *zap.Logger
}

// SchedulerConfig configures the worker pool.
type SchedulerConfig struct {
	Workers     int
	TaskTimeout time.Duration
}

// NewScheduler creates a scheduler backed by the given strategy chain.
func NewScheduler(chain *extraction.Chain, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		chain:       chain,
		workers:     cfg.Workers,
		taskTimeout: cfg.TaskTimeout,
		logger:      logger,
	}
}

// SetMetrics sets the metrics tracker for this scheduler. Optional.
func (s *Scheduler) SetMetrics(m *Metrics) {
	s.metrics = m
}

// task is one unit of work, never mutated after creation.
type task struct {
	doc   extraction.Document
	entry schema.Entry
}

// RunBatch executes one task per (document, type) pair and collects the
// partial results grouped by type. It returns only after every
// dispatched task has produced its result, so aggregation can start with
// the full set.
//
// Cancellation stops dispatch of not-yet-started tasks and interrupts
// suspension points inside running tasks; a task already blocked on the
// external inference call is allowed to finish and its result is
// returned with the rest. A canceled batch reports ctx.Err.
func (s *Scheduler) RunBatch(ctx context.Context, docs []extraction.Document, entries []schema.Entry) (map[schema.Type][]extraction.PartialResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.run_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.documents", len(docs)),
		attribute.Int("batch.types", len(entries)),
	)

	tasks := make([]task, 0, len(docs)*len(entries))
	for _, entry := range entries {
		for _, doc := range docs {
			tasks = append(tasks, task{doc: doc, entry: entry})
		}
	}
	if len(tasks) == 0 {
		return map[schema.Type][]extraction.PartialResult{}, ctx.Err()
	}

	taskCh := make(chan task)
	resultCh := make(chan extraction.PartialResult, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskCh {
				resultCh <- s.runTask(ctx, t)
			}
		}()
	}

	dispatched := 0
dispatch:
	for _, t := range tasks {
		select {
		case taskCh <- t:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}
	close(taskCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make(map[schema.Type][]extraction.PartialResult, len(entries))
	for r := range resultCh {
		results[r.Type] = append(results[r.Type], r)
	}

	if err := ctx.Err(); err != nil {
		s.logger.Warn("batch canceled",
			zap.Int("dispatched", dispatched),
			zap.Int("total", len(tasks)),
			zap.Error(err))
		return results, err
	}
	return results, nil
}

// runTask executes one task under its own timeout. The chain absorbs
// the timeout: the inference tier fails on the dead context and the
// pattern tier, which needs no I/O, still runs.
func (s *Scheduler) runTask(ctx context.Context, t task) extraction.PartialResult {
	taskCtx, cancel := context.WithTimeout(ctx, s.taskTimeout)
	defer cancel()

	taskCtx, span := tracer.Start(taskCtx, "pipeline.execute_task")
	span.SetAttributes(
		attribute.String("task.type", string(t.entry.Schema.Type)),
		attribute.String("task.document", t.doc.ID),
	)
	defer span.End()

	start := time.Now()
	result := s.chain.Extract(taskCtx, t.doc, t.entry)
	duration := time.Since(start)

	s.logger.Debug("task executed",
		zap.String("type", string(result.Type)),
		zap.String("document", result.SourceDocumentID),
		zap.String("strategy", result.Strategy),
		zap.String("confidence", string(result.Confidence)),
		zap.Duration("duration", duration))

	if s.metrics != nil {
		s.metrics.RecordTask(string(result.Type), result.Strategy, string(result.Confidence), duration.Seconds())
	}
	span.SetAttributes(
		attribute.String("task.strategy", result.Strategy),
		attribute.String("task.confidence", string(result.Confidence)),
	)
	return result
}
