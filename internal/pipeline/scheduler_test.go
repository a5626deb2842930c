package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specd/internal/extraction"
	"github.com/fyrsmithlabs/specd/internal/schema"
)

// clientFunc adapts a function to the inference client interface.
type clientFunc func(ctx context.Context, system, user, input string) (string, error)

func (f clientFunc) Invoke(ctx context.Context, system, user, input string) (string, error) {
	return f(ctx, system, user, input)
}

func newTestScheduler(t *testing.T, client extraction.InferenceClient, cfg SchedulerConfig) (*Scheduler, *schema.Registry) {
	t.Helper()
	registry := schema.NewRegistry()
	chain, err := extraction.NewChain(client, registry, extraction.RetryPolicy{MaxAttempts: 1}, nil)
	require.NoError(t, err)
	return NewScheduler(chain, cfg, nil), registry
}

func entriesFor(t *testing.T, registry *schema.Registry, types ...schema.Type) []schema.Entry {
	t.Helper()
	entries := make([]schema.Entry, 0, len(types))
	for _, typ := range types {
		entry, err := registry.Entry(typ)
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	return entries
}

func TestScheduler_OneResultPerTask(t *testing.T) {
	client := clientFunc(func(_ context.Context, _, _, input string) (string, error) {
		return "", fmt.Errorf("inference disabled")
	})
	scheduler, registry := newTestScheduler(t, client, SchedulerConfig{Workers: 2})

	docs := []extraction.Document{
		{ID: "doc1", Content: "server.port=8080 and some padding"},
		{ID: "doc2", Content: "SELECT * FROM users WHERE id = 1;"},
		{ID: "doc3", Content: "nothing structured in this one"},
	}
	entries := entriesFor(t, registry, schema.TypeServer, schema.TypeSQL)

	results, err := scheduler.RunBatch(context.Background(), docs, entries)
	require.NoError(t, err)

	require.Len(t, results[schema.TypeServer], 3)
	require.Len(t, results[schema.TypeSQL], 3)
	for _, typ := range []schema.Type{schema.TypeServer, schema.TypeSQL} {
		seen := make(map[string]bool)
		for _, p := range results[typ] {
			assert.Equal(t, typ, p.Type)
			seen[p.SourceDocumentID] = true
		}
		assert.Len(t, seen, 3, "one result per document for %s", typ)
	}
}

func TestScheduler_BoundsConcurrency(t *testing.T) {
	const workers = 2

	var current, peak int32
	client := clientFunc(func(ctx context.Context, _, _, _ string) (string, error) {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return `{"routes": []}`, nil
	})
	scheduler, registry := newTestScheduler(t, client, SchedulerConfig{Workers: workers})

	docs := make([]extraction.Document, 8)
	for i := range docs {
		docs[i] = extraction.Document{ID: fmt.Sprintf("doc%d", i), Content: "padding padding padding"}
	}

	results, err := scheduler.RunBatch(context.Background(), docs, entriesFor(t, registry, schema.TypeAPI))
	require.NoError(t, err)
	assert.Len(t, results[schema.TypeAPI], 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(workers))
}

func TestScheduler_TaskTimeoutDegrades(t *testing.T) {
	client := clientFunc(func(ctx context.Context, _, _, _ string) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return `{"hosts": [], "ports": [], "endpoints": [], "configuration": {}}`, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	scheduler, registry := newTestScheduler(t, client, SchedulerConfig{
		Workers:     2,
		TaskTimeout: 50 * time.Millisecond,
	})

	docs := []extraction.Document{{ID: "doc1", Content: "server.port=8080 in a config line"}}

	start := time.Now()
	results, err := scheduler.RunBatch(context.Background(), docs, entriesFor(t, registry, schema.TypeServer))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "timeout must bound the task, not the sleep")

	require.Len(t, results[schema.TypeServer], 1)
	p := results[schema.TypeServer][0]
	assert.Equal(t, extraction.ConfidenceMedium, p.Confidence, "pattern tier recovers after timeout")
	assert.Equal(t, extraction.StrategyPattern, p.Strategy)
	assert.Equal(t, []string{"8080"}, p.Fields.Lists["ports"])
}

func TestScheduler_CancellationStopsDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	var once sync.Once
	client := clientFunc(func(ctx context.Context, _, _, _ string) (string, error) {
		atomic.AddInt32(&calls, 1)
		once.Do(cancel)
		return `{"routes": []}`, nil
	})
	scheduler, registry := newTestScheduler(t, client, SchedulerConfig{Workers: 1})

	docs := make([]extraction.Document, 20)
	for i := range docs {
		docs[i] = extraction.Document{ID: fmt.Sprintf("doc%02d", i), Content: "padding padding padding"}
	}

	results, err := scheduler.RunBatch(ctx, docs, entriesFor(t, registry, schema.TypeAPI))
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, len(results[schema.TypeAPI]), len(docs), "not every task should have run")
}

func TestScheduler_EmptyBatch(t *testing.T) {
	client := clientFunc(func(context.Context, string, string, string) (string, error) {
		return "", fmt.Errorf("unused")
	})
	scheduler, registry := newTestScheduler(t, client, SchedulerConfig{})

	results, err := scheduler.RunBatch(context.Background(), nil, entriesFor(t, registry, schema.TypeServer))
	require.NoError(t, err)
	assert.Empty(t, results)
}
