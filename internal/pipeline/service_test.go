package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specd/internal/extraction"
	"github.com/fyrsmithlabs/specd/internal/retrieval"
	"github.com/fyrsmithlabs/specd/internal/schema"
)

// fakeSource serves a fixed document set for every query, optionally
// failing for specific collections.
type fakeSource struct {
	docs       []retrieval.Document
	failAll    bool
	failAllErr error
}

func (s *fakeSource) Retrieve(_ context.Context, collection, _ string, limit int) ([]retrieval.Document, error) {
	if s.failAll {
		err := s.failAllErr
		if err == nil {
			err = fmt.Errorf("%w: connection refused", retrieval.ErrUnavailable)
		}
		return nil, err
	}
	if strings.HasSuffix(collection, externalFilesSuffix) {
		return nil, nil
	}
	if limit < len(s.docs) {
		return s.docs[:limit], nil
	}
	return s.docs, nil
}

func newTestService(t *testing.T, client extraction.InferenceClient, source retrieval.Source, cfg SchedulerConfig) *Service {
	t.Helper()
	registry := schema.NewRegistry()
	chain, err := extraction.NewChain(client, registry, extraction.RetryPolicy{MaxAttempts: 1}, nil)
	require.NoError(t, err)
	return NewService(registry, NewScheduler(chain, cfg, nil), source, nil)
}

func TestService_EndToEnd(t *testing.T) {
	source := &fakeSource{docs: []retrieval.Document{
		{ID: "doc1", Content: "server.port=8080 # main listener", SourcePath: "app.properties"},
		{ID: "doc2", Content: "datasource.url=jdbc:postgresql://host:5432/db", SourcePath: "db.properties"},
		{ID: "doc3", Content: "# readme with no server facts at all", SourcePath: "README.md"},
	}}

	// doc1's inference call hangs past the task timeout; doc2 answers
	// well; doc3 answers garbage so both fallback tiers come up empty.
	client := clientFunc(func(ctx context.Context, _, _, input string) (string, error) {
		switch {
		case strings.Contains(input, "server.port=8080"):
			select {
			case <-time.After(10 * time.Second):
				return "", fmt.Errorf("unreachable")
			case <-ctx.Done():
				return "", ctx.Err()
			}
		case strings.Contains(input, "jdbc:postgresql"):
			return `{"hosts": [], "ports": ["5432"], "endpoints": ["jdbc:postgresql://host:5432/db"], "configuration": {}}`, nil
		default:
			return "no structured facts found, sorry", nil
		}
	})

	registry := schema.NewRegistry()
	chain, err := extraction.NewChain(client, registry, extraction.RetryPolicy{MaxAttempts: 1}, nil)
	require.NoError(t, err)
	scheduler := NewScheduler(chain, SchedulerConfig{
		Workers:     2,
		TaskTimeout: 100 * time.Millisecond,
	}, nil)
	service := NewService(registry, scheduler, source, nil)

	// Each document degrades to the tier its content deserves.
	entry, err := registry.Entry(schema.TypeServer)
	require.NoError(t, err)
	docs := make([]extraction.Document, len(source.docs))
	for i, d := range source.docs {
		docs[i] = extraction.Document{ID: d.ID, Content: d.Content, SourcePath: d.SourcePath}
	}
	partials, err := scheduler.RunBatch(context.Background(), docs, []schema.Entry{entry})
	require.NoError(t, err)
	byDoc := make(map[string]extraction.PartialResult)
	for _, p := range partials[schema.TypeServer] {
		byDoc[p.SourceDocumentID] = p
	}
	assert.Equal(t, extraction.StrategyPattern, byDoc["doc1"].Strategy,
		"hung inference call falls through to patterns")
	assert.Equal(t, extraction.ConfidenceMedium, byDoc["doc1"].Confidence)
	assert.Equal(t, extraction.StrategyInference, byDoc["doc2"].Strategy)
	assert.Equal(t, extraction.ConfidenceHigh, byDoc["doc2"].Confidence)
	assert.Equal(t, extraction.StrategyEmpty, byDoc["doc3"].Strategy,
		"unparseable output with no pattern matches ends at the empty tier")
	assert.Equal(t, extraction.ConfidenceLow, byDoc["doc3"].Confidence)

	result, err := service.Extract(context.Background(), Request{
		Codebase: "shop-backend",
		Types:    []string{"server"},
	})
	require.NoError(t, err)

	server, ok := result.Types[schema.TypeServer]
	require.True(t, ok)
	assert.Equal(t, []string{"8080", "5432"}, server.Fields.Lists["ports"],
		"ports merge in document order across strategies")
	assert.Empty(t, server.Fields.Lists["hosts"])
	assert.Equal(t, []string{"jdbc:postgresql://host:5432/db"}, server.Fields.Lists["endpoints"])

	assert.Equal(t, 3, result.Statistics.DocumentsProcessed)
	assert.Equal(t, 1, result.Statistics.TypesRequested)
	assert.True(t, result.Statistics.Coverage.PerType[schema.TypeServer])
	assert.InDelta(t, 100.0, result.Statistics.Coverage.Percentage, 0.001)
	assert.Equal(t, 2, result.Statistics.Coverage.FieldCounts["server.ports"])
}

func TestService_UnknownTypeAbortsOnlyThatType(t *testing.T) {
	source := &fakeSource{docs: []retrieval.Document{
		{ID: "doc1", Content: "SELECT * FROM users WHERE active = 1;"},
	}}
	client := clientFunc(func(context.Context, string, string, string) (string, error) {
		return "", fmt.Errorf("inference disabled")
	})
	service := newTestService(t, client, source, SchedulerConfig{Workers: 2})

	result, err := service.Extract(context.Background(), Request{
		Codebase: "shop-backend",
		Types:    []string{"sql", "kubernetes"},
	})
	require.NoError(t, err)

	assert.Contains(t, result.TypeErrors, "kubernetes")
	sql, ok := result.Types[schema.TypeSQL]
	require.True(t, ok)
	assert.Contains(t, sql.Fields.Lists["tables"], "users")
	assert.Equal(t, 1, result.Statistics.TypesRequested)
}

func TestService_AllTypesUnknown(t *testing.T) {
	service := newTestService(t,
		clientFunc(func(context.Context, string, string, string) (string, error) { return "", nil }),
		&fakeSource{}, SchedulerConfig{})

	_, err := service.Extract(context.Background(), Request{
		Codebase: "shop-backend",
		Types:    []string{"kubernetes", "terraform"},
	})
	require.ErrorIs(t, err, schema.ErrUnknownType)
}

func TestService_SourceUnavailableIsFatal(t *testing.T) {
	service := newTestService(t,
		clientFunc(func(context.Context, string, string, string) (string, error) { return "", nil }),
		&fakeSource{failAll: true}, SchedulerConfig{})

	result, err := service.Extract(context.Background(), Request{
		Codebase: "shop-backend",
		Types:    []string{"server"},
	})
	require.Error(t, err)
	assert.True(t, IsSourceUnavailable(err))
	assert.Nil(t, result, "no partial response on source failure")
}

func TestService_UnindexedCodebaseIsCallerError(t *testing.T) {
	source := &fakeSource{
		failAll:    true,
		failAllErr: fmt.Errorf("%w: shop-backend", retrieval.ErrCollectionNotFound),
	}
	service := newTestService(t,
		clientFunc(func(context.Context, string, string, string) (string, error) { return "", nil }),
		source, SchedulerConfig{})

	result, err := service.Extract(context.Background(), Request{
		Codebase: "shop-backend",
		Types:    []string{"server"},
	})
	require.ErrorIs(t, err, retrieval.ErrCollectionNotFound)
	assert.False(t, IsSourceUnavailable(err),
		"a missing collection is the caller's mistake, not an outage")
	assert.Nil(t, result)
}

func TestService_DeduplicatesAndFiltersDocuments(t *testing.T) {
	long := strings.Repeat("SELECT * FROM users; ", 20)
	source := &fakeSource{docs: []retrieval.Document{
		{ID: "doc1", Content: long},
		{ID: "doc2", Content: long}, // same content, different id
		{ID: "doc3", Content: "tiny"},
	}}
	client := clientFunc(func(context.Context, string, string, string) (string, error) {
		return "", fmt.Errorf("inference disabled")
	})
	service := newTestService(t, client, source, SchedulerConfig{Workers: 2})

	result, err := service.Extract(context.Background(), Request{
		Codebase: "shop-backend",
		Types:    []string{"sql"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Statistics.DocumentsProcessed,
		"duplicate content and sub-threshold fragments are dropped")
}

func TestService_ValidatesRequest(t *testing.T) {
	service := newTestService(t,
		clientFunc(func(context.Context, string, string, string) (string, error) { return "", nil }),
		&fakeSource{}, SchedulerConfig{})

	_, err := service.Extract(context.Background(), Request{Types: []string{"server"}})
	assert.Error(t, err, "codebase required")

	_, err = service.Extract(context.Background(), Request{Codebase: "x"})
	assert.Error(t, err, "types required")
}
