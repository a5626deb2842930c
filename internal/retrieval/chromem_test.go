package retrieval

import (
	"context"
	"errors"
	"hash/fnv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/specd/internal/config"
)

// hashEmbedder produces deterministic pseudo-embeddings so similarity
// search works without a model server. Identical texts map to identical
// vectors.
type hashEmbedder struct{}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	h := fnv.New32a()
	for i := range vec {
		h.Write([]byte(text))
		vec[i] = float32(h.Sum32()%1000)/1000 + 0.001
	}
	return vec, nil
}

func (e hashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func newTestChromem(t *testing.T) *ChromemSource {
	t.Helper()
	src, err := NewChromemSource(config.ChromemConfig{
		Path:       t.TempDir(),
		VectorSize: 8,
	}, hashEmbedder{}, nil)
	require.NoError(t, err)
	return src
}

func TestChromemSource_AddAndRetrieve(t *testing.T) {
	src := newTestChromem(t)
	ctx := context.Background()

	err := src.Add(ctx, "shop-backend", []Document{
		{ID: "doc1", Content: "server.port=8080", SourcePath: "app.properties"},
		{ID: "doc2", Content: "SELECT * FROM users", SourcePath: "dao.sql"},
	})
	require.NoError(t, err)

	docs, err := src.Retrieve(ctx, "shop-backend", "server.port=8080", 2)
	require.NoError(t, err)
	require.NotEmpty(t, docs)
	assert.Equal(t, "doc1", docs[0].ID, "identical content ranks first")
	assert.Equal(t, "app.properties", docs[0].SourcePath)
	assert.Greater(t, docs[0].Score, float32(0))
}

func TestChromemSource_LimitCappedAtCollectionSize(t *testing.T) {
	src := newTestChromem(t)
	ctx := context.Background()

	require.NoError(t, src.Add(ctx, "shop-backend", []Document{
		{ID: "doc1", Content: "only document"},
	}))

	docs, err := src.Retrieve(ctx, "shop-backend", "anything", 10)
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestChromemSource_MissingCollection(t *testing.T) {
	src := newTestChromem(t)

	_, err := src.Retrieve(context.Background(), "nope", "query", 5)
	assert.True(t, errors.Is(err, ErrCollectionNotFound))
}

func TestChromemSource_ValidatesInput(t *testing.T) {
	src := newTestChromem(t)
	ctx := context.Background()

	_, err := src.Retrieve(ctx, "c", "", 5)
	assert.Error(t, err, "empty query")

	_, err = src.Retrieve(ctx, "c", "q", 0)
	assert.Error(t, err, "non-positive limit")

	err = src.Add(ctx, "c", nil)
	assert.Error(t, err, "empty batch")
}

func TestChromemSource_RequiresEmbedder(t *testing.T) {
	_, err := NewChromemSource(config.ChromemConfig{Path: t.TempDir()}, nil, nil)
	assert.Error(t, err)
}

func TestNewFactory(t *testing.T) {
	src, err := New(config.RetrievalConfig{
		Provider: "chromem",
		Chromem:  config.ChromemConfig{Path: t.TempDir(), VectorSize: 8},
	}, hashEmbedder{}, nil)
	require.NoError(t, err)
	assert.NotNil(t, src)

	_, err = New(config.RetrievalConfig{Provider: "pinecone"}, hashEmbedder{}, nil)
	assert.Error(t, err)
}
