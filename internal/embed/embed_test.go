package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/openclaw-memory/internal/config"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
)

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "prefers table-driven tests")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "prefers table-driven tests")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, LocalDimensions)
}

func TestLocalEmbedder_SimilarTextCloser(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	base, _ := e.Embed(ctx, "user prefers tabs over spaces for indentation")
	near, _ := e.Embed(ctx, "user prefers tabs instead of spaces for indentation")
	far, _ := e.Embed(ctx, "deploy pipeline broke on the kafka consumer")

	assert.Greater(t, CosineSimilarity(base, near), CosineSimilarity(base, far))
}

func TestLocalEmbedder_UnitVectors(t *testing.T) {
	e := NewLocalEmbedder()
	vec, err := e.Embed(context.Background(), "normalize me")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, CosineSimilarity(vec, vec), 1e-5)
}

func TestLocalEmbedder_EmptyText(t *testing.T) {
	e := NewLocalEmbedder()
	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	assert.Len(t, vec, LocalDimensions)
}

func TestLocalEmbedder_CJK(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()
	base, _ := e.Embed(ctx, "用户偏好使用中文注释")
	near, _ := e.Embed(ctx, "用户偏好中文注释风格")
	far, _ := e.Embed(ctx, "数据库连接池已经耗尽")
	assert.Greater(t, CosineSimilarity(base, near), CosineSimilarity(base, far))
}

// countingEmbedder counts calls for cache tests.
type countingEmbedder struct {
	*LocalEmbedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.LocalEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_HitsSkipInner(t *testing.T) {
	inner := &countingEmbedder{LocalEmbedder: NewLocalEmbedder()}
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "same query")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "same query")
	require.NoError(t, err)

	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedder_BatchMixedHits(t *testing.T) {
	inner := NewLocalEmbedder()
	cached := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := cached.Embed(ctx, "a")
	require.NoError(t, err)

	vecs, err := cached.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, LocalDimensions)
	}
}

func TestOllamaEmbedder_HappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embedding: []float32{3, 4}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)

	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-5)
	assert.InDelta(t, 0.8, vec[1], 1e-5)
	assert.Equal(t, 2, e.Dimensions())
}

func TestOllamaEmbedder_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(OllamaConfig{BaseURL: srv.URL})
	_, err := e.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, memerr.CodeEmbeddingUnavailable, memerr.CodeOf(err))
	assert.True(t, memerr.IsRetryable(err))
}

func TestOpenAIEmbedder_BatchKeepsOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		var req openaiEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		// Answer out of order; the client must restore by index.
		resp := openaiEmbedResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{float32(i), 1}})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Zero(t, vecs[0][0])
	assert.InDelta(t, 1.0, vecs[0][1], 1e-5)
	// Raw [2,1] normalized: 2/sqrt(5).
	assert.InDelta(t, 0.8944, vecs[2][0], 1e-3)
}

func TestOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(OpenAIConfig{})
	require.Error(t, err)
	assert.Equal(t, memerr.CodeConfig, memerr.CodeOf(err))
}

func TestFactory_Providers(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "local", Dimension: 384, TimeoutSeconds: 30})
	require.NoError(t, err)
	assert.Equal(t, "hash-v1", e.ModelName())
	assert.Equal(t, LocalDimensions, e.Dimensions())

	_, err = New(config.EmbeddingConfig{Provider: "quantum"})
	assert.Error(t, err)
}
