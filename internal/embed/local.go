package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// LocalDimensions is the vector size of the hash embedder.
const LocalDimensions = 384

// LocalEmbedder generates embeddings with feature hashing: no network, no
// model download, deterministic output. Semantic quality is reduced but
// lexically similar memories still land close together, which is enough for
// the reinforcement and conflict thresholds to work offline.
type LocalEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// Feature weights. Word tokens dominate; character trigrams catch typos and
// inflected forms; CJK bigrams stand in for word segmentation.
const (
	wordWeight    = 0.7
	trigramWeight = 0.3
	trigramSize   = 3
)

var wordRe = regexp.MustCompile(`[a-zA-Z0-9]+`)

// fillerWords carry no memory signal and are dropped before hashing.
var fillerWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"to": true, "of": true, "in": true, "and": true, "or": true,
	"for": true, "on": true, "with": true, "that": true, "this": true,
}

// NewLocalEmbedder creates a hash-based embedder.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{}
}

var _ Embedder = (*LocalEmbedder)(nil)

// Embed generates an embedding for a single text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, LocalDimensions), nil
	}
	return normalizeVector(e.generate(trimmed)), nil
}

// generate builds the raw feature-hash vector.
func (e *LocalEmbedder) generate(text string) []float32 {
	vector := make([]float32, LocalDimensions)

	for _, token := range localTokens(text) {
		vector[hashToIndex(token)] += wordWeight
	}
	normalized := stripNonAlnum(text)
	for i := 0; i+trigramSize <= len(normalized); i++ {
		vector[hashToIndex(normalized[i:i+trigramSize])] += trigramWeight
	}
	return vector
}

// localTokens extracts lowercase word tokens plus CJK bigrams.
func localTokens(text string) []string {
	var tokens []string
	for _, w := range wordRe.FindAllString(text, -1) {
		lower := strings.ToLower(w)
		if !fillerWords[lower] {
			tokens = append(tokens, lower)
		}
	}

	var cjk []rune
	for _, r := range text {
		if unicode.Is(unicode.Han, r) {
			cjk = append(cjk, r)
		}
	}
	for _, r := range cjk {
		tokens = append(tokens, string(r))
	}
	for i := 0; i+1 < len(cjk); i++ {
		tokens = append(tokens, string(cjk[i:i+2]))
	}
	return tokens
}

// stripNonAlnum lowercases and drops everything but letters and digits.
func stripNonAlnum(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if r < 128 && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hashToIndex maps a feature to a vector slot with FNV-64.
func hashToIndex(s string) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(LocalDimensions))
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = vec
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *LocalEmbedder) Dimensions() int { return LocalDimensions }

// ModelName returns the model identifier.
func (e *LocalEmbedder) ModelName() string { return "hash-v1" }

// Available is always true for the local embedder.
func (e *LocalEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
