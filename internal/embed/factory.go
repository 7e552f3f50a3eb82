package embed

import (
	"time"

	"github.com/openclaw/openclaw-memory/internal/config"
	memerr "github.com/openclaw/openclaw-memory/internal/errors"
)

// New builds the embedder described by cfg, wrapped with an LRU cache.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second

	var inner Embedder
	switch cfg.Provider {
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimension,
			Timeout:    timeout,
		})
		if err != nil {
			return nil, err
		}
		inner = e
	case "ollama":
		inner = NewOllamaEmbedder(OllamaConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimension,
			Timeout:    timeout,
		})
	case "local":
		inner = NewLocalEmbedder()
	default:
		return nil, memerr.Newf(memerr.CodeConfig, "unknown embedding provider %q", cfg.Provider)
	}

	return NewCachedEmbedder(inner, DefaultCacheSize), nil
}
