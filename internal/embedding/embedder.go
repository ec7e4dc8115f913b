// Package embedding turns item text into vectors: ONNX models, OpenAI-compatible
// HTTP APIs, and a feature-hashing fallback, with an LRU cache in front.
package embedding

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/simgroup/internal/config"
)

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Provider names accepted in embedding.provider.
const (
	ProviderONNX = "onnx"
	ProviderAPI  = "api"
	ProviderHash = "hash"
)

// New builds the embedder selected by cfg.Provider and wraps it in a cache when
// cfg.CacheSize > 0. An ONNX embedder that cannot be created (no cgo, missing model)
// falls back to the hashing embedder with a warning.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var base Embedder
	switch cfg.Provider {
	case ProviderONNX, "":
		onnx, err := NewONNXEmbedder(ONNXOptions{
			ModelPath:   cfg.ModelPath,
			LibraryPath: cfg.ONNXLibraryPath,
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
			PoolTokens:  cfg.PoolTokens,
		})
		if err != nil {
			logger.Warn("onnx embedder unavailable, falling back to hashing embedder",
				zap.String("model_path", cfg.ModelPath), zap.Error(err))
			base = NewHashingEmbedder(cfg.Dimensions)
		} else {
			base = onnx
		}
	case ProviderAPI:
		if cfg.APIEndpoint == "" {
			return nil, fmt.Errorf("embedding.api_endpoint is required for provider %q", ProviderAPI)
		}
		base = NewAPIEmbedder(cfg.APIEndpoint, cfg.APIKey, cfg.APIModel, cfg.Dimensions, cfg.APIBatchSize)
	case ProviderHash:
		base = NewHashingEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: onnx, api, hash)", cfg.Provider)
	}
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(base, cfg.CacheSize), nil
	}
	return base, nil
}
