package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"pdf-chat/internal/config"
	"pdf-chat/internal/models"
)

// NewEmbedder creates the embedder selected by the embed_llm config section
func NewEmbedder(cfg *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        cfg.Provider,
		"base_url":        cfg.BaseURL,
		"embedding_model": cfg.Model,
	}).Msg("Loaded embedder config")

	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithEmbeddingModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai client: %w", err)
		}
		return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
		}
		return embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.BatchSize))
	case config.ProviderHash:
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

// GenerateEmbedding embeds every chunk. All vectors must share one dimension.
func GenerateEmbedding(ctx context.Context, embedder embeddings.Embedder, chunks []models.Chunk) ([]models.ChunkEmbedding, error) {
	if len(chunks) == 0 {
		return nil, models.ErrNoChunks
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, models.ServiceError("embed documents", err)
	}
	if len(vectors) != len(chunks) {
		return nil, models.ServiceError("embed documents", fmt.Errorf("got %d embeddings for %d chunks", len(vectors), len(chunks)))
	}

	dim := len(vectors[0])
	chunkEmbeddings := make([]models.ChunkEmbedding, len(chunks))
	for i, chunk := range chunks {
		if len(vectors[i]) == 0 || len(vectors[i]) != dim {
			return nil, models.ServiceError("embed documents", fmt.Errorf("chunk %d: embedding dimension %d, want %d", chunk.ChunkID, len(vectors[i]), dim))
		}
		chunkEmbeddings[i] = models.ChunkEmbedding{Chunk: chunk, Embedding: vectors[i]}
	}

	log.Debug().Int("chunks", len(chunks)).Int("dimensions", dim).Msg("Generated embeddings")
	return chunkEmbeddings, nil
}
