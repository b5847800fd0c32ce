package embedding

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"multimodal-rag/internal/config"
	"multimodal-rag/internal/models"
)

// NewEmbedder creates an embedder against an OpenAI-compatible endpoint.
func NewEmbedder(cfg *config.LLMConfig) (*embeddings.EmbedderImpl, error) {
	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, err
	}
	return embeddings.NewEmbedder(llm)
}

// BatchEmbed embeds all texts, batching requests at the endpoint's limit.
// Output order matches input order.
func BatchEmbed(ctx context.Context, embedder embeddings.Embedder, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += models.MaxEmbedBatch {
		end := start + models.MaxEmbedBatch
		if end > len(texts) {
			end = len(texts)
		}
		log.Debug().Int("from", start).Int("to", end).Msg("Embedding batch")
		vectors, err := embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}
