package llm

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"multimodal-rag/internal/config"
)

// Params are the sampling parameters for one completion call.
type Params struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
	Seed             *int
}

// Turn is one prior chat message carried into the request.
type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// BuildMessages assembles the ordered message list: history first, then the
// current query as a single user message carrying the prompt text and the
// encoded images with their detail hint. Images beyond what the caller
// passes are the caller's concern; everything received here is sent.
func BuildMessages(promptText string, images [][]byte, imageDetail string, history []Turn) []llms.MessageContent {
	var messages []llms.MessageContent

	for _, turn := range history {
		role := llms.ChatMessageTypeHuman
		if turn.Role == "assistant" {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(turn.Content)},
		})
	}

	parts := []llms.ContentPart{llms.TextPart(promptText)}
	for _, img := range images {
		url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(img)
		parts = append(parts, llms.ImageURLWithDetailPart(url, imageDetail))
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: parts,
	})

	return messages
}

// Complete calls the chat endpoint and returns the answer text.
func Complete(ctx context.Context, cfg *config.LLMConfig, params Params, messages []llms.MessageContent) (string, error) {
	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return "", err
	}

	opts := []llms.CallOption{
		llms.WithTemperature(params.Temperature),
		llms.WithMaxTokens(params.MaxTokens),
		llms.WithTopP(params.TopP),
		llms.WithFrequencyPenalty(params.FrequencyPenalty),
		llms.WithPresencePenalty(params.PresencePenalty),
	}
	if params.Model != "" {
		opts = append(opts, llms.WithModel(params.Model))
	}
	if params.Seed != nil {
		opts = append(opts, llms.WithSeed(*params.Seed))
	}

	log.Info().Str("model", cfg.Model).Int("messages", len(messages)).Msg("Chat completion call")
	resp, err := model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	answer := resp.Choices[0].Content
	log.Info().Int("chars", len(answer)).Msg("Chat completion received")
	return answer, nil
}
