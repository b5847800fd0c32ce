package assembler

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"

	"multimodal-rag/internal/config"
	"multimodal-rag/internal/imagecache"
	"multimodal-rag/internal/llm"
	"multimodal-rag/internal/models"
	"multimodal-rag/internal/store"
)

// contextImage is one numbered image in the query-scoped prompt context.
type contextImage struct {
	id     string
	number int
	bytes  []byte
	meta   models.ImageMetadata
}

// AnswerResult is the outcome of one query. On failure Success is false and
// AnswerText carries the user-facing message; raw transport errors stay in
// Err for logging, never in the rendered output.
type AnswerResult struct {
	AnswerText   string
	Segments     []Segment
	SourceChunks []models.RankedChunk
	Success      bool
	Err          error
}

// Assembler answers free-form questions over the indexed corpus: it
// retrieves ranked chunks, rebuilds their text+image context, calls the
// model and renders the answer with inline markers resolved.
type Assembler struct {
	cache    *imagecache.Cache
	store    store.VectorStore
	embedder embeddings.Embedder
	llmCfg   *config.LLMConfig
	query    config.QueryConfig
	history  *History

	// swapped out in tests
	complete func(ctx context.Context, messages []llms.MessageContent) (string, error)
}

func New(cache *imagecache.Cache, vs store.VectorStore, embedder embeddings.Embedder, llmCfg *config.LLMConfig, queryCfg config.QueryConfig) *Assembler {
	a := &Assembler{
		cache:    cache,
		store:    vs,
		embedder: embedder,
		llmCfg:   llmCfg,
		query:    queryCfg,
		history:  NewHistory(),
	}
	a.complete = func(ctx context.Context, messages []llms.MessageContent) (string, error) {
		params := llm.Params{
			Temperature:      queryCfg.Temperature,
			MaxTokens:        queryCfg.MaxTokens,
			TopP:             queryCfg.TopP,
			FrequencyPenalty: queryCfg.FrequencyPenalty,
			PresencePenalty:  queryCfg.PresencePenalty,
			Seed:             queryCfg.Seed,
		}
		return llm.Complete(ctx, llmCfg, params, messages)
	}
	return a
}

func (a *Assembler) History() *History {
	return a.history
}

// Answer runs the full query flow. Every failure is converted into a
// structured result; the caller never sees a raw error alone, and a failed
// answer is still appended to the session history.
func (a *Assembler) Answer(ctx context.Context, query string) AnswerResult {
	result := a.answer(ctx, query)

	a.history.Append("user", query)
	a.history.Append("assistant", result.AnswerText)
	return result
}

func (a *Assembler) answer(ctx context.Context, query string) AnswerResult {
	queryEmbedding, err := a.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return a.fail("could not embed the query", err)
	}

	chunks, err := a.store.Query(ctx, queryEmbedding, a.query.TopK)
	if err != nil {
		return a.fail("could not search the document index", err)
	}
	log.Info().Int("chunks", len(chunks)).Str("query", query).Msg("Retrieved ranked chunks")

	prompt, images := a.buildContext(query, chunks)

	var history []llm.Turn
	if a.query.UseHistory {
		history = a.history.Recent(a.query.HistoryTurns)
	}

	imageBytes := make([][]byte, len(images))
	for i, img := range images {
		imageBytes[i] = img.bytes
	}
	messages := llm.BuildMessages(prompt, imageBytes, a.query.ImageDetail, history)

	answer, err := a.complete(ctx, messages)
	if err != nil {
		return a.fail("the model call failed", err)
	}

	return AnswerResult{
		AnswerText:   answer,
		Segments:     ParseAnswer(answer, images),
		SourceChunks: chunks,
		Success:      true,
	}
}

func (a *Assembler) fail(msg string, err error) AnswerResult {
	log.Error().Err(err).Msg(msg)
	text := fmt.Sprintf("Sorry, the question could not be answered: %s.", msg)
	return AnswerResult{
		AnswerText: text,
		Segments:   []Segment{{Kind: SegmentText, Text: text}},
		Err:        err,
	}
}

// buildContext assembles the prompt text and the numbered image list for one
// query. Image numbers are a single strictly increasing counter across all
// chunks, assigned in chunk order then discovery order, and the maxImages
// cap is applied before any marker is placed, so the prompt never references
// an image that was not sent.
func (a *Assembler) buildContext(query string, chunks []models.RankedChunk) (string, []contextImage) {
	var sb strings.Builder
	fmt.Fprintf(&sb, models.PromptHeaderTemplate, query)

	var images []contextImage
	for i, chunk := range chunks {
		sb.WriteString(models.ContextSeparator)
		fmt.Fprintf(&sb, models.SourceHeaderTemplate, i+1, chunk.Metadata.FileName, chunk.Metadata.Page)
		sb.WriteString(chunk.Text)

		for _, id := range chunk.Metadata.ImageIDs {
			if len(images) >= a.query.MaxImages {
				break
			}
			data, meta, err := a.cache.Get(id)
			if err != nil {
				log.Warn().Err(err).Str("id", id).Msg("Image referenced by chunk not in cache, skipping")
				continue
			}
			img := contextImage{
				id:     id,
				number: len(images) + 1,
				bytes:  data,
				meta:   meta,
			}
			images = append(images, img)
			fmt.Fprintf(&sb, models.ImageLineTemplate, img.number, meta.FileName, meta.Page)
		}
	}

	if len(images) > 0 {
		sb.WriteString(models.PromptFooterText)
	}
	log.Info().Int("images", len(images)).Int("chunks", len(chunks)).Msg("Prompt context assembled")
	return sb.String(), images
}
