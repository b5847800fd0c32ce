package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"multimodal-rag/internal/config"
	"multimodal-rag/internal/imagecache"
	"multimodal-rag/internal/models"
	"multimodal-rag/internal/store"
)

type fakeStore struct {
	chunks   []models.RankedChunk
	queryErr error
}

func (s *fakeStore) Upsert(context.Context, []store.Document) error { return nil }

func (s *fakeStore) Query(context.Context, []float32, int) ([]models.RankedChunk, error) {
	return s.chunks, s.queryErr
}

func (s *fakeStore) DeleteFile(context.Context, string) ([]string, error) { return nil, nil }

func (s *fakeStore) ListFiles(context.Context) (map[string]store.FileInfo, error) {
	return nil, nil
}

func (s *fakeStore) AllMetadata(context.Context) ([]models.ChunkMetadata, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

type stubEmbedder struct{ err error }

func (e stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)), e.err
}

func (e stubEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0.1, 0.2}, e.err
}

func newTestCache(t *testing.T, ids ...string) *imagecache.Cache {
	t.Helper()
	cache, err := imagecache.New(t.TempDir(), 100)
	require.NoError(t, err)
	for i, id := range ids {
		meta := models.ImageMetadata{FileName: "doc.pdf", Page: i + 1, Kind: string(models.ImageFullPage)}
		require.NoError(t, cache.Put(id, []byte("png-bytes-"+id), meta))
	}
	return cache
}

func rankedChunk(file string, page int, imageIDs ...string) models.RankedChunk {
	if imageIDs == nil {
		imageIDs = []string{}
	}
	return models.RankedChunk{
		Chunk: models.Chunk{
			Text: fmt.Sprintf("text of %s page %d", file, page),
			Metadata: models.ChunkMetadata{
				FileName:   file,
				Page:       page,
				TotalPages: 3,
				ImageIDs:   imageIDs,
				NumImages:  len(imageIDs),
			},
		},
		Score: 0.9,
	}
}

func newTestAssembler(t *testing.T, cache *imagecache.Cache, vs store.VectorStore, queryCfg config.QueryConfig) *Assembler {
	t.Helper()
	if queryCfg.TopK == 0 {
		queryCfg.TopK = 3
	}
	if queryCfg.MaxImages == 0 {
		queryCfg.MaxImages = 5
	}
	if queryCfg.ImageDetail == "" {
		queryCfg.ImageDetail = "high"
	}
	return New(cache, vs, stubEmbedder{}, &config.LLMConfig{}, queryCfg)
}

func lastMessage(t *testing.T, messages []llms.MessageContent) llms.MessageContent {
	t.Helper()
	require.NotEmpty(t, messages)
	return messages[len(messages)-1]
}

func TestAnswerTextOnlyWhenNoImages(t *testing.T) {
	vs := &fakeStore{chunks: []models.RankedChunk{rankedChunk("doc.pdf", 1)}}
	a := newTestAssembler(t, newTestCache(t), vs, config.QueryConfig{})

	var captured []llms.MessageContent
	a.complete = func(_ context.Context, messages []llms.MessageContent) (string, error) {
		captured = messages
		return "plain answer", nil
	}

	res := a.Answer(context.Background(), "what is this about?")
	require.True(t, res.Success)

	msg := lastMessage(t, captured)
	require.Len(t, msg.Parts, 1)
	_, ok := msg.Parts[0].(llms.TextContent)
	assert.True(t, ok, "expected a single text part")

	for _, seg := range res.Segments {
		assert.Equal(t, SegmentText, seg.Kind)
	}
}

func TestAnswerMarkerRoundTrip(t *testing.T) {
	ids := []string{"doc.pdf_p1_tfull_page", "doc.pdf_p2_tfull_page"}
	vs := &fakeStore{chunks: []models.RankedChunk{rankedChunk("doc.pdf", 1, ids...)}}
	a := newTestAssembler(t, newTestCache(t, ids...), vs, config.QueryConfig{})

	a.complete = func(context.Context, []llms.MessageContent) (string, error) {
		return "The chart in [image 2] shows growth.", nil
	}

	res := a.Answer(context.Background(), "growth?")
	require.True(t, res.Success)

	require.Len(t, res.Segments, 3)
	assert.Equal(t, Segment{Kind: SegmentText, Text: "The chart in "}, res.Segments[0])
	assert.Equal(t, SegmentImage, res.Segments[1].Kind)
	assert.Equal(t, 2, res.Segments[1].Number)
	assert.Equal(t, ids[1], res.Segments[1].ImageID)
	assert.Equal(t, Segment{Kind: SegmentText, Text: " shows growth."}, res.Segments[2])
}

func TestAnswerMaxImagesCapBeforeMarkers(t *testing.T) {
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc.pdf_p%d_tfull_page", i+1)
	}
	vs := &fakeStore{chunks: []models.RankedChunk{
		rankedChunk("doc.pdf", 1, ids[:3]...),
		rankedChunk("doc.pdf", 2, ids[3:]...),
	}}
	a := newTestAssembler(t, newTestCache(t, ids...), vs, config.QueryConfig{MaxImages: 2})

	var captured []llms.MessageContent
	a.complete = func(_ context.Context, messages []llms.MessageContent) (string, error) {
		captured = messages
		return "See [image 1] and [image 3].", nil
	}

	res := a.Answer(context.Background(), "figures?")
	require.True(t, res.Success)

	// exactly 2 images sent: one text part plus two image parts
	msg := lastMessage(t, captured)
	require.Len(t, msg.Parts, 3)
	prompt := msg.Parts[0].(llms.TextContent).Text
	assert.Contains(t, prompt, "[image 1]:")
	assert.Contains(t, prompt, "[image 2]:")
	assert.NotContains(t, prompt, "[image 3]")

	// [image 3] in the raw answer is visible as an unresolved reference
	var unresolved []Segment
	for _, seg := range res.Segments {
		if seg.Kind == SegmentUnresolved {
			unresolved = append(unresolved, seg)
		}
	}
	require.Len(t, unresolved, 1)
	assert.Equal(t, 3, unresolved[0].Number)
	assert.Equal(t, "[image 3]", unresolved[0].Text)
}

func TestAnswerSkipsMissingCacheEntries(t *testing.T) {
	vs := &fakeStore{chunks: []models.RankedChunk{
		rankedChunk("doc.pdf", 1, "doc.pdf_p1_tfull_page", "gone_p9_tfull_page"),
	}}
	a := newTestAssembler(t, newTestCache(t, "doc.pdf_p1_tfull_page"), vs, config.QueryConfig{})

	var captured []llms.MessageContent
	a.complete = func(_ context.Context, messages []llms.MessageContent) (string, error) {
		captured = messages
		return "ok", nil
	}

	res := a.Answer(context.Background(), "q")
	require.True(t, res.Success)

	msg := lastMessage(t, captured)
	assert.Len(t, msg.Parts, 2) // text + the one resolvable image
}

func TestAnswerEmptyChunkSetIsNotAnError(t *testing.T) {
	a := newTestAssembler(t, newTestCache(t), &fakeStore{}, config.QueryConfig{})

	var captured []llms.MessageContent
	a.complete = func(_ context.Context, messages []llms.MessageContent) (string, error) {
		captured = messages
		return "I have no context for that.", nil
	}

	res := a.Answer(context.Background(), "anything?")
	assert.True(t, res.Success)
	assert.Empty(t, res.SourceChunks)

	prompt := lastMessage(t, captured).Parts[0].(llms.TextContent).Text
	assert.Contains(t, prompt, "anything?")
	assert.NotContains(t, prompt, "[Source")
}

func TestAnswerPromptStructure(t *testing.T) {
	ids := []string{"a.pdf_p2_tembedded_i1_r1"}
	vs := &fakeStore{chunks: []models.RankedChunk{
		rankedChunk("a.pdf", 2, ids...),
		rankedChunk("b.pdf", 1),
	}}
	a := newTestAssembler(t, newTestCache(t, ids...), vs, config.QueryConfig{})

	var prompt string
	a.complete = func(_ context.Context, messages []llms.MessageContent) (string, error) {
		prompt = lastMessage(t, messages).Parts[0].(llms.TextContent).Text
		return "ok", nil
	}

	res := a.Answer(context.Background(), "what does the figure show?")
	require.True(t, res.Success)

	assert.Contains(t, prompt, "Question: what does the figure show?")
	assert.Contains(t, prompt, "[Source 1]\nFile: a.pdf\nPage: 2")
	assert.Contains(t, prompt, "[Source 2]\nFile: b.pdf\nPage: 1")
	assert.Contains(t, prompt, "text of a.pdf page 2")
	assert.Less(t, strings.Index(prompt, "[Source 1]"), strings.Index(prompt, "[Source 2]"))
}

func TestAnswerModelFailureDegrades(t *testing.T) {
	a := newTestAssembler(t, newTestCache(t), &fakeStore{}, config.QueryConfig{})

	wantErr := errors.New("connection refused")
	a.complete = func(context.Context, []llms.MessageContent) (string, error) {
		return "", wantErr
	}

	res := a.Answer(context.Background(), "q")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, wantErr)
	assert.NotContains(t, res.AnswerText, "connection refused")
	require.Len(t, res.Segments, 1)
	assert.Equal(t, SegmentText, res.Segments[0].Kind)

	// the failed answer still lands in history as an assistant turn
	assert.Equal(t, 2, a.History().Len())
	turns := a.History().Recent(1)
	assert.Equal(t, "assistant", turns[1].Role)
	assert.Equal(t, res.AnswerText, turns[1].Content)
}

func TestAnswerStoreFailureDegrades(t *testing.T) {
	vs := &fakeStore{queryErr: errors.New("store down")}
	a := newTestAssembler(t, newTestCache(t), vs, config.QueryConfig{})

	res := a.Answer(context.Background(), "q")
	assert.False(t, res.Success)
	assert.Error(t, res.Err)
}

func TestAnswerHistoryPrepended(t *testing.T) {
	a := newTestAssembler(t, newTestCache(t), &fakeStore{}, config.QueryConfig{UseHistory: true, HistoryTurns: 5})

	var calls [][]llms.MessageContent
	a.complete = func(_ context.Context, messages []llms.MessageContent) (string, error) {
		calls = append(calls, messages)
		return "answer", nil
	}

	a.Answer(context.Background(), "first")
	a.Answer(context.Background(), "second")

	require.Len(t, calls, 2)
	assert.Len(t, calls[0], 1)
	// second call carries the first exchange
	require.Len(t, calls[1], 3)
	assert.Equal(t, llms.ChatMessageTypeHuman, calls[1][0].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, calls[1][1].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, calls[1][2].Role)
}

func TestHistoryRecentTrims(t *testing.T) {
	h := NewHistory()
	assert.NotEmpty(t, h.SessionID)
	for i := 0; i < 4; i++ {
		h.Append("user", fmt.Sprintf("q%d", i))
		h.Append("assistant", fmt.Sprintf("a%d", i))
	}

	recent := h.Recent(2)
	require.Len(t, recent, 4)
	assert.Equal(t, "q2", recent[0].Content)
	assert.Equal(t, "a3", recent[3].Content)

	assert.Nil(t, h.Recent(0))
	h.Clear()
	assert.Equal(t, 0, h.Len())
}
