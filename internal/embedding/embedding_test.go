package embedding

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-rag/internal/models"
)

// fakeEmbedder records batch sizes and returns one vector per text
type fakeEmbedder struct {
	batches []int
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	f.batches = append(f.batches, len(texts))
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i]))}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text))}, nil
}

func TestBatchEmbedEmpty(t *testing.T) {
	out, err := BatchEmbed(context.Background(), &fakeEmbedder{}, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestBatchEmbedSingleBatch(t *testing.T) {
	f := &fakeEmbedder{}
	out, err := BatchEmbed(context.Background(), f, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []int{3}, f.batches)
	// order preserved
	assert.Equal(t, float32(1), out[0][0])
	assert.Equal(t, float32(2), out[1][0])
	assert.Equal(t, float32(3), out[2][0])
}

func TestBatchEmbedSplitsAtLimit(t *testing.T) {
	texts := make([]string, models.MaxEmbedBatch+5)
	for i := range texts {
		texts[i] = fmt.Sprintf("t%d", i)
	}

	f := &fakeEmbedder{}
	out, err := BatchEmbed(context.Background(), f, texts)
	require.NoError(t, err)
	assert.Len(t, out, len(texts))
	assert.Equal(t, []int{models.MaxEmbedBatch, 5}, f.batches)
}
