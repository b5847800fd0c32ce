package store

import (
	"context"
	"strconv"

	"multimodal-rag/internal/models"
)

// Document is one persisted chunk with its pre-computed embedding.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]string
	Embedding []float32
}

// FileInfo summarizes one indexed source file.
type FileInfo struct {
	ChunkCount int
	PageCount  int
	ImageCount int
}

// VectorStore is the persistence collaborator. Metadata values are plain
// strings; the image-id list rides inside one as a JSON array.
type VectorStore interface {
	// Upsert adds or replaces documents by id.
	Upsert(ctx context.Context, docs []Document) error
	// Query returns the topK most similar chunks for the query embedding.
	Query(ctx context.Context, queryEmbedding []float32, topK int) ([]models.RankedChunk, error)
	// DeleteFile removes every chunk belonging to a source file and
	// returns the image ids those chunks referenced.
	DeleteFile(ctx context.Context, fileName string) ([]string, error)
	// ListFiles summarizes the indexed files.
	ListFiles(ctx context.Context) (map[string]FileInfo, error)
	// AllMetadata returns every stored chunk's metadata, e.g. for
	// rebuilding the image cache registry after a restart.
	AllMetadata(ctx context.Context) ([]models.ChunkMetadata, error)
	Close() error
}

// ChunkDocID is the deterministic store id for a page chunk.
func ChunkDocID(fileName string, page int) string {
	return fileName + "_p" + strconv.Itoa(page)
}
