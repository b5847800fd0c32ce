package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"

	"multimodal-rag/internal/config"
	"multimodal-rag/internal/models"
)

const chromemCompress = false

// ChromemStore is the embedded vector store backend. chromem-go has no
// scan-all API, so the store keeps a sidecar manifest (doc id -> metadata)
// persisted next to the database; ListFiles, AllMetadata and DeleteFile
// are answered from it.
type ChromemStore struct {
	db            *chromem.DB
	collection    *chromem.Collection
	dbPath        string
	inMemory      bool
	encryptionKey string

	mu       sync.Mutex
	manifest map[string]map[string]string
}

// NewChromemStore opens (or creates) the database and collection.
func NewChromemStore(cfg *config.ChromemConfig) (*ChromemStore, error) {
	var db *chromem.DB
	var err error
	if cfg.InMemory {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(cfg.Path, chromemCompress)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %v", err)
	}

	s := &ChromemStore{
		db:            db,
		collection:    collection,
		dbPath:        cfg.Path,
		inMemory:      cfg.InMemory,
		encryptionKey: cfg.EncryptionKey,
		manifest:      make(map[string]map[string]string),
	}
	if !cfg.InMemory {
		if err := s.loadManifest(); err != nil {
			log.Warn().Err(err).Msg("Could not load store manifest, starting empty")
		}
	}
	return s, nil
}

func (s *ChromemStore) manifestPath() string {
	return filepath.Join(s.dbPath, "manifest.json")
}

func (s *ChromemStore) loadManifest() error {
	data, err := os.ReadFile(s.manifestPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.Unmarshal(data, &s.manifest)
}

func (s *ChromemStore) saveManifestLocked() error {
	if s.inMemory {
		return nil
	}
	data, err := json.Marshal(s.manifest)
	if err != nil {
		return err
	}
	return os.WriteFile(s.manifestPath(), data, 0o644)
}

// Upsert adds or replaces documents. chromem treats AddDocuments with an
// existing id as a replace, so the call is idempotent per doc id.
func (s *ChromemStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	chromemDocs := make([]chromem.Document, len(docs))
	for i, d := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        d.ID,
			Content:   d.Content,
			Metadata:  d.Metadata,
			Embedding: d.Embedding,
		}
	}
	if err := s.collection.AddDocuments(ctx, chromemDocs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("failed to add documents: %v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		s.manifest[d.ID] = d.Metadata
	}
	if err := s.saveManifestLocked(); err != nil {
		return fmt.Errorf("failed to persist manifest: %v", err)
	}
	return nil
}

// Query performs a similarity search with a pre-computed query embedding.
func (s *ChromemStore) Query(ctx context.Context, queryEmbedding []float32, topK int) ([]models.RankedChunk, error) {
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding must be provided")
	}
	if n := s.collection.Count(); topK > n {
		topK = n
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := s.collection.QueryWithOptions(ctx, chromem.QueryOptions{
		QueryEmbedding: queryEmbedding,
		NResults:       topK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %v", err)
	}

	ranked := make([]models.RankedChunk, 0, len(results))
	for _, r := range results {
		ranked = append(ranked, models.RankedChunk{
			Chunk: models.Chunk{
				Text:     r.Content,
				Metadata: models.DecodeMetadata(r.Metadata),
			},
			Score: r.Similarity,
		})
	}
	return ranked, nil
}

// DeleteFile removes every chunk of a source file and reports the image
// ids those chunks carried so the caller can drop them from the cache.
func (s *ChromemStore) DeleteFile(ctx context.Context, fileName string) ([]string, error) {
	if err := s.collection.Delete(ctx, map[string]string{models.MetaFileName: fileName}, nil); err != nil {
		return nil, fmt.Errorf("failed to delete documents for %s: %v", fileName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var imageIDs []string
	for id, meta := range s.manifest {
		if meta[models.MetaFileName] != fileName {
			continue
		}
		imageIDs = append(imageIDs, models.DecodeMetadata(meta).ImageIDs...)
		delete(s.manifest, id)
	}
	if err := s.saveManifestLocked(); err != nil {
		return nil, fmt.Errorf("failed to persist manifest: %v", err)
	}
	log.Info().Str("file", fileName).Int("images", len(imageIDs)).Msg("Deleted file from store")
	return imageIDs, nil
}

// ListFiles summarizes indexed files from the manifest.
func (s *ChromemStore) ListFiles(ctx context.Context) (map[string]FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files := make(map[string]FileInfo)
	pages := make(map[string]map[int]bool)
	for _, meta := range s.manifest {
		m := models.DecodeMetadata(meta)
		info := files[m.FileName]
		info.ChunkCount++
		info.ImageCount += m.NumImages
		if pages[m.FileName] == nil {
			pages[m.FileName] = make(map[int]bool)
		}
		pages[m.FileName][m.Page] = true
		info.PageCount = len(pages[m.FileName])
		files[m.FileName] = info
	}
	return files, nil
}

// AllMetadata returns every stored chunk's decoded metadata.
func (s *ChromemStore) AllMetadata(ctx context.Context) ([]models.ChunkMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	metas := make([]models.ChunkMetadata, 0, len(s.manifest))
	for _, meta := range s.manifest {
		metas = append(metas, models.DecodeMetadata(meta))
	}
	return metas, nil
}

// Export writes an encrypted snapshot of the collection. Only meaningful
// for in-memory databases; persistent ones are already on disk.
func (s *ChromemStore) Export(ctx context.Context) error {
	if s.encryptionKey == "" {
		return fmt.Errorf("encryption key is required")
	}
	path := filepath.Join(s.dbPath, s.collection.Name+".chromem")
	if err := s.db.ExportToFile(path, chromemCompress, s.encryptionKey, s.collection.Name); err != nil {
		return fmt.Errorf("failed to export database: %v", err)
	}
	return nil
}

func (s *ChromemStore) Close() error { return nil }

var _ VectorStore = (*ChromemStore)(nil)
