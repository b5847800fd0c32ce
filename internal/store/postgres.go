package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"multimodal-rag/internal/config"
	"multimodal-rag/internal/models"
)

type chunkRow struct {
	bun.BaseModel `bun:"table:chunks,alias:c"`
	ID            int64     `bun:"id,pk,autoincrement"`
	DocID         string    `bun:"doc_id,notnull,unique"`
	Content       string    `bun:"content,notnull"`
	Embedding     []float32 `bun:"embedding,notnull,type:vector(768)"`
	FileName      string    `bun:"file_name,notnull"`
	Page          int       `bun:"page,notnull"`
	TotalPages    int       `bun:"total_pages,notnull"`
	ImageIDs      string    `bun:"image_ids,notnull,default:'[]'"`
	NumImages     int       `bun:"num_images,notnull,default:0"`
}

// PostgresStore persists chunks in a pgvector-enabled Postgres.
type PostgresStore struct {
	db *bun.DB
}

// NewPostgresStore connects and ensures the chunks table exists.
func NewPostgresStore(ctx context.Context, cfg *config.PostgresConfig) (*PostgresStore, error) {
	dsn := cfg.URL + "?sslmode=disable"
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn), pgdriver.WithPassword(cfg.Password)))

	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if _, err := db.NewCreateTable().Model((*chunkRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create chunks table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	rows := make([]chunkRow, len(docs))
	for i, d := range docs {
		m := models.DecodeMetadata(d.Metadata)
		rows[i] = chunkRow{
			DocID:      d.ID,
			Content:    d.Content,
			Embedding:  d.Embedding,
			FileName:   m.FileName,
			Page:       m.Page,
			TotalPages: m.TotalPages,
			ImageIDs:   d.Metadata[models.MetaImageIDs],
			NumImages:  m.NumImages,
		}
		if rows[i].ImageIDs == "" {
			rows[i].ImageIDs = "[]"
		}
	}

	_, err := s.db.NewInsert().
		Model(&rows).
		On("CONFLICT (doc_id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("embedding = EXCLUDED.embedding").
		Set("file_name = EXCLUDED.file_name").
		Set("page = EXCLUDED.page").
		Set("total_pages = EXCLUDED.total_pages").
		Set("image_ids = EXCLUDED.image_ids").
		Set("num_images = EXCLUDED.num_images").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

func (s *PostgresStore) Query(ctx context.Context, queryEmbedding []float32, topK int) ([]models.RankedChunk, error) {
	var rows []chunkRow
	err := s.db.NewSelect().
		Model(&rows).
		OrderExpr("embedding <-> ?", queryEmbedding).
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	ranked := make([]models.RankedChunk, 0, len(rows))
	for _, r := range rows {
		ranked = append(ranked, models.RankedChunk{Chunk: rowToChunk(r)})
	}
	return ranked, nil
}

func (s *PostgresStore) DeleteFile(ctx context.Context, fileName string) ([]string, error) {
	var rows []chunkRow
	if err := s.db.NewSelect().Model(&rows).Where("file_name = ?", fileName).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load chunks for %s: %w", fileName, err)
	}

	var imageIDs []string
	for _, r := range rows {
		imageIDs = append(imageIDs, decodeImageIDs(r.ImageIDs)...)
	}

	if _, err := s.db.NewDelete().Model((*chunkRow)(nil)).Where("file_name = ?", fileName).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to delete chunks for %s: %w", fileName, err)
	}
	return imageIDs, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context) (map[string]FileInfo, error) {
	var rows []chunkRow
	if err := s.db.NewSelect().Model(&rows).Column("file_name", "page", "num_images").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}

	files := make(map[string]FileInfo)
	pages := make(map[string]map[int]bool)
	for _, r := range rows {
		info := files[r.FileName]
		info.ChunkCount++
		info.ImageCount += r.NumImages
		if pages[r.FileName] == nil {
			pages[r.FileName] = make(map[int]bool)
		}
		pages[r.FileName][r.Page] = true
		info.PageCount = len(pages[r.FileName])
		files[r.FileName] = info
	}
	return files, nil
}

func (s *PostgresStore) AllMetadata(ctx context.Context) ([]models.ChunkMetadata, error) {
	var rows []chunkRow
	if err := s.db.NewSelect().Model(&rows).ExcludeColumn("embedding", "content").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load metadata: %w", err)
	}

	metas := make([]models.ChunkMetadata, 0, len(rows))
	for _, r := range rows {
		metas = append(metas, rowToChunk(r).Metadata)
	}
	return metas, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func rowToChunk(r chunkRow) models.Chunk {
	ids := decodeImageIDs(r.ImageIDs)
	return models.Chunk{
		Text: r.Content,
		Metadata: models.ChunkMetadata{
			FileName:   r.FileName,
			Page:       r.Page,
			TotalPages: r.TotalPages,
			ImageIDs:   ids,
			NumImages:  len(ids),
		},
	}
}

func decodeImageIDs(raw string) []string {
	ids := []string{}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &ids)
	}
	return ids
}

var _ VectorStore = (*PostgresStore)(nil)
