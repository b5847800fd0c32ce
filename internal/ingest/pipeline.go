package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"multimodal-rag/internal/config"
	"multimodal-rag/internal/embedding"
	"multimodal-rag/internal/imagecache"
	"multimodal-rag/internal/models"
	"multimodal-rag/internal/parser"
	"multimodal-rag/internal/store"
)

const (
	minWorkers = 1
	maxWorkers = 5
)

// FileResult is the immutable per-file outcome a worker hands back.
type FileResult struct {
	FileName string
	Success  bool
	Pages    int
	Images   int
	Chunks   []models.Chunk
	Err      error
}

// Report summarizes one ingestion run: which files succeeded, which failed
// and why, and how many chunks were indexed.
type Report struct {
	Results     []FileResult
	TotalChunks int
}

func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

func (r *Report) Failed() []FileResult {
	var failed []FileResult
	for _, res := range r.Results {
		if !res.Success {
			failed = append(failed, res)
		}
	}
	return failed
}

// Pipeline turns a directory of mixed files into chunked, image-annotated,
// embedded records in the vector store. The image cache and the results
// channel are the only state shared between workers.
type Pipeline struct {
	cache        *imagecache.Cache
	store        store.VectorStore
	embedder     embeddings.Embedder
	method       models.ExtractionMethod
	dpi          int
	minImageSize int
	workers      int

	// swapped out in tests
	processFile func(path string) FileResult
}

// New wires a pipeline from its collaborators.
func New(cache *imagecache.Cache, vs store.VectorStore, embedder embeddings.Embedder, cfg *config.IngestConfig) (*Pipeline, error) {
	method, err := models.ParseExtractionMethod(cfg.ExtractionMethod)
	if err != nil {
		return nil, err
	}

	workers := cfg.MaxWorkers
	if workers < minWorkers {
		workers = minWorkers
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	p := &Pipeline{
		cache:        cache,
		store:        vs,
		embedder:     embedder,
		method:       method,
		dpi:          cfg.DPI,
		minImageSize: cfg.MinImageSize,
		workers:      workers,
	}
	p.processFile = p.processPDF
	return p, nil
}

// Ingest runs the whole pipeline over a directory. Per-file failures are
// reported in the Report; only pipeline-level preconditions or collaborator
// failures return an error.
func (p *Pipeline) Ingest(ctx context.Context, dir string) (*Report, error) {
	if p.store == nil {
		return nil, ErrNoStore
	}

	pdfFiles, textFiles, err := enumerate(dir)
	if err != nil {
		return nil, err
	}
	if len(pdfFiles)+len(textFiles) == 0 {
		return nil, ErrNoFiles
	}
	log.Info().Int("pdf", len(pdfFiles)).Int("text", len(textFiles)).Str("dir", dir).Msg("Starting ingestion")

	report := &Report{}

	// fan out PDF work to a bounded pool; every submitted file produces
	// exactly one result, matched back by name, in arbitrary order
	if len(pdfFiles) > 0 {
		results := p.runWorkers(pdfFiles)
		for res := range results {
			report.Results = append(report.Results, res)
		}
	}

	// text-like files are processed sequentially after the join
	for _, path := range textFiles {
		report.Results = append(report.Results, p.processTextLike(path))
	}

	// stable report order regardless of worker completion order
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].FileName < report.Results[j].FileName
	})

	var chunks []models.Chunk
	for _, res := range report.Results {
		if res.Success {
			chunks = append(chunks, res.Chunks...)
		}
	}
	if len(chunks) == 0 {
		return report, ErrNoChunks
	}
	report.TotalChunks = len(chunks)

	if err := p.index(ctx, chunks); err != nil {
		return report, err
	}

	log.Info().Int("chunks", len(chunks)).Int("ok", report.Succeeded()).Int("failed", len(report.Failed())).Msg("Ingestion complete")
	return report, nil
}

func (p *Pipeline) runWorkers(paths []string) <-chan FileResult {
	jobs := make(chan string)
	results := make(chan FileResult, len(paths))

	workers := p.workers
	if workers > len(paths) {
		workers = len(paths)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- p.processFile(path)
			}
		}()
	}

	go func() {
		for _, path := range paths {
			jobs <- path
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	return results
}

func (p *Pipeline) processTextLike(path string) FileResult {
	fileName := filepath.Base(path)
	chunks, err := parser.ParseFile(path)
	if err != nil {
		log.Error().Err(err).Str("file", fileName).Msg("Failed to process text file")
		return FileResult{FileName: fileName, Err: err}
	}
	log.Info().Str("file", fileName).Int("chunks", len(chunks)).Msg("Text file processed")
	return FileResult{
		FileName: fileName,
		Success:  true,
		Pages:    len(chunks),
		Chunks:   chunks,
	}
}

// index embeds all chunk texts (batched) and upserts them with their
// serialized metadata.
func (p *Pipeline) index(ctx context.Context, chunks []models.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := embedding.BatchEmbed(ctx, p.embedder, texts)
	if err != nil {
		return err
	}

	docs := make([]store.Document, len(chunks))
	for i, c := range chunks {
		meta, err := models.EncodeMetadata(c.Metadata)
		if err != nil {
			return err
		}
		docs[i] = store.Document{
			ID:        store.ChunkDocID(c.Metadata.FileName, c.Metadata.Page),
			Content:   c.Text,
			Metadata:  meta,
			Embedding: vectors[i],
		}
	}
	return p.store.Upsert(ctx, docs)
}

func enumerate(dir string) (pdfFiles, textFiles []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, &IngestionError{Reason: "cannot read directory: " + err.Error()}
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		ext := strings.ToLower(filepath.Ext(e.Name()))
		switch {
		case ext == ".pdf":
			pdfFiles = append(pdfFiles, path)
		case parser.TextLikeExts[ext]:
			textFiles = append(textFiles, path)
		}
	}
	sort.Strings(pdfFiles)
	sort.Strings(textFiles)
	return pdfFiles, textFiles, nil
}
