package ingest

import (
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"multimodal-rag/internal/extractor"
	"multimodal-rag/internal/models"
)

// processPDF handles one PDF in isolation: validation, text extraction,
// image extraction, cache population and chunk construction. Any failure is
// captured in the result, never propagated, so sibling files keep going.
func (p *Pipeline) processPDF(path string) FileResult {
	fileName := filepath.Base(path)
	log.Info().Str("file", fileName).Msg("Processing PDF")

	if err := extractor.ValidatePDF(path); err != nil {
		return FileResult{FileName: fileName, Err: err}
	}

	totalPages, err := extractor.PageCount(path)
	if err != nil {
		return FileResult{FileName: fileName, Err: err}
	}

	pageTexts, err := extractor.ExtractText(path)
	if err != nil {
		return FileResult{FileName: fileName, Err: err}
	}

	images, err := extractor.ExtractImages(path, p.method, p.dpi, p.minImageSize)
	if err != nil {
		return FileResult{FileName: fileName, Err: err}
	}

	// cache every image and group ids by page, preserving discovery order
	imageIDsByPage := make(map[int][]string)
	cached := 0
	for _, img := range images {
		meta := models.ImageMetadata{
			FileName: img.SourceFile,
			Page:     img.Page,
			Kind:     string(img.Kind),
		}
		if err := p.cache.Put(img.ID, img.Bytes, meta); err != nil {
			log.Error().Err(err).Str("id", img.ID).Msg("Failed to cache image, dropping it from the page")
			continue
		}
		imageIDsByPage[img.Page] = append(imageIDsByPage[img.Page], img.ID)
		cached++
	}

	// one chunk per page, ascending page order
	pages := make([]int, 0, len(pageTexts))
	for page := range pageTexts {
		pages = append(pages, page)
	}
	sort.Ints(pages)

	chunks := make([]models.Chunk, 0, len(pages))
	for _, page := range pages {
		ids := imageIDsByPage[page]
		if ids == nil {
			ids = []string{}
		}
		chunks = append(chunks, models.Chunk{
			Text: pageTexts[page],
			Metadata: models.ChunkMetadata{
				FileName:   fileName,
				Page:       page,
				TotalPages: totalPages,
				ImageIDs:   ids,
				NumImages:  len(ids),
			},
		})
	}

	log.Info().Str("file", fileName).Int("chunks", len(chunks)).Int("images", cached).Msg("PDF processed")
	return FileResult{
		FileName: fileName,
		Success:  true,
		Pages:    totalPages,
		Images:   cached,
		Chunks:   chunks,
	}
}
