package extractor

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	_ "image/gif"
	_ "image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog/log"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"multimodal-rag/internal/models"
)

const (
	// DefaultMinImageSize filters decorative hairlines and rules
	DefaultMinImageSize = 100

	maxAspectRatio = 10.0
	minAspectRatio = 0.1

	combinedDPI = 200
	mediumDPI   = 150
	// DefaultDPI is the high-quality full-page rendering resolution
	DefaultDPI = 300
)

// ExtractImages runs the image extraction strategy selected by method and
// returns every extracted image tagged with its 1-based source page.
// "combined" is full-page at dpi 200 unioned with embedded extraction;
// "medium_quality" is full-page at dpi 150. Unknown methods fall back to
// high quality, mirroring the run-time-selectable behavior.
func ExtractImages(path string, method models.ExtractionMethod, dpi, minSize int) ([]models.ImageRecord, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	log.Info().Str("file", filepath.Base(path)).Str("method", string(method)).Int("dpi", dpi).Msg("Starting image extraction")

	switch method {
	case models.MethodHighQuality:
		return extractFullPage(path, dpi)
	case models.MethodMediumQuality:
		return extractFullPage(path, mediumDPI)
	case models.MethodEmbedded:
		return extractEmbedded(path, minSize)
	case models.MethodCombined:
		pageImages, err := extractFullPage(path, combinedDPI)
		if err != nil {
			return nil, err
		}
		embedded, err := extractEmbedded(path, minSize)
		if err != nil {
			return nil, err
		}
		log.Info().Int("pages", len(pageImages)).Int("embedded", len(embedded)).Msg("Combined extraction done")
		return append(pageImages, embedded...), nil
	default:
		log.Warn().Str("method", string(method)).Msg("Unknown extraction method, using high quality")
		return extractFullPage(path, dpi)
	}
}

// extractFullPage rasterizes every page at the given resolution. A failure
// on an individual page is logged and skipped, never aborting the document.
func extractFullPage(path string, dpi int) ([]models.ImageRecord, error) {
	fileName := filepath.Base(path)

	doc, err := fitz.New(path)
	if err != nil {
		return nil, NewError(KindMalformed, fileName, "failed to open PDF for rasterization", err)
	}
	defer doc.Close()

	var records []models.ImageRecord
	total := doc.NumPage()
	for i := 0; i < total; i++ {
		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			log.Error().Err(err).Int("page", i+1).Str("file", fileName).Msg("Failed to rasterize page")
			continue
		}
		data, err := encodePNG(img)
		if err != nil {
			log.Error().Err(err).Int("page", i+1).Str("file", fileName).Msg("Failed to encode page image")
			continue
		}
		page := i + 1
		records = append(records, models.ImageRecord{
			ID:         models.ImageID(fileName, page, models.ImageFullPage, 0, 0),
			Page:       page,
			Kind:       models.ImageFullPage,
			Bytes:      data,
			SourceFile: fileName,
		})
		log.Debug().Int("page", page).Int("total", total).Str("file", fileName).Msg("Rasterized page")
	}

	log.Info().Int("images", len(records)).Str("file", fileName).Msg("Full-page extraction done")
	return records, nil
}

// extractEmbedded enumerates embedded raster objects per page and keeps the
// ones that pass the size and aspect-ratio filters. Objects in exotic color
// spaces are normalized to RGB; an object that cannot be decoded at all is
// skipped without failing the rest of the page.
func extractEmbedded(path string, minSize int) ([]models.ImageRecord, error) {
	fileName := filepath.Base(path)
	if minSize <= 0 {
		minSize = DefaultMinImageSize
	}

	tmpDir, err := os.MkdirTemp("", "embedded-images-")
	if err != nil {
		return nil, NewError(KindMalformed, fileName, "failed to create temp dir", err)
	}
	defer os.RemoveAll(tmpDir)

	// pdfcpu names its outputs after the input file, so extraction runs
	// against a copy with a fixed base name to keep page parsing simple.
	src := filepath.Join(tmpDir, "img.pdf")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(KindMalformed, fileName, "failed to read PDF", err)
	}
	if err := os.WriteFile(src, data, 0o644); err != nil {
		return nil, NewError(KindMalformed, fileName, "failed to stage PDF for extraction", err)
	}

	outDir := filepath.Join(tmpDir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, NewError(KindMalformed, fileName, "failed to create output dir", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractImagesFile(src, outDir, nil, conf); err != nil {
		return nil, NewError(KindMalformed, fileName, "embedded image extraction failed", err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, NewError(KindMalformed, fileName, "failed to list extracted images", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	// deterministic per-page object indices
	sort.Strings(names)

	var records []models.ImageRecord
	perPageIndex := make(map[int]int)
	for _, name := range names {
		page, ok := pageFromImageFile(name)
		if !ok {
			log.Warn().Str("file", name).Msg("Unrecognized extracted image name, skipping")
			continue
		}

		raw, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Failed to read extracted image, skipping")
			continue
		}

		img, _, err := image.Decode(bytes.NewReader(raw))
		if err != nil {
			log.Warn().Err(err).Int("page", page).Str("object", name).Msg("Failed to decode embedded image, skipping placement")
			continue
		}

		b := img.Bounds()
		if !keepEmbedded(b.Dx(), b.Dy(), minSize) {
			log.Debug().Int("page", page).Int("w", b.Dx()).Int("h", b.Dy()).Msg("Embedded image filtered out, skipping")
			continue
		}

		encoded, err := encodePNG(normalizeRGB(img))
		if err != nil {
			log.Warn().Err(err).Int("page", page).Str("object", name).Msg("Failed to re-encode embedded image, skipping placement")
			continue
		}

		perPageIndex[page]++
		index := perPageIndex[page]
		records = append(records, models.ImageRecord{
			ID:         models.ImageID(fileName, page, models.ImageEmbedded, index, 1),
			Page:       page,
			Kind:       models.ImageEmbedded,
			Bytes:      encoded,
			SourceFile: fileName,
			Index:      index,
			RectIndex:  1,
		})
	}

	log.Info().Int("images", len(records)).Str("file", fileName).Msg("Embedded extraction done")
	return records, nil
}

// keepEmbedded applies the size and aspect-ratio filters: both dimensions
// at least minSize, aspect ratio within [0.1, 10].
func keepEmbedded(width, height, minSize int) bool {
	if width < minSize || height < minSize {
		return false
	}
	if height == 0 {
		return false
	}
	aspect := float64(width) / float64(height)
	return aspect <= maxAspectRatio && aspect >= minAspectRatio
}

// pageFromImageFile parses the 1-based page number out of a pdfcpu output
// name like "img_3_Im0.png".
func pageFromImageFile(name string) (int, bool) {
	var page int
	if _, err := fmt.Sscanf(name, "img_%d_", &page); err != nil || page < 1 {
		return 0, false
	}
	return page, true
}

// normalizeRGB converts exotic color spaces (CMYK and friends) to RGBA so
// the PNG encoder and downstream consumers see a predictable mode.
func normalizeRGB(img image.Image) image.Image {
	switch img.(type) {
	case *image.RGBA, *image.NRGBA, *image.Gray:
		return img
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
