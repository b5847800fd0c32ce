package extractor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
)

type textStatus int

const (
	textOk textStatus = iota
	textSkip
	textFatal
)

// textResult is the tagged outcome of one extraction strategy.
type textResult struct {
	status textStatus
	pages  map[int]string
	reason string
	err    error
}

func okResult(pages map[int]string) textResult { return textResult{status: textOk, pages: pages} }

func skipResult(reason string) textResult { return textResult{status: textSkip, reason: reason} }

func fatalResult(err error) textResult { return textResult{status: textFatal, err: err} }

type textStrategy struct {
	name string
	run  func(path string) textResult
}

// textStrategies are tried in order, whole-document per strategy. The first
// Ok wins; a Fatal from the last attempted strategy propagates.
var textStrategies = []textStrategy{
	{name: "pdf-text-layer", run: extractTextLayer},
	{name: "mupdf", run: extractTextMuPDF},
}

// ExtractText returns non-empty page text keyed by 1-based page number.
// Encrypted documents are rejected by ValidatePDF before the chain runs;
// a document yielding no text from any strategy fails with a kind that
// distinguishes scanned/image-only PDFs from parse failures.
func ExtractText(path string) (map[int]string, error) {
	name := filepath.Base(path)
	log.Info().Str("file", name).Msg("Starting PDF text extraction")
	return runTextChain(path, name, textStrategies)
}

// runTextChain drives the ordered strategy list, selecting the first Ok or
// propagating the last Fatal.
func runTextChain(path, name string, strategies []textStrategy) (map[int]string, error) {
	var lastFatal error
	sawFatal := false
	for _, s := range strategies {
		res := s.run(path)
		switch res.status {
		case textOk:
			log.Info().Str("file", name).Str("strategy", s.name).Int("pages", len(res.pages)).Msg("Text extraction succeeded")
			return res.pages, nil
		case textSkip:
			log.Warn().Str("file", name).Str("strategy", s.name).Str("reason", res.reason).Msg("Text strategy yielded nothing, trying next")
		case textFatal:
			log.Error().Err(res.err).Str("file", name).Str("strategy", s.name).Msg("Text strategy failed")
			lastFatal = res.err
			sawFatal = true
		}
	}

	if sawFatal {
		return nil, NewError(KindMalformed, name, "failed to parse PDF (file may be corrupted)", lastFatal)
	}
	return nil, NewError(KindNoText, name,
		"no text could be extracted; the document may be a scanned/image-only PDF", nil)
}

// extractTextLayer reads the PDF text layer page by page. Individual page
// failures are logged and skipped; only non-empty pages enter the map.
func extractTextLayer(path string) textResult {
	f, err := os.Open(path)
	if err != nil {
		return fatalResult(err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return fatalResult(err)
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return skipResult("unreadable by text-layer extractor: " + err.Error())
	}

	pages := make(map[int]string)
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("Text-layer extraction failed on page")
			continue
		}
		if strings.TrimSpace(pageText) != "" {
			pages[i] = pageText
		}
	}

	if len(pages) == 0 {
		return skipResult("no non-empty pages")
	}
	return okResult(pages)
}

// extractTextMuPDF is the secondary extractor, backed by MuPDF.
func extractTextMuPDF(path string) textResult {
	doc, err := fitz.New(path)
	if err != nil {
		return fatalResult(err)
	}
	defer doc.Close()

	pages := make(map[int]string)
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("MuPDF text extraction failed on page")
			continue
		}
		if strings.TrimSpace(pageText) != "" {
			pages[i+1] = pageText
		}
	}

	if len(pages) == 0 {
		return skipResult("no non-empty pages")
	}
	return okResult(pages)
}
