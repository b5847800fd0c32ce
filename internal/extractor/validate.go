package extractor

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/rs/zerolog/log"
)

// maxPDFSizeMB bounds how large a document the pipeline will attempt.
const maxPDFSizeMB = 100

// ValidatePDF checks that the path points at a plausible, readable,
// unencrypted PDF before extraction starts. Encrypted documents fail fast
// here so the text chain never runs against them.
func ValidatePDF(path string) error {
	name := filepath.Base(path)

	info, err := os.Stat(path)
	if err != nil {
		return NewError(KindMalformed, name, "file does not exist", err)
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return NewError(KindNotPDF, name, "not a PDF file", nil)
	}
	if info.Size() == 0 {
		return NewError(KindEmpty, name, "file is empty", nil)
	}
	if sizeMB := info.Size() / (1024 * 1024); sizeMB > maxPDFSizeMB {
		return NewError(KindTooLarge, name, "file exceeds size limit", nil)
	}

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return NewError(KindMalformed, name, "failed to read PDF structure", err)
	}
	if pdfCtx.Encrypt != nil {
		return NewError(KindEncrypted, name, "encrypted PDFs are not supported", nil)
	}

	log.Debug().Str("file", name).Int("pages", pdfCtx.PageCount).Msg("PDF validation passed")
	return nil
}

// PageCount returns the number of pages without extracting anything.
func PageCount(path string) (int, error) {
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return 0, NewError(KindMalformed, filepath.Base(path), "failed to read PDF structure", err)
	}
	return pdfCtx.PageCount, nil
}
