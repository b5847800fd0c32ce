package models

import "fmt"

// ImageKind distinguishes the two extraction strategies
type ImageKind string

const (
	ImageFullPage ImageKind = "full_page"
	ImageEmbedded ImageKind = "embedded"
)

// ImageRecord is one extracted image, tagged with its 1-based source page
type ImageRecord struct {
	ID         string
	Page       int
	Kind       ImageKind
	Bytes      []byte
	SourceFile string
	// Index and RectIndex are only set for embedded images
	Index     int
	RectIndex int
}

// ImageMetadata is the cache's view of where an image came from
type ImageMetadata struct {
	FileName string `json:"file_name"`
	Page     int    `json:"page"`
	Kind     string `json:"type"`
}

// ImageID derives the deterministic identifier for an extracted image.
// Stable across re-runs so repeated ingestion does not duplicate cache
// entries. Embedded images append their per-page object and placement
// indices, e.g. "spec.pdf_p2_tembedded_i1_r1".
func ImageID(fileName string, page int, kind ImageKind, index, rectIndex int) string {
	id := fmt.Sprintf("%s_p%d_t%s", fileName, page, kind)
	if index > 0 {
		id += fmt.Sprintf("_i%d", index)
	}
	if rectIndex > 0 {
		id += fmt.Sprintf("_r%d", rectIndex)
	}
	return id
}
