package models

import (
	"encoding/json"
	"strconv"
)

// Chunk is one indexed unit of text with its metadata
type Chunk struct {
	Text     string
	Metadata ChunkMetadata
}

// ChunkMetadata carries the per-chunk fields persisted alongside the text.
// ImageIDs is always a slice, never nil, so callers don't presence-check.
type ChunkMetadata struct {
	FileName   string
	Page       int
	TotalPages int
	ImageIDs   []string
	NumImages  int
}

// RankedChunk is a chunk returned from a similarity search
type RankedChunk struct {
	Chunk
	Score float32
}

// metadata keys used in the vector store
const (
	MetaFileName   = "file_name"
	MetaPage       = "page"
	MetaTotalPages = "total_pages"
	MetaImageIDs   = "image_ids"
	MetaNumImages  = "num_images"
)

// EncodeMetadata flattens chunk metadata to the string map the vector store
// supports. ImageIDs is serialized as a JSON array so it survives the
// string-valued metadata round trip.
func EncodeMetadata(m ChunkMetadata) (map[string]string, error) {
	ids := m.ImageIDs
	if ids == nil {
		ids = []string{}
	}
	idsJSON, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		MetaFileName:   m.FileName,
		MetaPage:       strconv.Itoa(m.Page),
		MetaTotalPages: strconv.Itoa(m.TotalPages),
		MetaImageIDs:   string(idsJSON),
		MetaNumImages:  strconv.Itoa(len(ids)),
	}, nil
}

// DecodeMetadata is the inverse of EncodeMetadata. Unknown or malformed
// fields fall back to zero values rather than failing the whole chunk.
func DecodeMetadata(meta map[string]string) ChunkMetadata {
	m := ChunkMetadata{
		FileName: meta[MetaFileName],
		ImageIDs: []string{},
	}
	m.Page, _ = strconv.Atoi(meta[MetaPage])
	m.TotalPages, _ = strconv.Atoi(meta[MetaTotalPages])
	if raw := meta[MetaImageIDs]; raw != "" {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err == nil && ids != nil {
			m.ImageIDs = ids
		}
	}
	m.NumImages = len(m.ImageIDs)
	return m
}
