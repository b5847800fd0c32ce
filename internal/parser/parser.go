package parser

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nguyenthenguyen/docx"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"

	"multimodal-rag/internal/models"
)

// TextLikeExts lists the extensions handled by this package. PDFs are the
// extraction engine's job, everything else indexable lands here.
var TextLikeExts = map[string]bool{
	".txt":  true,
	".md":   true,
	".docx": true,
	".pptx": true,
	".xlsx": true,
	".ods":  true,
}

// ParseFile turns a non-PDF source file into chunks. Text and word
// documents become a single whole-file chunk; spreadsheets and slide decks
// get one chunk per sheet or slide, with the sheet/slide number standing in
// as the page. No images are produced for these formats.
func ParseFile(path string) ([]models.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".txt", ".md":
		return parseTextFile(path)
	case ".docx":
		return parseDOCX(path)
	case ".pptx":
		return parsePPTX(path)
	case ".xlsx":
		return parseXLSX(path)
	case ".ods":
		return parseODS(path)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func chunkFor(path, text string, page, totalPages int) models.Chunk {
	return models.Chunk{
		Text: text,
		Metadata: models.ChunkMetadata{
			FileName:   filepath.Base(path),
			Page:       page,
			TotalPages: totalPages,
			ImageIDs:   []string{},
		},
	}
}

func parseTextFile(path string) ([]models.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	content, err := DecodeText(path, data)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(filepath.Ext(path)) == ".md" {
		content = MarkdownToText([]byte(content))
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	return []models.Chunk{chunkFor(path, content, 1, 1)}, nil
}

func parseDOCX(path string) ([]models.Chunk, error) {
	r, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range strings.Split(content, "\n") {
		if strings.TrimSpace(p) != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return nil, nil
	}
	return []models.Chunk{chunkFor(path, strings.Join(paragraphs, "\n"), 1, 1)}, nil
}

func parsePPTX(path string) ([]models.Chunk, error) {
	f, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var chunks []models.Chunk
	slideNum := 0
	for _, file := range f.File {
		if !strings.HasPrefix(file.Name, "ppt/slides/slide") {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slideNum++
		slideText := extractTextFromXML(string(data))
		if strings.TrimSpace(slideText) != "" {
			chunks = append(chunks, chunkFor(path, slideText, slideNum, 0))
		}
	}
	for i := range chunks {
		chunks[i].Metadata.TotalPages = slideNum
	}
	return chunks, nil
}

func parseXLSX(path string) ([]models.Chunk, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}

	var chunks []models.Chunk
	for sheetNum, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			for _, cell := range row.Cells {
				text.WriteString(cell.String() + "\t")
			}
			text.WriteString("\n")
		}
		if strings.TrimSpace(text.String()) != "" {
			chunks = append(chunks, chunkFor(path, text.String(), sheetNum+1, len(f.Sheets)))
		}
	}
	return chunks, nil
}

func parseODS(path string) ([]models.Chunk, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var chunks []models.Chunk
	for sheetNum, sheetName := range sheets {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			for _, cell := range row {
				text.WriteString(cell + "\t")
			}
			text.WriteString("\n")
		}
		if strings.TrimSpace(text.String()) != "" {
			chunks = append(chunks, chunkFor(path, text.String(), sheetNum+1, len(sheets)))
		}
	}
	return chunks, nil
}

// extractTextFromXML pulls the <a:t> runs out of slide XML without a full
// XML parse; slide markup is predictable enough for this.
func extractTextFromXML(xmlContent string) string {
	var text strings.Builder
	parts := strings.Split(xmlContent, "<a:t>")
	for i, part := range parts {
		if i == 0 {
			continue
		}
		if endIdx := strings.Index(part, "</a:t>"); endIdx >= 0 {
			text.WriteString(part[:endIdx] + " ")
		}
	}
	return text.String()
}
