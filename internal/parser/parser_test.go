package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"

	"multimodal-rag/internal/extractor"
)

func TestDecodeTextUTF8(t *testing.T) {
	got, err := DecodeText("a.txt", []byte("plain utf-8 text with 日本語"))
	require.NoError(t, err)
	assert.Equal(t, "plain utf-8 text with 日本語", got)
}

func TestDecodeTextShiftJIS(t *testing.T) {
	sjis, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte("日本語のテキスト"))
	require.NoError(t, err)
	require.False(t, isValidUTF8(sjis))

	got, err := DecodeText("a.txt", sjis)
	require.NoError(t, err)
	assert.Equal(t, "日本語のテキスト", got)
}

func isValidUTF8(b []byte) bool {
	for _, r := range string(b) {
		if r == '�' {
			return false
		}
	}
	return true
}

func TestMarkdownToText(t *testing.T) {
	src := []byte("# Heading\n\nSome *emphasized* paragraph.\n\n- item one\n- item two\n")
	got := MarkdownToText(src)

	assert.Contains(t, got, "Heading")
	assert.Contains(t, got, "emphasized paragraph")
	assert.Contains(t, got, "item one")
	assert.NotContains(t, got, "#")
	assert.NotContains(t, got, "*")
}

func TestParseTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("line one\nline two"), 0o644))

	chunks, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "line one\nline two", chunks[0].Text)
	assert.Equal(t, "notes.txt", chunks[0].Metadata.FileName)
	assert.Equal(t, 1, chunks[0].Metadata.Page)
	assert.NotNil(t, chunks[0].Metadata.ImageIDs)
	assert.Empty(t, chunks[0].Metadata.ImageIDs)
}

func TestParseMarkdownFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "readme.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nbody text\n"), 0o644))

	chunks, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "Title")
	assert.Contains(t, chunks[0].Text, "body text")
}

func TestParseEmptyTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("   \n  "), 0o644))

	chunks, err := ParseFile(path)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestParseUnsupportedFormat(t *testing.T) {
	_, err := ParseFile("movie.mp4")
	assert.Error(t, err)
}

func TestDecodeTextUnsupportedBytes(t *testing.T) {
	// 0x90 is an invalid lead byte in shift-jis when followed by 0x28,
	// an invalid euc-jp lead, and an undefined windows-1252 code point
	data := []byte{0x90, 0x28}
	_, err := DecodeText("a.txt", data)
	require.Error(t, err)
	kind, ok := extractor.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, extractor.KindEncoding, kind)
}

func TestExtractTextFromXML(t *testing.T) {
	xml := `<p:sp><a:t>Hello</a:t></p:sp><p:sp><a:t>World</a:t></p:sp>`
	got := extractTextFromXML(xml)
	assert.Contains(t, got, "Hello")
	assert.Contains(t, got, "World")
}
