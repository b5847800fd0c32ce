package extractor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multimodal-rag/internal/models"
)

func TestKeepEmbedded(t *testing.T) {
	tests := []struct {
		name    string
		w, h    int
		minSize int
		want    bool
	}{
		{name: "typical figure", w: 300, h: 200, minSize: 100, want: true},
		{name: "too narrow", w: 50, h: 200, minSize: 100, want: false},
		{name: "too short", w: 300, h: 20, minSize: 100, want: false},
		{name: "hairline rule", w: 2000, h: 120, minSize: 100, want: false},
		{name: "tall sliver", w: 120, h: 2000, minSize: 100, want: false},
		{name: "square at boundary", w: 100, h: 100, minSize: 100, want: true},
		{name: "aspect exactly 10", w: 1000, h: 100, minSize: 100, want: true},
		{name: "zero height", w: 100, h: 0, minSize: 100, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keepEmbedded(tt.w, tt.h, tt.minSize))
		})
	}
}

func TestPageFromImageFile(t *testing.T) {
	page, ok := pageFromImageFile("img_3_Im0.png")
	require.True(t, ok)
	assert.Equal(t, 3, page)

	page, ok = pageFromImageFile("img_12_Image4.jpg")
	require.True(t, ok)
	assert.Equal(t, 12, page)

	_, ok = pageFromImageFile("something-else.png")
	assert.False(t, ok)

	_, ok = pageFromImageFile("img_0_Im0.png")
	assert.False(t, ok)
}

func TestImageIDDeterministic(t *testing.T) {
	id := models.ImageID("spec.pdf", 2, models.ImageEmbedded, 1, 1)
	assert.Equal(t, "spec.pdf_p2_tembedded_i1_r1", id)
	assert.Equal(t, id, models.ImageID("spec.pdf", 2, models.ImageEmbedded, 1, 1))

	full := models.ImageID("spec.pdf", 1, models.ImageFullPage, 0, 0)
	assert.Equal(t, "spec.pdf_p1_tfull_page", full)
}

func TestRunTextChainFirstOkWins(t *testing.T) {
	primary := textStrategy{name: "primary", run: func(string) textResult {
		return okResult(map[int]string{1: "hello", 3: "world"})
	}}
	secondary := textStrategy{name: "secondary", run: func(string) textResult {
		t.Fatal("secondary should not run when primary succeeds")
		return textResult{}
	}}

	pages, err := runTextChain("x.pdf", "x.pdf", []textStrategy{primary, secondary})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "hello", 3: "world"}, pages)
}

func TestRunTextChainFallsThroughSkip(t *testing.T) {
	primary := textStrategy{name: "primary", run: func(string) textResult {
		return skipResult("no non-empty pages")
	}}
	secondary := textStrategy{name: "secondary", run: func(string) textResult {
		return okResult(map[int]string{2: "recovered"})
	}}

	pages, err := runTextChain("x.pdf", "x.pdf", []textStrategy{primary, secondary})
	require.NoError(t, err)
	assert.Equal(t, "recovered", pages[2])
}

func TestRunTextChainAllSkipIsScannedPDF(t *testing.T) {
	skip := textStrategy{name: "s", run: func(string) textResult {
		return skipResult("nothing")
	}}

	_, err := runTextChain("scan.pdf", "scan.pdf", []textStrategy{skip, skip})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNoText, kind)
}

func TestRunTextChainFatalPropagates(t *testing.T) {
	boom := errors.New("truncated xref")
	fatal := textStrategy{name: "f", run: func(string) textResult {
		return fatalResult(boom)
	}}

	_, err := runTextChain("bad.pdf", "bad.pdf", []textStrategy{fatal})
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMalformed, kind)
	assert.ErrorIs(t, err, boom)
}

func TestValidatePDF(t *testing.T) {
	err := ValidatePDF("/nonexistent/file.pdf")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMalformed, kind)

	dir := t.TempDir()

	notPDF := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notPDF, []byte("hello"), 0o644))
	kind, ok = KindOf(ValidatePDF(notPDF))
	require.True(t, ok)
	assert.Equal(t, KindNotPDF, kind)

	empty := filepath.Join(dir, "empty.pdf")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	kind, ok = KindOf(ValidatePDF(empty))
	require.True(t, ok)
	assert.Equal(t, KindEmpty, kind)

	garbage := filepath.Join(dir, "garbage.pdf")
	require.NoError(t, os.WriteFile(garbage, []byte("this is not a pdf"), 0o644))
	kind, ok = KindOf(ValidatePDF(garbage))
	require.True(t, ok)
	assert.Equal(t, KindMalformed, kind)
}

func TestNormalizeRGB(t *testing.T) {
	// CMYK is the classic exotic mode coming out of PDF objects
	cmyk := image.NewCMYK(image.Rect(0, 0, 4, 4))
	got := normalizeRGB(cmyk)
	_, isNRGBA := got.(*image.NRGBA)
	assert.True(t, isNRGBA)

	// already-RGB images pass through untouched
	rgba := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.Equal(t, image.Image(rgba), normalizeRGB(rgba))
}

func TestEncodePNGRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.NRGBA{R: 255, A: 255})

	data, err := encodePNG(src)
	require.NoError(t, err)

	decoded, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 2, decoded.Bounds().Dx())
}
