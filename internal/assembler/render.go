package assembler

import (
	"regexp"
	"strconv"

	"multimodal-rag/internal/models"
)

type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentImage
	SegmentUnresolved
)

// Segment is one piece of a rendered answer: plain text, a resolved image
// reference, or a marker whose number never existed in the prompt context.
type Segment struct {
	Kind    SegmentKind
	Text    string // SegmentText: the text; SegmentUnresolved: the raw marker
	ImageID string // SegmentImage only
	Number  int    // SegmentImage and SegmentUnresolved
}

var markerRe = regexp.MustCompile(models.MarkerRegex)

// ParseAnswer splits the model's answer into alternating text and image
// segments. A marker referencing a number that was never assigned renders as
// an unresolved segment rather than being dropped, so broken references stay
// visible.
func ParseAnswer(answer string, images []contextImage) []Segment {
	byNumber := make(map[int]contextImage, len(images))
	for _, img := range images {
		byNumber[img.number] = img
	}

	var segments []Segment
	last := 0
	for _, loc := range markerRe.FindAllStringSubmatchIndex(answer, -1) {
		if text := answer[last:loc[0]]; text != "" {
			segments = append(segments, Segment{Kind: SegmentText, Text: text})
		}
		number, _ := strconv.Atoi(answer[loc[2]:loc[3]])
		if img, ok := byNumber[number]; ok {
			segments = append(segments, Segment{Kind: SegmentImage, ImageID: img.id, Number: number})
		} else {
			segments = append(segments, Segment{Kind: SegmentUnresolved, Text: answer[loc[0]:loc[1]], Number: number})
		}
		last = loc[1]
	}
	if text := answer[last:]; text != "" {
		segments = append(segments, Segment{Kind: SegmentText, Text: text})
	}
	return segments
}
