package parser

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"

	"multimodal-rag/internal/extractor"
)

type legacyEncoding struct {
	name string
	enc  encoding.Encoding
}

// tried in a fixed order after UTF-8; the first clean decode wins
var legacyEncodings = []legacyEncoding{
	{name: "shift-jis", enc: japanese.ShiftJIS},
	{name: "euc-jp", enc: japanese.EUCJP},
	{name: "windows-1252", enc: charmap.Windows1252},
}

// DecodeText decodes raw file bytes to a string, trying UTF-8 first and
// then the legacy encodings. A decode counts as successful only when it
// introduces no replacement runes.
func DecodeText(path string, data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	for _, le := range legacyEncodings {
		out, err := le.enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		if strings.ContainsRune(string(out), utf8.RuneError) {
			continue
		}
		log.Debug().Str("file", filepath.Base(path)).Str("encoding", le.name).Msg("Decoded with legacy encoding")
		return string(out), nil
	}

	return "", extractor.NewError(extractor.KindEncoding, filepath.Base(path),
		"file could not be decoded with any supported encoding", nil)
}
