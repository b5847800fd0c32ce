package extractor

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures so callers can distinguish an
// encrypted document from a scanned one from a plain parse failure.
type ErrorKind int

const (
	KindMalformed ErrorKind = iota
	KindEmpty
	KindEncrypted
	KindNoText
	KindTooLarge
	KindNotPDF
	KindEncoding
)

func (k ErrorKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindEmpty:
		return "empty"
	case KindEncrypted:
		return "encrypted"
	case KindNoText:
		return "no_text"
	case KindTooLarge:
		return "too_large"
	case KindNotPDF:
		return "not_pdf"
	case KindEncoding:
		return "encoding"
	}
	return "unknown"
}

// ExtractionError is the per-document failure surfaced to the pipeline.
type ExtractionError struct {
	Kind ErrorKind
	File string
	Msg  string
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.File, e.Msg, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.File, e.Msg, e.Kind)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// NewError builds an ExtractionError for the given file and kind.
func NewError(kind ErrorKind, file, msg string, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, File: file, Msg: msg, Err: err}
}

// KindOf reports the kind of an ExtractionError in err's chain, or false.
func KindOf(err error) (ErrorKind, bool) {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee.Kind, true
	}
	return 0, false
}
