package ingest

import "fmt"

// IngestionError covers pipeline-level failures that abort the whole run,
// as opposed to per-file errors reported inside the Report.
type IngestionError struct {
	Reason string
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed: %s", e.Reason)
}

var (
	ErrNoStore  = &IngestionError{Reason: "no vector store configured"}
	ErrNoFiles  = &IngestionError{Reason: "no indexable files found in directory"}
	ErrNoChunks = &IngestionError{Reason: "no chunks could be produced from any file"}
)
