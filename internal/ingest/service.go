package ingest

import "context"

// RawItem is one row pulled from a source feed, unvalidated. The
// orchestrator validates each item independently before it becomes a job.
type RawItem map[string]any

// Service reads the raw items behind a bulk job's source reference
// (a spreadsheet, a feed URL, an export file).
type Service interface {
	ReadItems(ctx context.Context, sourceRef string) ([]RawItem, error)
}
