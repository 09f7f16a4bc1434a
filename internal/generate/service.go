package generate

import (
	"context"
	"time"

	"github.com/pubplan/pubplan/internal/models"
)

// Result is what a generation backend hands back for one unit job.
type Result struct {
	OutputRef string
	Cost      float64
	Duration  time.Duration
}

// Service is the narrow seam to the content-generation backend. Calls may
// take seconds to minutes and must never be made while holding a lock.
// Failures should be classified with the common error taxonomy so the worker
// can decide between retry and terminal failure.
type Service interface {
	Generate(ctx context.Context, job *models.UnitJob) (Result, error)
}
