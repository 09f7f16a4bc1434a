package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// Optimizer computes publish-slot desirability and assigns non-conflicting
// slots to batches of ready artifacts. Scoring and assignment are pure,
// single-threaded computations; the only shared state is the adaptive table,
// which has its own lock.
type Optimizer struct {
	adaptive *AdaptiveTable
	log      zerolog.Logger

	// now is swappable for tests.
	now func() time.Time
}

func New(adaptive *AdaptiveTable, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		adaptive: adaptive,
		log:      log.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
	}
}

// Adaptive exposes the optimizer's weight table to the outcome sweep.
func (o *Optimizer) Adaptive() *AdaptiveTable { return o.adaptive }
