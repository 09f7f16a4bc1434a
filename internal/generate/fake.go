package generate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pubplan/pubplan/internal/models"
)

// Fake is a deterministic in-memory generation backend for tests and local
// runs. Latency and cost are fixed per instance; failures are scripted per
// job ID rather than randomized.
type Fake struct {
	mu       sync.Mutex
	Latency  time.Duration
	CostPer  float64
	failures map[uint][]error
	calls    []uint
}

func NewFake(latency time.Duration, costPer float64) *Fake {
	return &Fake{
		Latency:  latency,
		CostPer:  costPer,
		failures: make(map[uint][]error),
	}
}

// FailNext queues errors to be returned, in order, for the given job ID
// before it finally succeeds.
func (f *Fake) FailNext(jobID uint, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[jobID] = append(f.failures[jobID], errs...)
}

// Calls returns the job IDs generated so far, in call order.
func (f *Fake) Calls() []uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *Fake) Generate(ctx context.Context, job *models.UnitJob) (Result, error) {
	if f.Latency > 0 {
		select {
		case <-time.After(f.Latency):
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, job.ID)
	pending := f.failures[job.ID]
	if len(pending) > 0 {
		err := pending[0]
		f.failures[job.ID] = pending[1:]
		f.mu.Unlock()
		return Result{}, err
	}
	f.mu.Unlock()

	return Result{
		OutputRef: fmt.Sprintf("artifact://%s/%d", job.Provider, job.ID),
		Cost:      f.CostPer,
		Duration:  f.Latency,
	}, nil
}
