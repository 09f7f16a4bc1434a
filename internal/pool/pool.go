package pool

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/generate"
	"github.com/pubplan/pubplan/internal/orchestrator"
	"github.com/pubplan/pubplan/internal/queue"
	"github.com/pubplan/pubplan/internal/ratelimit"
	"github.com/pubplan/pubplan/internal/worker"
)

// WorkerPool owns a set of job workers plus the orchestrator's progress
// monitor, sharing one queue, one rate limiter and one lifecycle.
type WorkerPool struct {
	workers     []*worker.Worker
	orch        *orchestrator.Orchestrator
	stopTimeout time.Duration
	log         zerolog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

func New(
	cfg *config.WorkerConfig,
	store worker.JobStore,
	q *queue.PriorityQueue,
	orch *orchestrator.Orchestrator,
	gen generate.Service,
	log zerolog.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		orch:        orch,
		stopTimeout: cfg.StopTimeout,
		log:         log.With().Str("component", "pool").Logger(),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	limiter := ratelimit.New(cfg.PerActorLimit, cfg.PoolCapacity, cfg.PoolRefillRate)
	for i := 1; i <= cfg.Workers; i++ {
		p.workers = append(p.workers, worker.NewWorker(
			i, store, q, limiter, gen, orch, orch,
			cfg.PollInterval, cfg.MaxIdleDelay, log,
		))
	}
	return p
}

func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		w.Start(p.ctx)
	}

	go func() {
		defer close(p.done)
		p.orch.RunMonitor(p.ctx)
	}()

	p.log.Info().Int("workers", len(p.workers)).Msg("pool.started")
}

// Stop cancels every worker and waits for the monitor to exit, bounded by
// the configured stop timeout. In-flight generation calls see the cancelled
// context and unwind on their own.
func (p *WorkerPool) Stop() {
	p.cancel()
	for _, w := range p.workers {
		w.Stop()
	}

	select {
	case <-p.done:
		p.log.Info().Msg("pool.stopped")
	case <-time.After(p.stopTimeout):
		p.log.Warn().Dur("timeout", p.stopTimeout).Msg("pool.stop_timed_out")
	}
}
