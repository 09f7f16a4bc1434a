package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/pubplan/pubplan/common"
	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/generate"
	"github.com/pubplan/pubplan/internal/models"
	"github.com/pubplan/pubplan/internal/queue"
	"github.com/pubplan/pubplan/internal/ratelimit"
)

// Event types the worker writes to the job event log.
const (
	EventJobCompleted   = "job_completed"
	EventJobFailed      = "job_failed"
	EventJobRetried     = "job_retried"
	EventJobRateLimited = "job_rate_limited"
)

// JobStore is the worker's view of unit job persistence.
type JobStore interface {
	GetUnitJob(ctx context.Context, id uint) (*models.UnitJob, error)
	TransitionStatus(ctx context.Context, id uint, target config.JobStatus) (bool, error)
	MarkCompleted(ctx context.Context, id uint, outputRef string, cost float64) error
	MarkFailed(ctx context.Context, id uint, errMsg string) error
	RegisterRetry(ctx context.Context, id uint, errMsg string) (bool, error)
	AppendEvent(ctx context.Context, event *models.JobEvent) error
}

// Gate tells the worker whether a batch is paused.
type Gate interface {
	Paused(bulkJobID uint) bool
}

// ProgressSink is notified after a unit job reaches a terminal status.
type ProgressSink interface {
	JobFinished(ctx context.Context, bulkJobID uint)
}

// to help with testing
var sleep = func(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

type Worker struct {
	ID      int
	store   JobStore
	queue   *queue.PriorityQueue
	limiter *ratelimit.Limiter
	gen     generate.Service
	gate    Gate
	sink    ProgressSink
	log     zerolog.Logger

	pollInterval time.Duration
	maxIdleDelay time.Duration
	quit         chan struct{}
}

func NewWorker(
	id int,
	store JobStore,
	q *queue.PriorityQueue,
	limiter *ratelimit.Limiter,
	gen generate.Service,
	gate Gate,
	sink ProgressSink,
	pollInterval, maxIdleDelay time.Duration,
	log zerolog.Logger,
) *Worker {
	return &Worker{
		ID:           id,
		store:        store,
		queue:        q,
		limiter:      limiter,
		gen:          gen,
		gate:         gate,
		sink:         sink,
		log:          log.With().Int("worker", id).Logger(),
		pollInterval: pollInterval,
		maxIdleDelay: maxIdleDelay,
		quit:         make(chan struct{}),
	}
}

// Start runs the dequeue loop until Stop or context cancellation. An empty
// queue backs the loop off exponentially up to maxIdleDelay; any processed
// entry resets it.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		delay := w.pollInterval

		for {
			entry, ok := w.queue.DequeueNext()
			if ok {
				w.process(ctx, entry)
				delay = w.pollInterval
			} else {
				delay = min(delay*2, w.maxIdleDelay)
			}

			select {
			case <-time.After(delay):
			case <-w.quit:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Worker) Stop() { close(w.quit) }

// process runs one dequeued entry through the dispatch pipeline: stale-entry
// and pause checks, the rate limit gate, then generation. The store's guarded
// transitions keep a racing cancel from being overwritten. An entry is never
// dropped on a store error; it goes back in line so the row cannot strand.
func (w *Worker) process(ctx context.Context, entry queue.Entry) {
	job, err := w.store.GetUnitJob(ctx, entry.JobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return
		}
		w.log.Error().Uint("job_id", entry.JobID).Err(err).Msg("worker.fetch_failed")
		w.queue.Enqueue(entry)
		return
	}

	// An entry is held by exactly one worker at a time, so a non-queued
	// status here is either a racing cancel (drop it) or a previous pass
	// that lost a store write mid-flight (walk the row back into line).
	if job.Status != string(config.JobStatusQueued) {
		w.recoverStranded(ctx, entry, job)
		return
	}

	if w.gate != nil && w.gate.Paused(entry.BulkJobID) {
		w.queue.Enqueue(entry)
		return
	}

	if !w.limiter.CanProceed(entry.ActorID, entry.Provider) {
		w.holdRateLimited(ctx, entry)
		return
	}

	if ok, err := w.store.TransitionStatus(ctx, job.ID, config.JobStatusDispatched); err != nil || !ok {
		if err != nil {
			w.log.Error().Uint("job_id", job.ID).Err(err).Msg("worker.dispatch_failed")
			w.queue.Enqueue(entry)
		}
		return
	}
	if ok, err := w.store.TransitionStatus(ctx, job.ID, config.JobStatusInProgress); err != nil || !ok {
		if err != nil {
			w.log.Error().Uint("job_id", job.ID).Err(err).Msg("worker.dispatch_failed")
			w.queue.Enqueue(entry)
		}
		return
	}

	// The generation call can take minutes; nothing is held across it.
	result, err := w.gen.Generate(ctx, job)
	if err != nil {
		w.handleFailure(ctx, entry, job, err)
		return
	}

	if err := w.store.MarkCompleted(ctx, job.ID, result.OutputRef, result.Cost); err != nil {
		w.log.Error().Uint("job_id", job.ID).Err(err).Msg("worker.mark_completed_failed")
		w.queue.Enqueue(entry)
		return
	}
	w.appendEvent(ctx, job, EventJobCompleted, result.OutputRef)
	w.log.Info().
		Uint("job_id", job.ID).
		Str("output_ref", result.OutputRef).
		Float64("cost", result.Cost).
		Dur("took", result.Duration).
		Msg("worker.job_completed")
	w.notify(ctx, entry.BulkJobID)
}

// recoverStranded settles an entry whose row a previous pass left between
// states. rate_limited and retried rows just finish their move back to
// queued. dispatched and in_progress rows mean the attempt never recorded an
// outcome, so it is charged against the retry budget and sent around again.
// Terminal rows are dropped.
func (w *Worker) recoverStranded(ctx context.Context, entry queue.Entry, job *models.UnitJob) {
	switch job.Status {
	case string(config.JobStatusRateLimited), string(config.JobStatusRetried):
		if ok, err := w.store.TransitionStatus(ctx, job.ID, config.JobStatusQueued); err != nil || !ok {
			if err != nil {
				w.queue.Enqueue(entry)
			}
			return
		}
		w.queue.Enqueue(entry)
	case string(config.JobStatusDispatched), string(config.JobStatusInProgress):
		if job.Status == string(config.JobStatusDispatched) {
			if ok, err := w.store.TransitionStatus(ctx, job.ID, config.JobStatusInProgress); err != nil || !ok {
				if err != nil {
					w.queue.Enqueue(entry)
				}
				return
			}
		}
		w.handleFailure(ctx, entry, job, fmt.Errorf("attempt lost before an outcome was recorded"))
	}
}

// holdRateLimited parks a denied job: it sits in rate_limited while the
// worker sleeps out the advised backoff, then goes back to queued and back in
// line. The denial never consumes retry budget.
func (w *Worker) holdRateLimited(ctx context.Context, entry queue.Entry) {
	if ok, err := w.store.TransitionStatus(ctx, entry.JobID, config.JobStatusRateLimited); err != nil || !ok {
		if err != nil {
			w.queue.Enqueue(entry)
		}
		return
	}

	backoff := w.limiter.BackoffSeconds(entry.ActorID)
	w.appendEvent(ctx, &models.UnitJob{ID: entry.JobID, BulkJobID: entry.BulkJobID},
		EventJobRateLimited, fmt.Sprintf("backoff %.1fs", backoff))
	w.log.Info().
		Uint("job_id", entry.JobID).
		Str("actor", entry.ActorID).
		Str("provider", entry.Provider).
		Float64("backoff_seconds", backoff).
		Msg("worker.rate_limited")

	sleep(ctx, time.Duration(backoff*float64(time.Second)))

	if ok, err := w.store.TransitionStatus(ctx, entry.JobID, config.JobStatusQueued); err != nil || !ok {
		if err != nil {
			// Still parked; a later pass finishes the move.
			w.queue.Enqueue(entry)
		}
		// Cancelled while parked: the entry stays dropped.
		return
	}
	w.queue.Enqueue(entry)
}

// handleFailure classifies a generation error: fatal goes terminal at once,
// anything else retries until the budget runs out. Only an exhausted budget
// fails the job; a store hiccup puts the entry back in line instead.
func (w *Worker) handleFailure(ctx context.Context, entry queue.Entry, job *models.UnitJob, genErr error) {
	kind := common.KindOf(genErr)
	if kind == common.KindFatal || kind == common.KindValidation {
		w.fail(ctx, entry, job, genErr)
		return
	}

	ok, err := w.store.RegisterRetry(ctx, job.ID, genErr.Error())
	if err != nil {
		w.log.Error().Uint("job_id", job.ID).Err(err).Msg("worker.register_retry_failed")
		w.queue.Enqueue(entry)
		return
	}
	if !ok {
		// Budget exhausted.
		w.fail(ctx, entry, job, genErr)
		return
	}

	w.appendEvent(ctx, job, EventJobRetried, genErr.Error())
	w.log.Warn().Uint("job_id", job.ID).Str("kind", kind.String()).Err(genErr).Msg("worker.job_retried")

	if ok, err := w.store.TransitionStatus(ctx, job.ID, config.JobStatusQueued); err != nil || !ok {
		if err != nil {
			w.queue.Enqueue(entry)
		}
		return
	}
	w.queue.Enqueue(entry)
}

func (w *Worker) fail(ctx context.Context, entry queue.Entry, job *models.UnitJob, genErr error) {
	if err := w.store.MarkFailed(ctx, job.ID, genErr.Error()); err != nil {
		w.log.Error().Uint("job_id", job.ID).Err(err).Msg("worker.mark_failed_failed")
		w.queue.Enqueue(entry)
		return
	}
	w.appendEvent(ctx, job, EventJobFailed, genErr.Error())
	w.log.Error().Uint("job_id", job.ID).Err(genErr).Msg("worker.job_failed")
	w.notify(ctx, entry.BulkJobID)
}

func (w *Worker) notify(ctx context.Context, bulkJobID uint) {
	if w.sink != nil {
		w.sink.JobFinished(ctx, bulkJobID)
	}
}

func (w *Worker) appendEvent(ctx context.Context, job *models.UnitJob, eventType, message string) {
	event := &models.JobEvent{
		JobID:     job.ID,
		BulkJobID: job.BulkJobID,
		EventType: eventType,
		Message:   message,
	}
	if err := w.store.AppendEvent(ctx, event); err != nil {
		w.log.Error().Uint("job_id", job.ID).Str("event", eventType).Err(err).Msg("worker.event_append_failed")
	}
}
