package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/pubplan/pubplan/common"
	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/dto"
	"github.com/pubplan/pubplan/internal/ingest"
	"github.com/pubplan/pubplan/internal/models"
	"github.com/pubplan/pubplan/internal/queue"
)

// Event types written to the append-only job event log.
const (
	EventBulkCreated   = "bulk_created"
	EventIngested      = "ingested"
	EventIngestFailed  = "ingest_failed"
	EventItemSkipped   = "item_skipped"
	EventItemDuplicate = "item_duplicate"
	EventPaused        = "paused"
	EventResumed       = "resumed"
	EventCancelled     = "cancelled"
	EventProgress      = "progress"
)

// Orchestrator owns the bulk job lifecycle: idempotent creation, item
// ingestion, pause/resume/cancel and progress tracking. Unit job execution
// itself belongs to the worker.
type Orchestrator struct {
	bulks  BulkStore
	jobs   JobStore
	queue  *queue.PriorityQueue
	ingest ingest.Service
	log    zerolog.Logger

	monitorPoll time.Duration
	maxRetries  int

	mu     sync.RWMutex
	paused map[uint]struct{}

	// spawn runs ingestion off the request path; tests replace it to run
	// synchronously.
	spawn func(fn func())
}

func New(
	bulks BulkStore,
	jobs JobStore,
	q *queue.PriorityQueue,
	src ingest.Service,
	monitorPoll time.Duration,
	maxRetries int,
	log zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		bulks:       bulks,
		jobs:        jobs,
		queue:       q,
		ingest:      src,
		log:         log.With().Str("component", "orchestrator").Logger(),
		monitorPoll: monitorPoll,
		maxRetries:  maxRetries,
		paused:      make(map[uint]struct{}),
		spawn:       func(fn func()) { go fn() },
	}
}

// idempotencyKey derives the bulk job's natural key from what the client
// submitted, so retransmitting the same request cannot create a second batch.
func idempotencyKey(sourceRef, actorID string, priority config.Priority) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", sourceRef, actorID, priority))
	return hex.EncodeToString(sum[:])
}

// CreateBulkJob registers a new batch and kicks off ingestion. Submitting the
// same source/actor/priority again returns the existing batch unchanged.
func (o *Orchestrator) CreateBulkJob(ctx context.Context, in *dto.BulkJobCreateDTO) (*dto.BulkJobCreateResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, common.Errf(http.StatusRequestTimeout, "request canceled or timed out")
	}

	priority := config.Priority(in.Priority)
	if !priority.Valid() {
		priority = config.PriorityNormal
	}

	key := idempotencyKey(in.SourceRef, in.ActorID, priority)
	existing, err := o.bulks.GetByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to check for existing bulk job")
	}
	if existing != nil {
		return &dto.BulkJobCreateResponseDTO{ID: existing.ID, Status: existing.Status}, nil
	}

	bulk := models.BulkJob{
		SourceRef:      in.SourceRef,
		ActorID:        in.ActorID,
		Priority:       int(priority),
		Status:         string(config.BulkStatusPending),
		IdempotencyKey: key,
	}
	if err := o.bulks.Create(ctx, &bulk); err != nil {
		// A concurrent duplicate hit the unique index first; hand back its row.
		if existing, lookupErr := o.bulks.GetByIdempotencyKey(ctx, key); lookupErr == nil && existing != nil {
			return &dto.BulkJobCreateResponseDTO{ID: existing.ID, Status: existing.Status}, nil
		}
		return nil, common.Errf(http.StatusInternalServerError, "failed to create bulk job")
	}

	o.appendEvent(ctx, 0, bulk.ID, EventBulkCreated, fmt.Sprintf("source %s", bulk.SourceRef), 0)
	o.log.Info().Uint("bulk_job_id", bulk.ID).Str("actor", bulk.ActorID).Msg("orchestrator.bulk_created")

	o.spawn(func() { o.Ingest(context.Background(), bulk.ID) })

	return &dto.BulkJobCreateResponseDTO{ID: bulk.ID, Status: bulk.Status}, nil
}

// Ingest reads the batch's source, turns each valid item into a queued unit
// job and records the total. A malformed item is skipped with an event; it
// never poisons its siblings. A source that cannot be read at all fails the
// whole batch.
func (o *Orchestrator) Ingest(ctx context.Context, bulkJobID uint) error {
	ok, err := o.bulks.TransitionStatus(ctx, bulkJobID,
		[]config.BulkStatus{config.BulkStatusPending}, config.BulkStatusRunning)
	if err != nil {
		return fmt.Errorf("start ingestion: %w", err)
	}
	if !ok {
		return fmt.Errorf("bulk job %d is not pending", bulkJobID)
	}

	bulk, err := o.bulks.Get(ctx, bulkJobID)
	if err != nil {
		return fmt.Errorf("load bulk job: %w", err)
	}

	items, err := o.ingest.ReadItems(ctx, bulk.SourceRef)
	if err != nil {
		o.appendEvent(ctx, 0, bulkJobID, EventIngestFailed, err.Error(), 0)
		o.finish(ctx, bulkJobID, config.BulkStatusFailed, fmt.Sprintf("source unreadable: %v", err))
		return fmt.Errorf("read items: %w", err)
	}

	created := 0
	for i, item := range items {
		job, err := o.buildUnitJob(bulk, i, item)
		if err != nil {
			o.appendEvent(ctx, 0, bulkJobID, EventItemSkipped, fmt.Sprintf("item %d: %v", i, err), 0)
			o.log.Warn().Uint("bulk_job_id", bulkJobID).Int("item", i).Err(err).Msg("orchestrator.item_skipped")
			continue
		}

		if err := o.jobs.CreateUnitJob(ctx, job); err != nil {
			existing, lookupErr := o.jobs.GetByIdempotencyKey(ctx, bulkJobID, job.IdempotencyKey)
			if lookupErr == nil && existing != nil {
				o.appendEvent(ctx, existing.ID, bulkJobID, EventItemDuplicate, job.IdempotencyKey, 0)
				continue
			}
			o.appendEvent(ctx, 0, bulkJobID, EventItemSkipped, fmt.Sprintf("item %d: %v", i, err), 0)
			continue
		}

		created++
		o.queue.Enqueue(queue.Entry{
			JobID:     job.ID,
			BulkJobID: bulkJobID,
			ActorID:   job.ActorID,
			Provider:  job.Provider,
			Priority:  config.Priority(job.Priority),
			CreatedAt: job.CreatedAt,
		})
	}

	if err := o.bulks.SetTotalItems(ctx, bulkJobID, created); err != nil {
		return fmt.Errorf("set total items: %w", err)
	}

	if created == 0 {
		o.finish(ctx, bulkJobID, config.BulkStatusFailed, "no valid items in source")
		return fmt.Errorf("bulk job %d: no valid items", bulkJobID)
	}

	o.appendEvent(ctx, 0, bulkJobID, EventIngested, fmt.Sprintf("%d of %d items queued", created, len(items)), 0)
	o.log.Info().Uint("bulk_job_id", bulkJobID).Int("queued", created).Int("total", len(items)).Msg("orchestrator.ingested")
	return nil
}

// buildUnitJob validates one raw item and shapes it into a unit job. The item
// keeps its submitted priority when valid, otherwise inherits the batch's.
func (o *Orchestrator) buildUnitJob(bulk *models.BulkJob, index int, item ingest.RawItem) (*models.UnitJob, error) {
	artifactID, _ := item["artifact_id"].(string)
	if artifactID == "" {
		return nil, fmt.Errorf("missing artifact_id")
	}
	provider, _ := item["provider"].(string)
	if !slices.Contains(config.AllowedProviders, provider) {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	priority := config.Priority(bulk.Priority)
	if p, ok := item["priority"].(float64); ok && config.Priority(p).Valid() {
		priority = config.Priority(p)
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s", artifactID, provider))
	return &models.UnitJob{
		BulkJobID:      bulk.ID,
		ActorID:        bulk.ActorID,
		Provider:       provider,
		Priority:       int(priority),
		Status:         string(config.JobStatusQueued),
		Payload:        datatypes.JSON(payload),
		IdempotencyKey: hex.EncodeToString(sum[:]),
		MaxRetries:     o.maxRetries,
	}, nil
}

// Status returns a snapshot of the batch with per-status child counts.
func (o *Orchestrator) Status(ctx context.Context, bulkJobID uint) (*dto.BulkJobStatusDTO, error) {
	bulk, err := o.bulks.Get(ctx, bulkJobID)
	if err != nil {
		return nil, common.Errf(http.StatusNotFound, "bulk job not found")
	}

	counts, err := o.jobs.CountByStatus(ctx, bulkJobID)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to count unit jobs")
	}

	return &dto.BulkJobStatusDTO{
		ID:              bulk.ID,
		SourceRef:       bulk.SourceRef,
		ActorID:         bulk.ActorID,
		Priority:        bulk.Priority,
		Status:          bulk.Status,
		ProgressPercent: bulk.ProgressPercent,
		TotalItems:      bulk.TotalItems,
		Completed:       counts[config.JobStatusCompleted],
		Failed:          counts[config.JobStatusFailed],
		Cancelled:       counts[config.JobStatusCancelled],
		Error:           bulk.Error,
		CreatedAt:       bulk.CreatedAt,
		CompletedAt:     bulk.CompletedAt,
	}, nil
}

// Pause stops dispatching the batch's jobs; jobs already in flight finish
// their current attempt. Only a running batch changes state: pausing a batch
// that is already paused or already terminal is a no-op reporting false.
func (o *Orchestrator) Pause(ctx context.Context, bulkJobID uint) (bool, error) {
	ok, err := o.bulks.TransitionStatus(ctx, bulkJobID,
		[]config.BulkStatus{config.BulkStatusRunning}, config.BulkStatusPaused)
	if err != nil {
		return false, common.Errf(http.StatusInternalServerError, "failed to pause bulk job")
	}
	if !ok {
		return false, nil
	}

	o.mu.Lock()
	o.paused[bulkJobID] = struct{}{}
	o.mu.Unlock()

	o.appendEvent(ctx, 0, bulkJobID, EventPaused, "", 0)
	o.log.Info().Uint("bulk_job_id", bulkJobID).Msg("orchestrator.paused")
	return true, nil
}

// Resume reopens a paused batch and puts its retried children back in line.
func (o *Orchestrator) Resume(ctx context.Context, bulkJobID uint) error {
	ok, err := o.bulks.TransitionStatus(ctx, bulkJobID,
		[]config.BulkStatus{config.BulkStatusPaused}, config.BulkStatusRunning)
	if err != nil {
		return common.Errf(http.StatusInternalServerError, "failed to resume bulk job")
	}
	if !ok {
		return common.Errf(http.StatusConflict, "bulk job is not paused")
	}

	o.mu.Lock()
	delete(o.paused, bulkJobID)
	o.mu.Unlock()

	retried, err := o.jobs.ListByBulkAndStatus(ctx, bulkJobID, config.JobStatusRetried)
	if err != nil {
		return common.Errf(http.StatusInternalServerError, "failed to list retried jobs")
	}
	for _, job := range retried {
		if ok, err := o.jobs.TransitionStatus(ctx, job.ID, config.JobStatusQueued); err != nil || !ok {
			continue
		}
		o.queue.Enqueue(queue.Entry{
			JobID:     job.ID,
			BulkJobID: bulkJobID,
			ActorID:   job.ActorID,
			Provider:  job.Provider,
			Priority:  config.Priority(job.Priority),
			CreatedAt: job.CreatedAt,
		})
	}

	o.appendEvent(ctx, 0, bulkJobID, EventResumed, "", 0)
	o.log.Info().Uint("bulk_job_id", bulkJobID).Int("requeued", len(retried)).Msg("orchestrator.resumed")
	return nil
}

// Cancel terminally stops the batch: the bulk row, every non-terminal child
// and every queued entry. Jobs already completed stay completed; cancelling
// an already-terminal batch is a no-op reporting false.
func (o *Orchestrator) Cancel(ctx context.Context, bulkJobID uint) (bool, error) {
	ok, err := o.bulks.Finish(ctx, bulkJobID, config.BulkStatusCancelled, "cancelled by actor")
	if err != nil {
		return false, common.Errf(http.StatusInternalServerError, "failed to cancel bulk job")
	}
	if !ok {
		return false, nil
	}

	cancelled, err := o.jobs.CancelBulkChildren(ctx, bulkJobID)
	if err != nil {
		return true, common.Errf(http.StatusInternalServerError, "failed to cancel unit jobs")
	}
	dropped := o.queue.Drop(bulkJobID)

	o.mu.Lock()
	delete(o.paused, bulkJobID)
	o.mu.Unlock()

	o.appendEvent(ctx, 0, bulkJobID, EventCancelled, fmt.Sprintf("%d jobs cancelled", cancelled), 0)
	o.log.Info().
		Uint("bulk_job_id", bulkJobID).
		Int64("jobs_cancelled", cancelled).
		Int("entries_dropped", dropped).
		Msg("orchestrator.cancelled")
	return true, nil
}

// Events returns the batch's append-only event log, oldest first.
func (o *Orchestrator) Events(ctx context.Context, bulkJobID uint) ([]dto.JobEventDTO, error) {
	events, err := o.jobs.ListEventsByBulk(ctx, bulkJobID)
	if err != nil {
		return nil, common.Errf(http.StatusInternalServerError, "failed to list events")
	}

	out := make([]dto.JobEventDTO, len(events))
	for i, e := range events {
		out[i] = dto.JobEventDTO{
			ID:              e.ID,
			JobID:           e.JobID,
			BulkJobID:       e.BulkJobID,
			EventType:       e.EventType,
			Message:         e.Message,
			ProgressPercent: e.ProgressPercent,
			CreatedAt:       e.CreatedAt,
		}
	}
	return out, nil
}

// Paused reports whether the batch is paused. Workers consult this before
// starting a dequeued job.
func (o *Orchestrator) Paused(bulkJobID uint) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.paused[bulkJobID]
	return ok
}

// JobFinished recomputes the batch's progress after one child reached a
// terminal status. Workers call it as their progress sink.
func (o *Orchestrator) JobFinished(ctx context.Context, bulkJobID uint) {
	if err := o.refreshProgress(ctx, bulkJobID); err != nil {
		o.log.Error().Uint("bulk_job_id", bulkJobID).Err(err).Msg("orchestrator.progress_refresh_failed")
	}
}

// RunMonitor polls active batches until the context is done, refreshing
// progress and re-syncing the in-memory pause set after a restart.
func (o *Orchestrator) RunMonitor(ctx context.Context) {
	ticker := time.NewTicker(o.monitorPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.monitorTick(ctx)
		}
	}
}

func (o *Orchestrator) monitorTick(ctx context.Context) {
	active, err := o.bulks.ListActive(ctx)
	if err != nil {
		o.log.Error().Err(err).Msg("orchestrator.monitor_list_failed")
		return
	}

	fresh := make(map[uint]struct{})
	for _, bulk := range active {
		if bulk.Status == string(config.BulkStatusPaused) {
			fresh[bulk.ID] = struct{}{}
		}
		if bulk.TotalItems == 0 {
			continue
		}
		if err := o.refreshProgress(ctx, bulk.ID); err != nil {
			o.log.Error().Uint("bulk_job_id", bulk.ID).Err(err).Msg("orchestrator.progress_refresh_failed")
		}
	}

	o.mu.Lock()
	o.paused = fresh
	o.mu.Unlock()
}

// refreshProgress recomputes the terminal-child percentage and closes the
// batch once every child settled: failed when any child failed, completed
// otherwise.
func (o *Orchestrator) refreshProgress(ctx context.Context, bulkJobID uint) error {
	bulk, err := o.bulks.Get(ctx, bulkJobID)
	if err != nil {
		return err
	}
	if bulk.TotalItems == 0 {
		return nil
	}

	counts, err := o.jobs.CountByStatus(ctx, bulkJobID)
	if err != nil {
		return err
	}

	done := counts[config.JobStatusCompleted] + counts[config.JobStatusFailed] + counts[config.JobStatusCancelled]
	percent := float64(done) / float64(bulk.TotalItems) * 100
	if err := o.bulks.UpdateProgress(ctx, bulkJobID, percent); err != nil {
		return err
	}
	o.appendEvent(ctx, 0, bulkJobID, EventProgress, "", percent)

	if done < bulk.TotalItems {
		return nil
	}

	status := config.BulkStatusCompleted
	errMsg := ""
	if failed := counts[config.JobStatusFailed]; failed > 0 {
		status = config.BulkStatusFailed
		errMsg = fmt.Sprintf("%d of %d unit jobs failed", failed, bulk.TotalItems)
	}
	o.finish(ctx, bulkJobID, status, errMsg)
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, bulkJobID uint, status config.BulkStatus, errMsg string) {
	ok, err := o.bulks.Finish(ctx, bulkJobID, status, errMsg)
	if err != nil {
		o.log.Error().Uint("bulk_job_id", bulkJobID).Err(err).Msg("orchestrator.finish_failed")
		return
	}
	if ok {
		o.log.Info().Uint("bulk_job_id", bulkJobID).Str("status", string(status)).Msg("orchestrator.bulk_finished")
	}
}

func (o *Orchestrator) appendEvent(ctx context.Context, jobID, bulkJobID uint, eventType, message string, percent float64) {
	event := &models.JobEvent{
		JobID:           jobID,
		BulkJobID:       bulkJobID,
		EventType:       eventType,
		Message:         message,
		ProgressPercent: percent,
	}
	if err := o.jobs.AppendEvent(ctx, event); err != nil {
		o.log.Error().Uint("bulk_job_id", bulkJobID).Str("event", eventType).Err(err).Msg("orchestrator.event_append_failed")
	}
}
