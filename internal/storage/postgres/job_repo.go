package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/models"
)

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// transitionSources returns every status from which the state machine allows
// moving to target. Used to build guarded updates so a terminal or
// out-of-order row is never mutated.
func transitionSources(target config.JobStatus) []string {
	var from []string
	for _, s := range []config.JobStatus{
		config.JobStatusQueued, config.JobStatusDispatched, config.JobStatusInProgress,
		config.JobStatusRateLimited, config.JobStatusRetried,
	} {
		if config.CanTransition(s, target) {
			from = append(from, string(s))
		}
	}
	return from
}

// CreateUnitJob inserts a new unit job. The (bulk_job_id, idempotency_key)
// unique index rejects duplicates; callers treat that as "already exists".
func (r *JobRepository) CreateUnitJob(ctx context.Context, job *models.UnitJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create unit job: %w", err)
	}
	return nil
}

// GetUnitJob retrieves a single unit job by ID.
func (r *JobRepository) GetUnitJob(ctx context.Context, id uint) (*models.UnitJob, error) {
	var job models.UnitJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("unit job not found: %w", err)
		}
		return nil, fmt.Errorf("get unit job: %w", err)
	}
	return &job, nil
}

// GetByIdempotencyKey looks up a unit job by its idempotency key within one
// bulk job. Returns (nil, nil) when no such job exists.
func (r *JobRepository) GetByIdempotencyKey(ctx context.Context, bulkJobID uint, key string) (*models.UnitJob, error) {
	var job models.UnitJob
	err := r.db.WithContext(ctx).
		Where("bulk_job_id = ? AND idempotency_key = ?", bulkJobID, key).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unit job by idempotency key: %w", err)
	}
	return &job, nil
}

// TransitionStatus moves a job to the target status, but only from a status
// the state machine allows. Returns false when the guarded update matched no
// row (already terminal, or raced with another transition).
func (r *JobRepository) TransitionStatus(ctx context.Context, id uint, target config.JobStatus) (bool, error) {
	from := transitionSources(target)
	if len(from) == 0 {
		return false, fmt.Errorf("no transition into status %q", target)
	}

	res := r.db.WithContext(ctx).Model(&models.UnitJob{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", string(target))
	if res.Error != nil {
		return false, fmt.Errorf("transition status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// MarkCompleted finishes a job: records the artifact reference and cost and
// flips the status from in_progress to completed in one guarded update.
func (r *JobRepository) MarkCompleted(ctx context.Context, id uint, outputRef string, cost float64) error {
	res := r.db.WithContext(ctx).Model(&models.UnitJob{}).
		Where("id = ? AND status = ?", id, string(config.JobStatusInProgress)).
		Updates(map[string]any{
			"status":     string(config.JobStatusCompleted),
			"output_ref": outputRef,
			"cost":       cost,
			"error":      "",
		})
	if res.Error != nil {
		return fmt.Errorf("mark completed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark completed: job %d not in progress", id)
	}
	return nil
}

// MarkFailed moves a job to terminal failed with the final error message.
func (r *JobRepository) MarkFailed(ctx context.Context, id uint, errMsg string) error {
	res := r.db.WithContext(ctx).Model(&models.UnitJob{}).
		Where("id = ? AND status = ?", id, string(config.JobStatusInProgress)).
		Updates(map[string]any{
			"status": string(config.JobStatusFailed),
			"error":  errMsg,
		})
	if res.Error != nil {
		return fmt.Errorf("mark failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("mark failed: job %d not in progress", id)
	}
	return nil
}

// RegisterRetry increments the retry counter, stamps last_retry_at, records
// the error and sets status retried. Uses gorm.Expr so the increment is
// atomic at the database level. Returns false when the guarded update matched
// no row: the budget is spent or the job is not in progress. A store failure
// is an error, never a false.
func (r *JobRepository) RegisterRetry(ctx context.Context, id uint, errMsg string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&models.UnitJob{}).
		Where("id = ? AND status = ? AND retry_count < max_retries", id, string(config.JobStatusInProgress)).
		Updates(map[string]any{
			"status":        string(config.JobStatusRetried),
			"retry_count":   gorm.Expr("retry_count + ?", 1),
			"last_retry_at": now,
			"error":         errMsg,
		})
	if res.Error != nil {
		return false, fmt.Errorf("register retry: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CancelBulkChildren marks every non-terminal child of a bulk job cancelled
// and returns how many rows changed.
func (r *JobRepository) CancelBulkChildren(ctx context.Context, bulkJobID uint) (int64, error) {
	terminal := []string{
		string(config.JobStatusCompleted),
		string(config.JobStatusFailed),
		string(config.JobStatusCancelled),
	}
	res := r.db.WithContext(ctx).Model(&models.UnitJob{}).
		Where("bulk_job_id = ? AND status NOT IN ?", bulkJobID, terminal).
		Update("status", string(config.JobStatusCancelled))
	if res.Error != nil {
		return 0, fmt.Errorf("cancel bulk children: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListByBulk retrieves all unit jobs of a bulk job ordered by creation.
func (r *JobRepository) ListByBulk(ctx context.Context, bulkJobID uint) ([]models.UnitJob, error) {
	var jobs []models.UnitJob
	if err := r.db.WithContext(ctx).
		Where("bulk_job_id = ?", bulkJobID).
		Order("created_at asc, id asc").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list unit jobs: %w", err)
	}
	return jobs, nil
}

// ListByBulkAndStatus retrieves the bulk job's children in one status.
func (r *JobRepository) ListByBulkAndStatus(ctx context.Context, bulkJobID uint, status config.JobStatus) ([]models.UnitJob, error) {
	var jobs []models.UnitJob
	if err := r.db.WithContext(ctx).
		Where("bulk_job_id = ? AND status = ?", bulkJobID, string(status)).
		Order("created_at asc, id asc").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list unit jobs by status: %w", err)
	}
	return jobs, nil
}

// ListByStatus retrieves every unit job in one status across all bulk jobs,
// oldest first. Startup uses it to rebuild the in-memory queue.
func (r *JobRepository) ListByStatus(ctx context.Context, status config.JobStatus) ([]models.UnitJob, error) {
	var jobs []models.UnitJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at asc, id asc").
		Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list unit jobs by status: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns the bulk job's child counts grouped by status.
func (r *JobRepository) CountByStatus(ctx context.Context, bulkJobID uint) (map[config.JobStatus]int, error) {
	type row struct {
		Status string
		N      int
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&models.UnitJob{}).
		Select("status, count(*) as n").
		Where("bulk_job_id = ?", bulkJobID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count unit jobs by status: %w", err)
	}

	counts := make(map[config.JobStatus]int, len(rows))
	for _, r := range rows {
		counts[config.JobStatus(r.Status)] = r.N
	}
	return counts, nil
}

// AppendEvent writes one append-only job event. Events are never updated.
func (r *JobRepository) AppendEvent(ctx context.Context, event *models.JobEvent) error {
	if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("append job event: %w", err)
	}
	return nil
}

// ListEventsByBulk retrieves the event log for a bulk job, oldest first.
func (r *JobRepository) ListEventsByBulk(ctx context.Context, bulkJobID uint) ([]models.JobEvent, error) {
	var events []models.JobEvent
	if err := r.db.WithContext(ctx).
		Where("bulk_job_id = ?", bulkJobID).
		Order("created_at asc, id asc").
		Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list job events: %w", err)
	}
	return events, nil
}
