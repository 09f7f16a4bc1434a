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

type BulkJobRepository struct {
	db *gorm.DB
}

func NewBulkJobRepository(db *gorm.DB) *BulkJobRepository {
	return &BulkJobRepository{db: db}
}

// Create inserts a new bulk job. The unique idempotency_key index rejects a
// concurrent duplicate submission.
func (r *BulkJobRepository) Create(ctx context.Context, bulk *models.BulkJob) error {
	if err := r.db.WithContext(ctx).Create(bulk).Error; err != nil {
		return fmt.Errorf("create bulk job: %w", err)
	}
	return nil
}

// Get retrieves a bulk job by ID.
func (r *BulkJobRepository) Get(ctx context.Context, id uint) (*models.BulkJob, error) {
	var bulk models.BulkJob
	if err := r.db.WithContext(ctx).First(&bulk, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("bulk job not found: %w", err)
		}
		return nil, fmt.Errorf("get bulk job: %w", err)
	}
	return &bulk, nil
}

// GetByIdempotencyKey looks a bulk job up by its idempotency key.
// Returns (nil, nil) when no such bulk job exists.
func (r *BulkJobRepository) GetByIdempotencyKey(ctx context.Context, key string) (*models.BulkJob, error) {
	var bulk models.BulkJob
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&bulk).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bulk job by idempotency key: %w", err)
	}
	return &bulk, nil
}

// TransitionStatus moves a bulk job from one of the given statuses to the
// target. Returns false when nothing matched, which callers surface as an
// idempotent no-op rather than an error.
func (r *BulkJobRepository) TransitionStatus(ctx context.Context, id uint, from []config.BulkStatus, to config.BulkStatus) (bool, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	res := r.db.WithContext(ctx).Model(&models.BulkJob{}).
		Where("id = ? AND status IN ?", id, sources).
		Update("status", string(to))
	if res.Error != nil {
		return false, fmt.Errorf("transition bulk status: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UpdateProgress stores the recomputed progress percentage.
func (r *BulkJobRepository) UpdateProgress(ctx context.Context, id uint, percent float64) error {
	if err := r.db.WithContext(ctx).Model(&models.BulkJob{}).
		Where("id = ?", id).
		Update("progress_percent", percent).Error; err != nil {
		return fmt.Errorf("update bulk progress: %w", err)
	}
	return nil
}

// SetTotalItems records how many valid items ingestion produced.
func (r *BulkJobRepository) SetTotalItems(ctx context.Context, id uint, total int) error {
	if err := r.db.WithContext(ctx).Model(&models.BulkJob{}).
		Where("id = ?", id).
		Update("total_items", total).Error; err != nil {
		return fmt.Errorf("set bulk total items: %w", err)
	}
	return nil
}

// ListActive retrieves every bulk job not yet in a terminal status, oldest
// first. The progress monitor polls these.
func (r *BulkJobRepository) ListActive(ctx context.Context) ([]models.BulkJob, error) {
	active := []string{
		string(config.BulkStatusPending),
		string(config.BulkStatusRunning),
		string(config.BulkStatusPaused),
	}
	var bulks []models.BulkJob
	if err := r.db.WithContext(ctx).
		Where("status IN ?", active).
		Order("created_at asc, id asc").
		Find(&bulks).Error; err != nil {
		return nil, fmt.Errorf("list active bulk jobs: %w", err)
	}
	return bulks, nil
}

// Finish moves a bulk job to a terminal status with its final error message
// and completion timestamp, guarded against double completion.
func (r *BulkJobRepository) Finish(ctx context.Context, id uint, status config.BulkStatus, errMsg string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish bulk job: %q is not terminal", status)
	}

	now := time.Now().UTC()
	nonTerminal := []string{
		string(config.BulkStatusPending),
		string(config.BulkStatusRunning),
		string(config.BulkStatusPaused),
	}
	res := r.db.WithContext(ctx).Model(&models.BulkJob{}).
		Where("id = ? AND status IN ?", id, nonTerminal).
		Updates(map[string]any{
			"status":       string(status),
			"error":        errMsg,
			"completed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("finish bulk job: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
