package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pubplan/pubplan/internal/models"
)

type ScheduleRepository struct {
	db *gorm.DB
}

func NewScheduleRepository(db *gorm.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// SavePlan persists a plan together with its assignments in one create.
func (r *ScheduleRepository) SavePlan(ctx context.Context, plan *models.SchedulePlan) error {
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("save schedule plan: %w", err)
	}
	return nil
}

// GetPlanByPublicID retrieves a plan with its assignments preloaded.
func (r *ScheduleRepository) GetPlanByPublicID(ctx context.Context, publicID string) (*models.SchedulePlan, error) {
	var plan models.SchedulePlan
	err := r.db.WithContext(ctx).
		Preload("Assignments").
		Where("public_id = ?", publicID).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("schedule plan not found: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("get schedule plan: %w", err)
	}
	return &plan, nil
}

// ListAssignmentsSince returns a channel's committed assignments scheduled
// at or after the given time, newest last. The optimizer uses these for the
// recency penalty and spacing checks against already-committed plans.
func (r *ScheduleRepository) ListAssignmentsSince(ctx context.Context, channel string, since time.Time) ([]models.PlanAssignment, error) {
	var assignments []models.PlanAssignment
	if err := r.db.WithContext(ctx).
		Where("channel = ? AND scheduled_at >= ?", channel, since).
		Order("scheduled_at asc").
		Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}

// GetWeight fetches the adaptive weight row for one slot.
// Returns (nil, nil) on miss; reads never create rows.
func (r *ScheduleRepository) GetWeight(ctx context.Context, channel, kind string, weekday, hour int) (*models.AdaptiveWeight, error) {
	var w models.AdaptiveWeight
	err := r.db.WithContext(ctx).
		Where("channel = ? AND content_kind = ? AND weekday = ? AND hour = ?", channel, kind, weekday, hour).
		First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get adaptive weight: %w", err)
	}
	return &w, nil
}

// UpsertWeight inserts or updates a slot's posterior in one statement keyed
// on the (channel, content_kind, weekday, hour) unique index.
func (r *ScheduleRepository) UpsertWeight(ctx context.Context, w *models.AdaptiveWeight) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "channel"}, {Name: "content_kind"}, {Name: "weekday"}, {Name: "hour"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"smoothed_weight", "posterior_alpha", "posterior_beta", "updated_at",
		}),
	}).Create(w).Error
	if err != nil {
		return fmt.Errorf("upsert adaptive weight: %w", err)
	}
	return nil
}

// ListWeights returns every adaptive weight row, for warming the in-memory
// table at startup.
func (r *ScheduleRepository) ListWeights(ctx context.Context) ([]models.AdaptiveWeight, error) {
	var weights []models.AdaptiveWeight
	if err := r.db.WithContext(ctx).Find(&weights).Error; err != nil {
		return nil, fmt.Errorf("list adaptive weights: %w", err)
	}
	return weights, nil
}

// CreateOutcome stores one reported outcome metric for the next sweep.
func (r *ScheduleRepository) CreateOutcome(ctx context.Context, m *models.OutcomeMetric) error {
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create outcome metric: %w", err)
	}
	return nil
}

// ListUnprocessedOutcomes returns up to limit outcome rows the sweep has not
// folded into the adaptive weights yet, oldest first.
func (r *ScheduleRepository) ListUnprocessedOutcomes(ctx context.Context, limit int) ([]models.OutcomeMetric, error) {
	var metrics []models.OutcomeMetric
	if err := r.db.WithContext(ctx).
		Where("processed = ?", false).
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&metrics).Error; err != nil {
		return nil, fmt.Errorf("list unprocessed outcomes: %w", err)
	}
	return metrics, nil
}

// MarkOutcomesProcessed flags the given outcome rows as folded in.
func (r *ScheduleRepository) MarkOutcomesProcessed(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&models.OutcomeMetric{}).
		Where("id IN ?", ids).
		Update("processed", true).Error; err != nil {
		return fmt.Errorf("mark outcomes processed: %w", err)
	}
	return nil
}
