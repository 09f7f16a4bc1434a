package orchestrator

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/models"
)

// BulkStore defines the contract for bulk job persistence.
type BulkStore interface {
	Create(ctx context.Context, bulk *models.BulkJob) error
	Get(ctx context.Context, id uint) (*models.BulkJob, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*models.BulkJob, error)
	TransitionStatus(ctx context.Context, id uint, from []config.BulkStatus, to config.BulkStatus) (bool, error)
	UpdateProgress(ctx context.Context, id uint, percent float64) error
	SetTotalItems(ctx context.Context, id uint, total int) error
	ListActive(ctx context.Context) ([]models.BulkJob, error)
	Finish(ctx context.Context, id uint, status config.BulkStatus, errMsg string) (bool, error)
}

// JobStore defines the contract for unit job persistence as the orchestrator
// needs it. The worker carries its own, narrower view.
type JobStore interface {
	CreateUnitJob(ctx context.Context, job *models.UnitJob) error
	GetByIdempotencyKey(ctx context.Context, bulkJobID uint, key string) (*models.UnitJob, error)
	TransitionStatus(ctx context.Context, id uint, target config.JobStatus) (bool, error)
	CancelBulkChildren(ctx context.Context, bulkJobID uint) (int64, error)
	ListByBulkAndStatus(ctx context.Context, bulkJobID uint, status config.JobStatus) ([]models.UnitJob, error)
	CountByStatus(ctx context.Context, bulkJobID uint) (map[config.JobStatus]int, error)
	AppendEvent(ctx context.Context, event *models.JobEvent) error
	ListEventsByBulk(ctx context.Context, bulkJobID uint) ([]models.JobEvent, error)
}

// HandlerInterface defines the contract for the bulk job HTTP handlers.
type HandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	Pause(c *gin.Context)
	Resume(c *gin.Context)
	Cancel(c *gin.Context)
	Events(c *gin.Context)
}
