package models

import (
	"time"

	"gorm.io/datatypes"
)

// UnitJob is one retryable piece of work producing one artifact. The payload
// is fixed at creation time; only the status/result columns are mutated by
// the worker and orchestrator.
type UnitJob struct {
	ID             uint           `gorm:"primaryKey"`
	BulkJobID      uint           `gorm:"not null;uniqueIndex:idx_unit_jobs_bulk_idem,priority:1;index"`
	ActorID        string         `gorm:"type:varchar(255);not null"`
	Provider       string         `gorm:"type:varchar(64);not null"`
	Priority       int            `gorm:"not null;default:5"`
	Status         string         `gorm:"type:varchar(32);not null;default:'queued';index"`
	Payload        datatypes.JSON `gorm:"type:jsonb"`
	IdempotencyKey string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_unit_jobs_bulk_idem,priority:2"`
	OutputRef      string         `gorm:"type:varchar(512)"`
	Cost           float64
	RetryCount     int `gorm:"default:0;not null"`
	MaxRetries     int `gorm:"default:3"`
	LastRetryAt    *time.Time
	Error          string `gorm:"type:text"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
