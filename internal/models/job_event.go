package models

import "time"

// JobEvent is an append-only log entry for a unit job or its bulk job.
// Rows are written once and never updated.
type JobEvent struct {
	ID              uint   `gorm:"primaryKey"`
	JobID           uint   `gorm:"index"`
	BulkJobID       uint   `gorm:"index"`
	EventType       string `gorm:"type:varchar(64);not null"`
	Message         string `gorm:"type:text"`
	ProgressPercent float64
	CreatedAt       time.Time
}
