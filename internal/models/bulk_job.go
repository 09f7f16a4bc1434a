package models

import "time"

// BulkJob is a batch of unit jobs created from one ingestion source.
// It owns its children exclusively; a unit job belongs to exactly one batch.
type BulkJob struct {
	ID              uint   `gorm:"primaryKey"`
	SourceRef       string `gorm:"type:varchar(512);not null"`
	ActorID         string `gorm:"type:varchar(255);not null;index"`
	Priority        int    `gorm:"not null;default:5"`
	Status          string `gorm:"type:varchar(32);not null;default:'pending';index"`
	ProgressPercent float64
	TotalItems      int
	IdempotencyKey  string `gorm:"type:varchar(128);not null;uniqueIndex"`
	Error           string `gorm:"type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}
