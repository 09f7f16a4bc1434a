package models

import (
	"time"

	"gorm.io/datatypes"
)

// SchedulePlan is one committed output of the scheduling optimizer: a set of
// publish-slot assignments for a batch of ready artifacts.
type SchedulePlan struct {
	ID          uint   `gorm:"primaryKey"`
	PublicID    string `gorm:"type:varchar(64);not null;uniqueIndex"`
	BulkJobID   *uint  `gorm:"index"`
	CreatedAt   time.Time
	Assignments []PlanAssignment `gorm:"foreignKey:PlanID"`
}

// PlanAssignment pins one artifact to one publish slot on one channel.
// Violations holds the names of constraints the slot breaches; a non-empty
// list means the slot was committed best-effort rather than dropped.
type PlanAssignment struct {
	ID          uint   `gorm:"primaryKey"`
	PlanID      uint   `gorm:"not null;index"`
	ArtifactID  string `gorm:"type:varchar(255);not null"`
	Channel     string `gorm:"type:varchar(32);not null;index"`
	ContentKind string `gorm:"type:varchar(32);not null"`
	ScheduledAt time.Time
	Score       float64
	Penalty     float64
	Violations  datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt   time.Time
}
