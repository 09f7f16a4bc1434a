package models

import "time"

// OutcomeMetric is one observed post-hoc performance sample for a published
// artifact. The periodic sweep folds unprocessed rows into AdaptiveWeight.
type OutcomeMetric struct {
	ID             uint   `gorm:"primaryKey"`
	ArtifactID     string `gorm:"type:varchar(255);not null"`
	Channel        string `gorm:"type:varchar(32);not null"`
	ContentKind    string `gorm:"type:varchar(32);not null"`
	PostedAt       time.Time
	EngagementRate float64
	Processed      bool `gorm:"default:false;index"`
	CreatedAt      time.Time
}
