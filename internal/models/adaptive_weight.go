package models

import "time"

// AdaptiveWeight is the Beta-posterior record for one (channel, kind,
// weekday, hour) slot. Rows are upserted by the outcome sweep and only ever
// updated, never deleted.
type AdaptiveWeight struct {
	ID             uint   `gorm:"primaryKey"`
	Channel        string `gorm:"type:varchar(32);not null;uniqueIndex:idx_adaptive_slot,priority:1"`
	ContentKind    string `gorm:"type:varchar(32);not null;uniqueIndex:idx_adaptive_slot,priority:2"`
	Weekday        int    `gorm:"not null;uniqueIndex:idx_adaptive_slot,priority:3"`
	Hour           int    `gorm:"not null;uniqueIndex:idx_adaptive_slot,priority:4"`
	SmoothedWeight float64
	PosteriorAlpha float64 `gorm:"default:1"`
	PosteriorBeta  float64 `gorm:"default:1"`
	UpdatedAt      time.Time
}
