package dto

import "time"

type OutcomeDTO struct {
	ArtifactID     string    `json:"artifact_id" validate:"required"`
	Channel        string    `json:"channel" validate:"required"`
	ContentKind    string    `json:"content_kind" validate:"required"`
	PostedAt       time.Time `json:"posted_at" validate:"required"`
	EngagementRate float64   `json:"engagement_rate" validate:"gte=0,lte=1"`
}
