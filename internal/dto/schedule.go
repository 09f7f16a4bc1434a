package dto

import "time"

type ScheduleArtifactDTO struct {
	ArtifactID  string `json:"artifact_id" validate:"required"`
	Channel     string `json:"channel" validate:"required"`
	ContentKind string `json:"content_kind" validate:"required"`
	Priority    int    `json:"priority" validate:"omitempty,oneof=1 5 10"`
}

type ScheduleConstraintDTO struct {
	Channel            string `json:"channel" validate:"required"`
	MinGapHours        int    `json:"min_gap_hours" validate:"gte=0,lte=168"`
	MaxConcurrentPosts int    `json:"max_concurrent_posts" validate:"gte=0"`
}

type AudienceProfileDTO struct {
	Channel     string  `json:"channel" validate:"required"`
	AgeBand     string  `json:"age_band" validate:"omitempty,oneof=13-17 18-24 25-34 35-44 45+"`
	MobileShare float64 `json:"mobile_share" validate:"gte=0,lte=1"`
}

type ScheduleRequestDTO struct {
	BulkJobID     *uint                   `json:"bulk_job_id,omitempty"`
	Artifacts     []ScheduleArtifactDTO   `json:"artifacts" validate:"required,min=1,dive"`
	Constraints   []ScheduleConstraintDTO `json:"constraints" validate:"dive"`
	Audiences     []AudienceProfileDTO    `json:"audiences" validate:"dive"`
	WindowStart   time.Time               `json:"window_start" validate:"required"`
	WindowEnd     time.Time               `json:"window_end" validate:"required"`
	MaxConcurrent int                     `json:"max_concurrent" validate:"gte=0"`
}

type PlanAssignmentDTO struct {
	ArtifactID  string    `json:"artifact_id"`
	Channel     string    `json:"channel"`
	ContentKind string    `json:"content_kind"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Score       float64   `json:"score"`
	Penalty     float64   `json:"penalty"`
	Violations  []string  `json:"violations,omitempty"`
}

type SchedulePlanDTO struct {
	PlanID      string              `json:"plan_id"`
	BulkJobID   *uint               `json:"bulk_job_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	Assignments []PlanAssignmentDTO `json:"assignments"`
}
