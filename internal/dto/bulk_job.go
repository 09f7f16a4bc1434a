package dto

import (
	"encoding/json"
	"time"
)

type BulkJobCreateDTO struct {
	SourceRef string `json:"source_ref" validate:"required"`
	ActorID   string `json:"actor_id" validate:"required"`
	Priority  int    `json:"priority" validate:"omitempty,oneof=1 5 10"`
}

type BulkJobCreateResponseDTO struct {
	ID     uint   `json:"id"`
	Status string `json:"status"`
}

// BulkJobActionDTO reports a pause or cancel request. Changed is false when
// the batch was already in a state the action cannot move it out of.
type BulkJobActionDTO struct {
	ID      uint `json:"id"`
	Changed bool `json:"changed"`
}

type BulkJobStatusDTO struct {
	ID              uint       `json:"id"`
	SourceRef       string     `json:"source_ref"`
	ActorID         string     `json:"actor_id"`
	Priority        int        `json:"priority"`
	Status          string     `json:"status"`
	ProgressPercent float64    `json:"progress_percent"`
	TotalItems      int        `json:"total_items"`
	Completed       int        `json:"completed"`
	Failed          int        `json:"failed"`
	Cancelled       int        `json:"cancelled"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type UnitJobDTO struct {
	ID             uint            `json:"id"`
	BulkJobID      uint            `json:"bulk_job_id"`
	Provider       string          `json:"provider"`
	Priority       int             `json:"priority"`
	Status         string          `json:"status"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	OutputRef      string          `json:"output_ref,omitempty"`
	Cost           float64         `json:"cost"`
	RetryCount     int             `json:"retry_count"`
	MaxRetries     int             `json:"max_retries"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type JobEventDTO struct {
	ID              uint      `json:"id"`
	JobID           uint      `json:"job_id,omitempty"`
	BulkJobID       uint      `json:"bulk_job_id,omitempty"`
	EventType       string    `json:"event_type"`
	Message         string    `json:"message"`
	ProgressPercent float64   `json:"progress_percent,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
