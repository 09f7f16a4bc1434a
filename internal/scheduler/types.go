package scheduler

import (
	"time"

	"github.com/pubplan/pubplan/internal/config"
)

// AudienceProfile describes who a channel reaches; it shifts hourly scores
// toward when that audience is actually online.
type AudienceProfile struct {
	AgeBand     string  // one of "13-17", "18-24", "25-34", "35-44", "45+"
	MobileShare float64 // fraction of the audience on mobile devices
}

// Constraint is a channel's hard scheduling policy.
type Constraint struct {
	Channel            config.Channel
	MinGapHours        int
	MaxConcurrentPosts int
}

// CandidatePost is one ready-to-publish artifact awaiting a slot.
type CandidatePost struct {
	ArtifactID  string
	Channel     config.Channel
	ContentKind config.ContentKind
	Priority    config.Priority
}

// Assignment pins a candidate to a concrete publish time. Violations names
// the constraints the slot breaches; the slot is committed regardless so a
// batch never silently loses posts.
type Assignment struct {
	ArtifactID  string
	Channel     config.Channel
	ContentKind config.ContentKind
	ScheduledAt time.Time
	Score       float64
	Penalty     float64
	Violations  []string
}

// Plan is one full assignment run over a batch of candidates.
type Plan struct {
	PlanID      string
	BulkJobID   *uint
	CreatedAt   time.Time
	Assignments []Assignment
}

// AssignRequest carries everything one Assign call needs. RecentPosts holds
// the most recent already-published time per channel so new slots keep their
// distance from history, not just from each other.
type AssignRequest struct {
	Posts         []CandidatePost
	Constraints   map[config.Channel]Constraint
	Audiences     map[config.Channel]AudienceProfile
	WindowStart   time.Time
	WindowEnd     time.Time
	MaxConcurrent int
	RecentPosts   map[config.Channel]time.Time
	BulkJobID     *uint
}

// Violation names recorded on best-effort assignments.
const (
	ViolationMinGap        = "min_gap_hours"
	ViolationMaxConcurrent = "max_concurrent_posts"
	ViolationProhibited    = "prohibited_window"
)
