package config

// JobStatus is the lifecycle state of a single unit job.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusDispatched  JobStatus = "dispatched"
	JobStatusInProgress  JobStatus = "in_progress"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusRateLimited JobStatus = "rate_limited"
	JobStatusRetried     JobStatus = "retried"
	JobStatusCancelled   JobStatus = "cancelled"
)

// Terminal reports whether a job in this status may never be mutated again,
// short of an archival sweep.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:      {JobStatusDispatched, JobStatusRateLimited, JobStatusCancelled},
	JobStatusDispatched:  {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress:  {JobStatusCompleted, JobStatusFailed, JobStatusRetried, JobStatusCancelled},
	JobStatusRateLimited: {JobStatusQueued, JobStatusCancelled},
	JobStatusRetried:     {JobStatusQueued, JobStatusCancelled},
}

// CanTransition reports whether the job state machine allows from -> to.
// Terminal states have no outgoing edges.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// BulkStatus is the lifecycle state of a bulk job (a batch of unit jobs).
type BulkStatus string

const (
	BulkStatusPending   BulkStatus = "pending"
	BulkStatusRunning   BulkStatus = "running"
	BulkStatusPaused    BulkStatus = "paused"
	BulkStatusCompleted BulkStatus = "completed"
	BulkStatusFailed    BulkStatus = "failed"
	BulkStatusCancelled BulkStatus = "cancelled"
)

func (s BulkStatus) Terminal() bool {
	return s == BulkStatusCompleted || s == BulkStatusFailed || s == BulkStatusCancelled
}

// Priority tiers. Lower numeric value means higher precedence; the queue
// drains urgent before normal before low with no cross-tier fairness.
type Priority int

const (
	PriorityUrgent Priority = 1
	PriorityNormal Priority = 5
	PriorityLow    Priority = 10
)

func (p Priority) Valid() bool {
	return p == PriorityUrgent || p == PriorityNormal || p == PriorityLow
}

// Channel is a publish target platform.
type Channel string

const (
	ChannelYouTube   Channel = "youtube"
	ChannelInstagram Channel = "instagram"
	ChannelTikTok    Channel = "tiktok"
	ChannelTwitter   Channel = "twitter"
	ChannelLinkedIn  Channel = "linkedin"
)

var AllowedChannels = []Channel{
	ChannelYouTube, ChannelInstagram, ChannelTikTok, ChannelTwitter, ChannelLinkedIn,
}

// ContentKind is a per-channel content format.
type ContentKind string

const (
	KindLongForm  ContentKind = "long_form"
	KindShortForm ContentKind = "short_form"
	KindReel      ContentKind = "reel"
	KindStory     ContentKind = "story"
	KindPost      ContentKind = "post"
	KindThread    ContentKind = "thread"
)

var AllowedContentKinds = []ContentKind{
	KindLongForm, KindShortForm, KindReel, KindStory, KindPost, KindThread,
}

// AllowedProviders are the generation backends. Each provider is its own
// rate-limit resource pool.
var AllowedProviders = []string{"video_render", "image_gen", "tts", "text_gen"}
