package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubplan/pubplan/internal/config"
)

func ytPost(id string, p config.Priority) CandidatePost {
	return CandidatePost{ArtifactID: id, Channel: config.ChannelYouTube, ContentKind: config.KindLongForm, Priority: p}
}

func TestAssign_RejectsBadWindow(t *testing.T) {
	o := newTestOptimizer()
	start := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	_, err := o.Assign(AssignRequest{
		Posts:       []CandidatePost{ytPost("a", config.PriorityNormal)},
		WindowStart: start,
		WindowEnd:   start,
	})
	assert.Error(t, err)

	_, err = o.Assign(AssignRequest{
		WindowStart: start,
		WindowEnd:   start.Add(24 * time.Hour),
	})
	assert.Error(t, err, "empty batch is an error, not an empty plan")
}

func TestAssign_ThirdPostCannotSatisfySpacing(t *testing.T) {
	o := newTestOptimizer()
	start := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC) // Wednesday

	plan, err := o.Assign(AssignRequest{
		Posts: []CandidatePost{
			ytPost("a", config.PriorityNormal),
			ytPost("b", config.PriorityNormal),
			ytPost("c", config.PriorityNormal),
		},
		Constraints: map[config.Channel]Constraint{
			config.ChannelYouTube: {Channel: config.ChannelYouTube, MinGapHours: 12},
		},
		WindowStart: start,
		WindowEnd:   start.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 3, "no post may be dropped")

	violated := 0
	for _, a := range plan.Assignments {
		for _, v := range a.Violations {
			if v == ViolationMinGap {
				violated++
			}
		}
	}
	assert.Equal(t, 1, violated, "two posts fit 12h apart in 24h; the third cannot")

	// The spacing property: every same-channel pair is either far enough
	// apart or one of the two carries a recorded violation.
	for i, a := range plan.Assignments {
		for j, b := range plan.Assignments {
			if i >= j || a.Channel != b.Channel {
				continue
			}
			gap := absDuration(a.ScheduledAt.Sub(b.ScheduledAt))
			if gap < 12*time.Hour {
				assert.True(t, len(a.Violations) > 0 || len(b.Violations) > 0,
					"pair %s/%s at gap %v has no recorded violation", a.ArtifactID, b.ArtifactID, gap)
			}
		}
	}
}

func TestAssign_TwoPostsRespectGap(t *testing.T) {
	o := newTestOptimizer()
	start := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	plan, err := o.Assign(AssignRequest{
		Posts: []CandidatePost{
			ytPost("a", config.PriorityNormal),
			ytPost("b", config.PriorityNormal),
		},
		Constraints: map[config.Channel]Constraint{
			config.ChannelYouTube: {Channel: config.ChannelYouTube, MinGapHours: 12},
		},
		WindowStart: start,
		WindowEnd:   start.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 2)

	gap := absDuration(plan.Assignments[0].ScheduledAt.Sub(plan.Assignments[1].ScheduledAt))
	assert.GreaterOrEqual(t, gap, 12*time.Hour)
	for _, a := range plan.Assignments {
		assert.Empty(t, a.Violations)
	}
}

func TestAssign_ConcurrencyCapViolationRecorded(t *testing.T) {
	o := newTestOptimizer()
	start := time.Date(2025, 3, 5, 20, 0, 0, 0, time.UTC)

	// One single slot, two posts, cap one: the second must still land,
	// flagged.
	plan, err := o.Assign(AssignRequest{
		Posts: []CandidatePost{
			{ArtifactID: "a", Channel: config.ChannelYouTube, ContentKind: config.KindLongForm, Priority: config.PriorityNormal},
			{ArtifactID: "b", Channel: config.ChannelTwitter, ContentKind: config.KindPost, Priority: config.PriorityNormal},
		},
		WindowStart:   start,
		WindowEnd:     start.Add(time.Hour),
		MaxConcurrent: 1,
	})
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 2)

	assert.Empty(t, plan.Assignments[0].Violations)
	assert.Contains(t, plan.Assignments[1].Violations, ViolationMaxConcurrent)
}

func TestAssign_UrgentPicksFirst(t *testing.T) {
	o := newTestOptimizer()
	start := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	plan, err := o.Assign(AssignRequest{
		Posts: []CandidatePost{
			ytPost("low", config.PriorityLow),
			ytPost("urgent", config.PriorityUrgent),
		},
		WindowStart: start,
		WindowEnd:   start.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 2)

	// The urgent post is placed first and therefore takes the peak slot.
	assert.Equal(t, "urgent", plan.Assignments[0].ArtifactID)
	assert.GreaterOrEqual(t, plan.Assignments[0].Score, plan.Assignments[1].Score)
}

func TestAssign_Deterministic(t *testing.T) {
	o := newTestOptimizer()
	start := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	req := AssignRequest{
		Posts: []CandidatePost{
			ytPost("a", config.PriorityNormal),
			ytPost("b", config.PriorityNormal),
			{ArtifactID: "c", Channel: config.ChannelTikTok, ContentKind: config.KindShortForm, Priority: config.PriorityUrgent},
		},
		Constraints: map[config.Channel]Constraint{
			config.ChannelYouTube: {Channel: config.ChannelYouTube, MinGapHours: 6},
		},
		WindowStart: start,
		WindowEnd:   start.Add(48 * time.Hour),
	}

	first, err := o.Assign(req)
	require.NoError(t, err)
	second, err := o.Assign(req)
	require.NoError(t, err)

	require.Len(t, second.Assignments, len(first.Assignments))
	for i := range first.Assignments {
		a, b := first.Assignments[i], second.Assignments[i]
		assert.Equal(t, a.ArtifactID, b.ArtifactID)
		assert.Equal(t, a.ScheduledAt, b.ScheduledAt)
		assert.Equal(t, a.Violations, b.Violations)
	}
}

func TestAssign_RecentPostPushesFirstSlotAway(t *testing.T) {
	o := newTestOptimizer()
	start := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)
	lastNight := start.Add(-4 * time.Hour) // 20:00 the previous evening

	plan, err := o.Assign(AssignRequest{
		Posts: []CandidatePost{ytPost("a", config.PriorityNormal)},
		Constraints: map[config.Channel]Constraint{
			config.ChannelYouTube: {Channel: config.ChannelYouTube, MinGapHours: 12},
		},
		RecentPosts: map[config.Channel]time.Time{config.ChannelYouTube: lastNight},
		WindowStart: start,
		WindowEnd:   start.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, plan.Assignments, 1)

	a := plan.Assignments[0]
	assert.GreaterOrEqual(t, a.ScheduledAt.Sub(lastNight), 12*time.Hour)
	assert.Empty(t, a.Violations)
}
