package scheduler

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pubplan/pubplan/internal/config"
)

// Penalty weights for the greedy slot search. Collisions with other
// assignments dominate, spacing shortfalls scale with how short they fall,
// and the timing score pulls the other way.
const (
	collisionNearPenalty = 10.0
	collisionFarPenalty  = 5.0
	spacingPenaltyScale  = 8.0
	concurrencyPenalty   = 20.0
	concurrencyWindow    = 15 * time.Minute
)

var tierWeight = map[config.Priority]float64{
	config.PriorityUrgent: 3,
	config.PriorityNormal: 2,
	config.PriorityLow:    1,
}

type scoredCandidate struct {
	post     CandidatePost
	global   float64
	dayScore map[time.Time][24]float64 // keyed by midnight of the day
}

// Assign greedily places every candidate into the scheduling window.
// Higher-priority, better-timed posts pick first; each then takes the slot
// minimizing collision+spacing+concurrency penalties net of timing score.
// A candidate that cannot satisfy a constraint is still scheduled, with the
// breach recorded in its Violations - the batch degrades, it never shrinks.
// The result is deterministic for identical input.
func (o *Optimizer) Assign(req AssignRequest) (*Plan, error) {
	if !req.WindowEnd.After(req.WindowStart) {
		return nil, fmt.Errorf("assign: scheduling window end %v is not after start %v", req.WindowEnd, req.WindowStart)
	}
	if len(req.Posts) == 0 {
		return nil, fmt.Errorf("assign: no candidate posts")
	}

	slots := windowSlots(req.WindowStart, req.WindowEnd)
	if len(slots) == 0 {
		return nil, fmt.Errorf("assign: scheduling window shorter than one hour")
	}

	candidates := o.scoreCandidates(req, slots)

	// Priority tier first, timing quality second, artifact ID as the
	// deterministic tiebreak.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].global != candidates[j].global {
			return candidates[i].global > candidates[j].global
		}
		return candidates[i].post.ArtifactID < candidates[j].post.ArtifactID
	})

	var committed []Assignment
	for _, cand := range candidates {
		committed = append(committed, o.placeCandidate(cand, committed, req, slots))
	}

	return &Plan{
		PlanID:      uuid.NewString(),
		BulkJobID:   req.BulkJobID,
		CreatedAt:   o.now().UTC(),
		Assignments: committed,
	}, nil
}

// scoreCandidates computes per-day hourly scores and the global pick order
// score for every candidate.
func (o *Optimizer) scoreCandidates(req AssignRequest, slots []time.Time) []scoredCandidate {
	out := make([]scoredCandidate, 0, len(req.Posts))
	for _, post := range req.Posts {
		constraint := req.Constraints[post.Channel]
		var lastPost *time.Time
		if t, ok := req.RecentPosts[post.Channel]; ok {
			lastPost = &t
		}

		cand := scoredCandidate{post: post, dayScore: make(map[time.Time][24]float64)}
		maxScore := 0.0
		for _, slot := range slots {
			day := midnight(slot)
			scores, ok := cand.dayScore[day]
			if !ok {
				scores = o.ScoreDay(ScoreInput{
					Channel:  post.Channel,
					Kind:     post.ContentKind,
					Audience: req.Audiences[post.Channel],
					Day:      day,
					LastPost: lastPost,
					MinGap:   time.Duration(constraint.MinGapHours) * time.Hour,
				})
				cand.dayScore[day] = scores
			}
			if s := scores[slot.Hour()]; s > maxScore {
				maxScore = s
			}
		}

		tier := tierWeight[post.Priority]
		if tier == 0 {
			tier = tierWeight[config.PriorityNormal]
		}
		cand.global = tier * (1 + maxScore)
		out = append(out, cand)
	}
	return out
}

// placeCandidate scans every slot in the window and commits the one with the
// lowest penalty, recording any constraint breaches at that slot.
func (o *Optimizer) placeCandidate(cand scoredCandidate, committed []Assignment, req AssignRequest, slots []time.Time) Assignment {
	constraint := req.Constraints[cand.post.Channel]
	minGap := time.Duration(constraint.MinGapHours) * time.Hour

	var lastPost *time.Time
	if t, ok := req.RecentPosts[cand.post.Channel]; ok {
		lastPost = &t
	}

	bestIdx := 0
	bestPenalty := 0.0
	bestScore := 0.0
	for i, slot := range slots {
		score := cand.dayScore[midnight(slot)][slot.Hour()]
		penalty := collisionPenalty(slot, committed) +
			spacingPenalty(slot, cand.post.Channel, minGap, committed, lastPost) +
			o.concurrencyPenalty(slot, committed, req.MaxConcurrent) -
			score

		if i == 0 || penalty < bestPenalty {
			bestIdx, bestPenalty, bestScore = i, penalty, score
		}
	}

	slot := slots[bestIdx]
	a := Assignment{
		ArtifactID:  cand.post.ArtifactID,
		Channel:     cand.post.Channel,
		ContentKind: cand.post.ContentKind,
		ScheduledAt: slot,
		Score:       bestScore,
		Penalty:     bestPenalty,
	}

	if minGap > 0 && channelGap(slot, cand.post.Channel, committed, lastPost) < minGap {
		a.Violations = append(a.Violations, ViolationMinGap)
	}
	if req.MaxConcurrent > 0 && concurrentCount(slot, committed) >= req.MaxConcurrent {
		a.Violations = append(a.Violations, ViolationMaxConcurrent)
	}
	if guardrailForbids(cand.post.Channel, cand.post.ContentKind, slot.Hour()) {
		a.Violations = append(a.Violations, ViolationProhibited)
	}

	if len(a.Violations) > 0 {
		o.log.Warn().
			Str("artifact", a.ArtifactID).
			Str("channel", string(a.Channel)).
			Time("slot", a.ScheduledAt).
			Strs("violations", a.Violations).
			Msg("schedule.best_effort_assignment")
	}
	return a
}

// collisionPenalty discourages stacking posts near each other across every
// channel: heavy inside one hour, lighter inside two.
func collisionPenalty(slot time.Time, committed []Assignment) float64 {
	p := 0.0
	for _, a := range committed {
		d := absDuration(slot.Sub(a.ScheduledAt))
		switch {
		case d <= time.Hour:
			p += collisionNearPenalty
		case d <= 2*time.Hour:
			p += collisionFarPenalty
		}
	}
	return p
}

// channelGap returns the distance from slot to the nearest same-channel
// assignment or the channel's most recent historical post.
func channelGap(slot time.Time, channel config.Channel, committed []Assignment, lastPost *time.Time) time.Duration {
	gap := time.Duration(1<<62 - 1)
	for _, a := range committed {
		if a.Channel != channel {
			continue
		}
		if d := absDuration(slot.Sub(a.ScheduledAt)); d < gap {
			gap = d
		}
	}
	if lastPost != nil {
		if d := absDuration(slot.Sub(*lastPost)); d < gap {
			gap = d
		}
	}
	return gap
}

// spacingPenalty grows with how far a slot falls short of the channel's
// minimum gap.
func spacingPenalty(slot time.Time, channel config.Channel, minGap time.Duration, committed []Assignment, lastPost *time.Time) float64 {
	if minGap <= 0 {
		return 0
	}
	gap := channelGap(slot, channel, committed, lastPost)
	if gap >= minGap {
		return 0
	}
	shortfall := float64(minGap-gap) / float64(minGap)
	return spacingPenaltyScale * shortfall
}

func concurrentCount(slot time.Time, committed []Assignment) int {
	n := 0
	for _, a := range committed {
		if absDuration(slot.Sub(a.ScheduledAt)) <= concurrencyWindow {
			n++
		}
	}
	return n
}

// concurrencyPenalty fires once a slot would exceed the cap of posts inside
// a 15-minute window. A cap of zero means unlimited.
func (o *Optimizer) concurrencyPenalty(slot time.Time, committed []Assignment, maxConcurrent int) float64 {
	if maxConcurrent <= 0 {
		return 0
	}
	if concurrentCount(slot, committed) >= maxConcurrent {
		return concurrencyPenalty
	}
	return 0
}

// windowSlots enumerates the hourly slots inside [start, end).
func windowSlots(start, end time.Time) []time.Time {
	slot := start.Truncate(time.Hour)
	if slot.Before(start) {
		slot = slot.Add(time.Hour)
	}
	var slots []time.Time
	for slot.Before(end) {
		slots = append(slots, slot)
		slot = slot.Add(time.Hour)
	}
	return slots
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
