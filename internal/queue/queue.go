package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/pubplan/pubplan/internal/config"
)

// Entry is the in-memory handle the queue carries for a persisted unit job.
// The authoritative record lives in the store; the entry only holds what the
// worker needs to fetch and order it.
type Entry struct {
	JobID     uint
	BulkJobID uint
	ActorID   string
	Provider  string
	Priority  config.Priority
	CreatedAt time.Time
}

// PriorityQueue is a three-tier FIFO queue. Tiers are drained in strict
// order (urgent, normal, low); within a tier entries are ordered by job
// creation time. Sustained urgent load starving low-priority jobs is the
// intended behavior, not a defect.
type PriorityQueue struct {
	mu    sync.Mutex
	tiers map[config.Priority][]Entry
}

var tierOrder = []config.Priority{config.PriorityUrgent, config.PriorityNormal, config.PriorityLow}

func New() *PriorityQueue {
	return &PriorityQueue{
		tiers: map[config.Priority][]Entry{
			config.PriorityUrgent: nil,
			config.PriorityNormal: nil,
			config.PriorityLow:    nil,
		},
	}
}

// Enqueue adds an entry to its tier, keeping the tier sorted by creation
// time so re-enqueued retries keep their original fairness position.
// Unknown priorities fall into the normal tier.
func (q *PriorityQueue) Enqueue(e Entry) {
	if !e.Priority.Valid() {
		e.Priority = config.PriorityNormal
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	tier := q.tiers[e.Priority]
	i := sort.Search(len(tier), func(i int) bool {
		return tier[i].CreatedAt.After(e.CreatedAt)
	})
	tier = append(tier, Entry{})
	copy(tier[i+1:], tier[i:])
	tier[i] = e
	q.tiers[e.Priority] = tier
}

// DequeueNext pops the oldest entry from the highest non-empty tier.
// The second return value is false when every tier is empty.
func (q *PriorityQueue) DequeueNext() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, p := range tierOrder {
		tier := q.tiers[p]
		if len(tier) == 0 {
			continue
		}
		e := tier[0]
		q.tiers[p] = tier[1:]
		return e, true
	}
	return Entry{}, false
}

// Len returns the total number of queued entries across all tiers.
func (q *PriorityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, p := range tierOrder {
		n += len(q.tiers[p])
	}
	return n
}

// Drop removes every queued entry belonging to the given bulk job and
// returns how many were removed. Used on bulk cancellation.
func (q *PriorityQueue) Drop(bulkJobID uint) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	dropped := 0
	for _, p := range tierOrder {
		tier := q.tiers[p]
		kept := tier[:0]
		for _, e := range tier {
			if e.BulkJobID == bulkJobID {
				dropped++
				continue
			}
			kept = append(kept, e)
		}
		q.tiers[p] = kept
	}
	return dropped
}
