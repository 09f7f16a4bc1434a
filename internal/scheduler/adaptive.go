package scheduler

import (
	"sync"
	"time"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/models"
)

// WeightKey addresses one adaptive slot.
type WeightKey struct {
	Channel config.Channel
	Kind    config.ContentKind
	Weekday time.Weekday
	Hour    int
}

type slotWeight struct {
	Smoothed float64
	Alpha    float64
	Beta     float64
}

const (
	// smoothingRetention keeps 80% of the previous smoothed weight on every
	// update so one batch of outcomes cannot whipsaw the schedule.
	smoothingRetention = 0.8

	// minSamples is the number of observed outcomes a slot needs before its
	// posterior overrides the static evidence baseline.
	minSamples = 5
)

// AdaptiveTable is the in-memory view of the adaptive weights: a sparse map
// from slot to Beta posterior. It is written by the single outcome-sweep
// path and read by many concurrent scoring calls; readers tolerate slightly
// stale values. Lookups never create keys.
type AdaptiveTable struct {
	mu    sync.RWMutex
	slots map[WeightKey]slotWeight
}

func NewAdaptiveTable() *AdaptiveTable {
	return &AdaptiveTable{slots: make(map[WeightKey]slotWeight)}
}

// Load replaces the table contents from persisted rows, for startup warming.
func (t *AdaptiveTable) Load(rows []models.AdaptiveWeight) {
	slots := make(map[WeightKey]slotWeight, len(rows))
	for _, r := range rows {
		key := WeightKey{
			Channel: config.Channel(r.Channel),
			Kind:    config.ContentKind(r.ContentKind),
			Weekday: time.Weekday(r.Weekday),
			Hour:    r.Hour,
		}
		slots[key] = slotWeight{Smoothed: r.SmoothedWeight, Alpha: r.PosteriorAlpha, Beta: r.PosteriorBeta}
	}

	t.mu.Lock()
	t.slots = slots
	t.mu.Unlock()
}

// Lookup returns the slot's smoothed weight and its observed sample count.
// A never-updated slot reads as the uninformative prior: weight 0.5, zero
// samples.
func (t *AdaptiveTable) Lookup(key WeightKey) (weight float64, samples int) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.slots[key]
	if !ok {
		return 0.5, 0
	}
	return s.Smoothed, int(s.Alpha + s.Beta - 2)
}

// Update folds a batch of observed outcomes into the slot's posterior:
// alpha counts successes, beta failures, and the smoothed weight blends the
// posterior mean into the previous value. Returns the new smoothed weight.
func (t *AdaptiveTable) Update(key WeightKey, successes, failures int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.slots[key]
	if !ok {
		s = slotWeight{Smoothed: 0.5, Alpha: 1, Beta: 1}
	}

	s.Alpha += float64(successes)
	s.Beta += float64(failures)
	s.Smoothed = smoothingRetention*s.Smoothed + (1-smoothingRetention)*(s.Alpha/(s.Alpha+s.Beta))

	t.slots[key] = s
	return s.Smoothed
}

// Row materializes the slot as a persistable record.
func (t *AdaptiveTable) Row(key WeightKey) models.AdaptiveWeight {
	t.mu.RLock()
	s, ok := t.slots[key]
	t.mu.RUnlock()
	if !ok {
		s = slotWeight{Smoothed: 0.5, Alpha: 1, Beta: 1}
	}

	return models.AdaptiveWeight{
		Channel:        string(key.Channel),
		ContentKind:    string(key.Kind),
		Weekday:        int(key.Weekday),
		Hour:           key.Hour,
		SmoothedWeight: s.Smoothed,
		PosteriorAlpha: s.Alpha,
		PosteriorBeta:  s.Beta,
		UpdatedAt:      time.Now().UTC(),
	}
}
