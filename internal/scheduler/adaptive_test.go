package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/models"
)

var wedSlot = WeightKey{
	Channel: config.ChannelYouTube,
	Kind:    config.KindLongForm,
	Weekday: time.Wednesday,
	Hour:    16,
}

func TestAdaptiveTable_LookupMissIsPrior(t *testing.T) {
	table := NewAdaptiveTable()

	w, samples := table.Lookup(wedSlot)
	assert.Equal(t, 0.5, w)
	assert.Equal(t, 0, samples)

	// Reads must not create keys: a second lookup still sees zero samples
	// and an update afterwards starts from the uninformative prior.
	w, samples = table.Lookup(wedSlot)
	assert.Equal(t, 0.5, w)
	assert.Equal(t, 0, samples)
}

func TestAdaptiveTable_PosteriorBlend(t *testing.T) {
	table := NewAdaptiveTable()

	// Beta(1,1) prior, three successes in one batch:
	// alpha=4, beta=1, smoothed = 0.8*0.5 + 0.2*(4/5) = 0.56.
	got := table.Update(wedSlot, 3, 0)
	assert.InDelta(t, 0.56, got, 1e-9)

	w, samples := table.Lookup(wedSlot)
	assert.InDelta(t, 0.56, w, 1e-9)
	assert.Equal(t, 3, samples)
}

func TestAdaptiveTable_FailuresPullWeightDown(t *testing.T) {
	table := NewAdaptiveTable()

	table.Update(wedSlot, 0, 4)
	w, samples := table.Lookup(wedSlot)
	assert.Less(t, w, 0.5)
	assert.Equal(t, 4, samples)

	// More failures keep dragging it down, but smoothing bounds each step.
	prev := w
	table.Update(wedSlot, 0, 4)
	w, _ = table.Lookup(wedSlot)
	assert.Less(t, w, prev)
	assert.Greater(t, w, 0.0)
}

func TestAdaptiveTable_LoadRoundTrip(t *testing.T) {
	table := NewAdaptiveTable()
	table.Update(wedSlot, 3, 0)
	row := table.Row(wedSlot)

	restored := NewAdaptiveTable()
	restored.Load([]models.AdaptiveWeight{row})

	w, samples := restored.Lookup(wedSlot)
	assert.InDelta(t, 0.56, w, 1e-9)
	assert.Equal(t, 3, samples)
}
