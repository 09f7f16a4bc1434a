package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubplan/pubplan/internal/config"
)

func entry(id uint, p config.Priority, created time.Time) Entry {
	return Entry{JobID: id, BulkJobID: 1, Priority: p, CreatedAt: created}
}

func TestPriorityQueue_StrictTierOrder(t *testing.T) {
	q := New()
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	q.Enqueue(entry(1, config.PriorityLow, base))
	q.Enqueue(entry(2, config.PriorityNormal, base.Add(time.Second)))
	q.Enqueue(entry(3, config.PriorityUrgent, base.Add(2*time.Second)))
	q.Enqueue(entry(4, config.PriorityUrgent, base.Add(3*time.Second)))
	q.Enqueue(entry(5, config.PriorityNormal, base.Add(4*time.Second)))

	var order []uint
	for {
		e, ok := q.DequeueNext()
		if !ok {
			break
		}
		order = append(order, e.JobID)
	}

	// Urgent first regardless of age, then normal, then low.
	assert.Equal(t, []uint{3, 4, 2, 5, 1}, order)
}

func TestPriorityQueue_FIFOWithinTierByCreation(t *testing.T) {
	q := New()
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	// Enqueued out of creation order; dequeue must follow creation time.
	q.Enqueue(entry(2, config.PriorityNormal, base.Add(time.Minute)))
	q.Enqueue(entry(1, config.PriorityNormal, base))
	q.Enqueue(entry(3, config.PriorityNormal, base.Add(2*time.Minute)))

	for _, want := range []uint{1, 2, 3} {
		e, ok := q.DequeueNext()
		require.True(t, ok)
		assert.Equal(t, want, e.JobID)
	}
}

func TestPriorityQueue_EmptyDequeue(t *testing.T) {
	q := New()
	_, ok := q.DequeueNext()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestPriorityQueue_UnknownPriorityFallsToNormal(t *testing.T) {
	q := New()
	q.Enqueue(Entry{JobID: 9, Priority: config.Priority(42), CreatedAt: time.Now()})

	e, ok := q.DequeueNext()
	require.True(t, ok)
	assert.Equal(t, config.PriorityNormal, e.Priority)
}

func TestPriorityQueue_DropBulk(t *testing.T) {
	q := New()
	now := time.Now()
	q.Enqueue(Entry{JobID: 1, BulkJobID: 7, Priority: config.PriorityNormal, CreatedAt: now})
	q.Enqueue(Entry{JobID: 2, BulkJobID: 8, Priority: config.PriorityNormal, CreatedAt: now.Add(time.Second)})
	q.Enqueue(Entry{JobID: 3, BulkJobID: 7, Priority: config.PriorityUrgent, CreatedAt: now})

	assert.Equal(t, 2, q.Drop(7))
	assert.Equal(t, 1, q.Len())

	e, ok := q.DequeueNext()
	require.True(t, ok)
	assert.Equal(t, uint(2), e.JobID)
}
