package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/models"
)

func TestBulkJobRepository_IdempotencyKeyUnique(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewBulkJobRepository(db)
	ctx := context.Background()

	first := seedBulk(t, repo, "same-key")

	dup := &models.BulkJob{
		SourceRef:      "feed://other",
		ActorID:        "actor-2",
		Status:         string(config.BulkStatusPending),
		IdempotencyKey: "same-key",
	}
	assert.Error(t, repo.Create(ctx, dup))

	found, err := repo.GetByIdempotencyKey(ctx, "same-key")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)

	missing, err := repo.GetByIdempotencyKey(ctx, "no-such-key")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestBulkJobRepository_TransitionAndFinish(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewBulkJobRepository(db)
	ctx := context.Background()

	bulk := seedBulk(t, repo, "bulk-1")

	ok, err := repo.TransitionStatus(ctx, bulk.ID, []config.BulkStatus{config.BulkStatusPending}, config.BulkStatusRunning)
	require.NoError(t, err)
	assert.True(t, ok)

	// Pause only succeeds from running.
	ok, err = repo.TransitionStatus(ctx, bulk.ID, []config.BulkStatus{config.BulkStatusRunning}, config.BulkStatusPaused)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(ctx, bulk.ID, []config.BulkStatus{config.BulkStatusRunning}, config.BulkStatusPaused)
	require.NoError(t, err)
	assert.False(t, ok, "pausing a paused bulk is a no-op")

	ok, err = repo.Finish(ctx, bulk.ID, config.BulkStatusCompleted, "")
	require.NoError(t, err)
	assert.True(t, ok)

	// Finishing twice is a no-op, not an error.
	ok, err = repo.Finish(ctx, bulk.ID, config.BulkStatusFailed, "late failure")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, bulk.ID)
	require.NoError(t, err)
	assert.Equal(t, string(config.BulkStatusCompleted), got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Empty(t, got.Error)
}

func TestBulkJobRepository_FinishRejectsNonTerminal(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewBulkJobRepository(db)

	bulk := seedBulk(t, repo, "bulk-2")
	_, err := repo.Finish(context.Background(), bulk.ID, config.BulkStatusRunning, "")
	assert.Error(t, err)
}

func TestBulkJobRepository_Progress(t *testing.T) {
	db := SetupTestDB(t)
	repo := NewBulkJobRepository(db)
	ctx := context.Background()

	bulk := seedBulk(t, repo, "bulk-3")
	require.NoError(t, repo.SetTotalItems(ctx, bulk.ID, 9))
	require.NoError(t, repo.UpdateProgress(ctx, bulk.ID, 44.4))

	got, err := repo.Get(ctx, bulk.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.TotalItems)
	assert.InDelta(t, 44.4, got.ProgressPercent, 1e-9)
}
