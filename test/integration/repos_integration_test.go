package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/models"
	"github.com/pubplan/pubplan/internal/storage/postgres"
)

func seedBulkRow(t *testing.T, db *gorm.DB, key string) *models.BulkJob {
	t.Helper()
	bulk := &models.BulkJob{
		SourceRef:      "sheet://integration",
		ActorID:        "actor-1",
		Priority:       int(config.PriorityNormal),
		Status:         string(config.BulkStatusRunning),
		IdempotencyKey: key,
	}
	require.NoError(t, db.Create(bulk).Error)
	return bulk
}

func TestBulkJobRepository_IdempotencyKeyUnique(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewBulkJobRepository(db)

	first := &models.BulkJob{
		SourceRef:      "sheet://a",
		ActorID:        "actor-1",
		Priority:       5,
		Status:         string(config.BulkStatusPending),
		IdempotencyKey: "same-key",
	}
	require.NoError(t, repo.Create(ctx, first))

	dup := &models.BulkJob{
		SourceRef:      "sheet://b",
		ActorID:        "actor-2",
		Priority:       5,
		Status:         string(config.BulkStatusPending),
		IdempotencyKey: "same-key",
	}
	err := repo.Create(ctx, dup)
	require.Error(t, err, "the unique index must reject the duplicate")

	found, err := repo.GetByIdempotencyKey(ctx, "same-key")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
}

func TestJobRepository_IdempotencyScopedToBulk(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)
	bulkA := seedBulkRow(t, db, "bulk-a")
	bulkB := seedBulkRow(t, db, "bulk-b")

	job := func(bulkID uint) *models.UnitJob {
		return &models.UnitJob{
			BulkJobID:      bulkID,
			ActorID:        "actor-1",
			Provider:       "text_gen",
			Priority:       5,
			Status:         string(config.JobStatusQueued),
			Payload:        datatypes.JSON([]byte(`{"artifact_id":"art-1"}`)),
			IdempotencyKey: "item-1",
		}
	}

	require.NoError(t, repo.CreateUnitJob(ctx, job(bulkA.ID)))
	require.Error(t, repo.CreateUnitJob(ctx, job(bulkA.ID)), "same key within one batch is rejected")
	require.NoError(t, repo.CreateUnitJob(ctx, job(bulkB.ID)), "same key in another batch is fine")
}

func TestJobRepository_GuardedTransitions(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)
	bulk := seedBulkRow(t, db, "bulk-transitions")

	job := &models.UnitJob{
		BulkJobID:      bulk.ID,
		ActorID:        "actor-1",
		Provider:       "text_gen",
		Priority:       5,
		Status:         string(config.JobStatusQueued),
		IdempotencyKey: "item-1",
		MaxRetries:     1,
	}
	require.NoError(t, repo.CreateUnitJob(ctx, job))

	// queued cannot jump straight to completed.
	ok, err := repo.TransitionStatus(ctx, job.ID, config.JobStatusCompleted)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, s := range []config.JobStatus{config.JobStatusDispatched, config.JobStatusInProgress} {
		ok, err := repo.TransitionStatus(ctx, job.ID, s)
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, repo.MarkCompleted(ctx, job.ID, "artifact://text_gen/1", 0.1))

	// Terminal rows never move again.
	ok, err = repo.TransitionStatus(ctx, job.ID, config.JobStatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJobRepository_RetryBudgetEnforcedAtomically(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)
	bulk := seedBulkRow(t, db, "bulk-retry")

	job := &models.UnitJob{
		BulkJobID:      bulk.ID,
		ActorID:        "actor-1",
		Provider:       "text_gen",
		Priority:       5,
		Status:         string(config.JobStatusQueued),
		IdempotencyKey: "item-1",
		MaxRetries:     1,
	}
	require.NoError(t, repo.CreateUnitJob(ctx, job))

	drive := func(statuses ...config.JobStatus) {
		for _, s := range statuses {
			ok, err := repo.TransitionStatus(ctx, job.ID, s)
			require.NoError(t, err)
			require.True(t, ok)
		}
	}

	drive(config.JobStatusDispatched, config.JobStatusInProgress)
	ok, err := repo.RegisterRetry(ctx, job.ID, "transient")
	require.NoError(t, err)
	require.True(t, ok)

	drive(config.JobStatusQueued, config.JobStatusDispatched, config.JobStatusInProgress)
	ok, err = repo.RegisterRetry(ctx, job.ID, "transient")
	require.NoError(t, err)
	assert.False(t, ok, "budget of one is spent")

	got, err := repo.GetUnitJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount)
	assert.NotNil(t, got.LastRetryAt)
}

func TestJobRepository_CancelBulkChildrenAndCounts(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)
	bulk := seedBulkRow(t, db, "bulk-cancel")

	for i, status := range []config.JobStatus{
		config.JobStatusQueued, config.JobStatusQueued, config.JobStatusCompleted,
	} {
		require.NoError(t, repo.CreateUnitJob(ctx, &models.UnitJob{
			BulkJobID:      bulk.ID,
			ActorID:        "actor-1",
			Provider:       "text_gen",
			Priority:       5,
			Status:         string(status),
			IdempotencyKey: string(rune('a' + i)),
		}))
	}

	n, err := repo.CancelBulkChildren(ctx, bulk.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	counts, err := repo.CountByStatus(ctx, bulk.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[config.JobStatusCancelled])
	assert.Equal(t, 1, counts[config.JobStatusCompleted])
}
