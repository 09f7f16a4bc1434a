package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pubplan/pubplan/common"
	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/generate"
	"github.com/pubplan/pubplan/internal/models"
	"github.com/pubplan/pubplan/internal/queue"
	"github.com/pubplan/pubplan/internal/ratelimit"
	"github.com/pubplan/pubplan/internal/storage/postgres"
)

var _ JobStore = (*postgres.JobRepository)(nil)

type stubGate struct{ paused bool }

func (g *stubGate) Paused(uint) bool { return g.paused }

type stubSink struct {
	mu  sync.Mutex
	ids []uint
}

func (s *stubSink) JobFinished(_ context.Context, bulkJobID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, bulkJobID)
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

type fixture struct {
	worker  *Worker
	jobs    *postgres.JobRepository
	queue   *queue.PriorityQueue
	gen     *generate.Fake
	limiter *ratelimit.Limiter
	gate    *stubGate
	sink    *stubSink
	bulkID  uint
}

func setup(t *testing.T) *fixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.BulkJob{}, &models.UnitJob{}, &models.JobEvent{}))

	bulk := models.BulkJob{
		SourceRef:      "sheet://test",
		ActorID:        "actor-1",
		Priority:       int(config.PriorityNormal),
		Status:         string(config.BulkStatusRunning),
		IdempotencyKey: "bulk-key",
	}
	require.NoError(t, db.Create(&bulk).Error)

	f := &fixture{
		jobs:    postgres.NewJobRepository(db),
		queue:   queue.New(),
		gen:     generate.NewFake(0, 0.25),
		limiter: ratelimit.New(30, 10, 2),
		gate:    &stubGate{},
		sink:    &stubSink{},
		bulkID:  bulk.ID,
	}
	f.worker = NewWorker(1, f.jobs, f.queue, f.limiter, f.gen, f.gate, f.sink,
		time.Millisecond, time.Second, zerolog.Nop())
	return f
}

// seedJob creates a queued unit job and returns its queue entry.
func (f *fixture) seedJob(t *testing.T, maxRetries int) queue.Entry {
	t.Helper()
	job := models.UnitJob{
		BulkJobID:      f.bulkID,
		ActorID:        "actor-1",
		Provider:       "text_gen",
		Priority:       int(config.PriorityNormal),
		Status:         string(config.JobStatusQueued),
		IdempotencyKey: "item-key",
		MaxRetries:     maxRetries,
	}
	require.NoError(t, f.jobs.CreateUnitJob(context.Background(), &job))
	return queue.Entry{
		JobID:     job.ID,
		BulkJobID: f.bulkID,
		ActorID:   job.ActorID,
		Provider:  job.Provider,
		Priority:  config.Priority(job.Priority),
		CreatedAt: job.CreatedAt,
	}
}

func (f *fixture) jobStatus(t *testing.T, id uint) *models.UnitJob {
	t.Helper()
	job, err := f.jobs.GetUnitJob(context.Background(), id)
	require.NoError(t, err)
	return job
}

func TestProcess_Success(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)

	f.worker.process(context.Background(), entry)

	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusCompleted), job.Status)
	assert.Equal(t, "artifact://text_gen/1", job.OutputRef)
	assert.Equal(t, 0.25, job.Cost)
	assert.Equal(t, 1, f.sink.count())
}

func TestProcess_TransientRetriesUntilBudgetExhausted(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 2)
	f.gen.FailNext(entry.JobID,
		common.Transientf("provider 503"),
		common.Transientf("provider 503"),
		common.Transientf("provider 503"),
	)

	ctx := context.Background()

	// Two failed attempts burn the budget; each puts the job back in line.
	for attempt := 1; attempt <= 2; attempt++ {
		f.worker.process(ctx, entry)
		job := f.jobStatus(t, entry.JobID)
		assert.Equal(t, string(config.JobStatusQueued), job.Status, "attempt %d", attempt)
		assert.Equal(t, attempt, job.RetryCount)
		requeued, ok := f.queue.DequeueNext()
		require.True(t, ok)
		assert.Equal(t, entry.JobID, requeued.JobID)
	}

	// The third failure has no budget left and goes terminal.
	f.worker.process(ctx, entry)
	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusFailed), job.Status)
	assert.Equal(t, 2, job.RetryCount)
	assert.Contains(t, job.Error, "provider 503")
	assert.Equal(t, 1, f.sink.count())
	assert.Zero(t, f.queue.Len())
}

func TestProcess_FatalFailsImmediately(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)
	f.gen.FailNext(entry.JobID, common.Fatalf("payload references deleted asset"))

	f.worker.process(context.Background(), entry)

	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusFailed), job.Status)
	assert.Zero(t, job.RetryCount, "fatal failures never burn retries")
	assert.Equal(t, 1, f.sink.count())
}

func TestProcess_RateLimitedParksAndRequeues(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)

	// A limiter that admits a single request per actor, already consumed.
	f.worker.limiter = ratelimit.New(1, 10, 2)
	require.True(t, f.worker.limiter.CanProceed("actor-1", "text_gen"))

	var slept time.Duration
	origSleep := sleep
	sleep = func(_ context.Context, d time.Duration) { slept = d }
	defer func() { sleep = origSleep }()

	f.worker.process(context.Background(), entry)

	assert.Greater(t, slept, time.Duration(0))
	assert.LessOrEqual(t, slept, 60*time.Second)

	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusQueued), job.Status)
	assert.Zero(t, job.RetryCount, "a rate limit denial is not a failure")
	assert.Equal(t, 1, f.queue.Len())
	assert.Empty(t, f.gen.Calls(), "the provider was never called")
}

func TestProcess_SkipsCancelledJob(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)

	ok, err := f.jobs.TransitionStatus(context.Background(), entry.JobID, config.JobStatusCancelled)
	require.NoError(t, err)
	require.True(t, ok)

	f.worker.process(context.Background(), entry)

	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusCancelled), job.Status)
	assert.Empty(t, f.gen.Calls())
	assert.Zero(t, f.sink.count())
}

func TestProcess_PausedBatchRequeues(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)
	f.gate.paused = true

	f.worker.process(context.Background(), entry)

	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusQueued), job.Status)
	assert.Equal(t, 1, f.queue.Len())
	assert.Empty(t, f.gen.Calls())
}

// flakyStore delegates to a real store but fails a set number of calls per
// method first.
type flakyStore struct {
	JobStore
	getFails   int
	transFails int
	retryFails int
}

func (s *flakyStore) GetUnitJob(ctx context.Context, id uint) (*models.UnitJob, error) {
	if s.getFails > 0 {
		s.getFails--
		return nil, errors.New("get unit job: connection reset")
	}
	return s.JobStore.GetUnitJob(ctx, id)
}

func (s *flakyStore) TransitionStatus(ctx context.Context, id uint, target config.JobStatus) (bool, error) {
	if s.transFails > 0 {
		s.transFails--
		return false, errors.New("transition status: connection reset")
	}
	return s.JobStore.TransitionStatus(ctx, id, target)
}

func (s *flakyStore) RegisterRetry(ctx context.Context, id uint, errMsg string) (bool, error) {
	if s.retryFails > 0 {
		s.retryFails--
		return false, errors.New("register retry: connection reset")
	}
	return s.JobStore.RegisterRetry(ctx, id, errMsg)
}

func TestProcess_FetchErrorRequeuesEntry(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)
	f.worker.store = &flakyStore{JobStore: f.jobs, getFails: 1}

	ctx := context.Background()
	f.worker.process(ctx, entry)

	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusQueued), job.Status)
	assert.Equal(t, 1, f.queue.Len(), "the entry went back in line")
	assert.Empty(t, f.gen.Calls())

	requeued, ok := f.queue.DequeueNext()
	require.True(t, ok)
	f.worker.process(ctx, requeued)
	assert.Equal(t, string(config.JobStatusCompleted), f.jobStatus(t, entry.JobID).Status)
}

func TestProcess_DispatchErrorRequeuesEntry(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)
	f.worker.store = &flakyStore{JobStore: f.jobs, transFails: 1}

	ctx := context.Background()
	f.worker.process(ctx, entry)

	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusQueued), job.Status)
	assert.Equal(t, 1, f.queue.Len())
	assert.Empty(t, f.gen.Calls())

	requeued, ok := f.queue.DequeueNext()
	require.True(t, ok)
	f.worker.process(ctx, requeued)
	assert.Equal(t, string(config.JobStatusCompleted), f.jobStatus(t, entry.JobID).Status)
}

func TestProcess_RetryBookkeepingErrorKeepsBudget(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)
	f.gen.FailNext(entry.JobID, common.Transientf("provider 503"))
	f.worker.store = &flakyStore{JobStore: f.jobs, retryFails: 1}

	ctx := context.Background()
	f.worker.process(ctx, entry)

	// The store hiccup neither killed the job nor dropped the entry.
	job := f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusInProgress), job.Status)
	assert.Zero(t, job.RetryCount)
	assert.Equal(t, 1, f.queue.Len())
	assert.Zero(t, f.sink.count(), "a store hiccup is not a terminal outcome")

	// The next pass settles the interrupted attempt into a normal retry.
	requeued, ok := f.queue.DequeueNext()
	require.True(t, ok)
	f.worker.process(ctx, requeued)

	job = f.jobStatus(t, entry.JobID)
	assert.Equal(t, string(config.JobStatusQueued), job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, 1, f.queue.Len())
}

func TestStartStop_DrainsQueue(t *testing.T) {
	f := setup(t)
	entry := f.seedJob(t, 3)
	f.queue.Enqueue(entry)

	f.worker.Start(context.Background())
	defer f.worker.Stop()

	require.Eventually(t, func() bool {
		return f.jobStatus(t, entry.JobID).Status == string(config.JobStatusCompleted)
	}, 2*time.Second, 5*time.Millisecond)
}
