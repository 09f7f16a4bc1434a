package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/generate"
	"github.com/pubplan/pubplan/internal/ingest"
	"github.com/pubplan/pubplan/internal/models"
	"github.com/pubplan/pubplan/internal/orchestrator"
	"github.com/pubplan/pubplan/internal/pool"
	"github.com/pubplan/pubplan/internal/queue"
	"github.com/pubplan/pubplan/internal/scheduler"
	"github.com/pubplan/pubplan/internal/storage/postgres"
	"github.com/pubplan/pubplan/middleware"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "pubplan-api").Logger()

	ctx := context.Background()
	apiCfg, err := config.LoadAPIConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("api config load failed")
	}
	workerCfg, err := config.LoadWorkerConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("worker config load failed")
	}

	db, err := postgres.ConnectDB(nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := postgres.MigrateModels(db,
		&models.BulkJob{}, &models.UnitJob{}, &models.JobEvent{},
		&models.SchedulePlan{}, &models.PlanAssignment{},
		&models.AdaptiveWeight{}, &models.OutcomeMetric{},
	); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	bulkRepo := postgres.NewBulkJobRepository(db)
	jobRepo := postgres.NewJobRepository(db)
	planRepo := postgres.NewScheduleRepository(db)

	q := queue.New()
	orch := orchestrator.New(bulkRepo, jobRepo, q, ingest.NewFake(),
		workerCfg.MonitorPoll, workerCfg.MaxRetries, log)
	if err := hydrateQueue(ctx, jobRepo, q); err != nil {
		log.Fatal().Err(err).Msg("queue hydration failed")
	}

	gen := generate.NewFake(2*time.Second, 0.05)
	workers := pool.New(workerCfg, jobRepo, q, orch, gen, log)
	workers.Start()
	defer workers.Stop()

	optimizer := scheduler.New(scheduler.NewAdaptiveTable(), log)
	schedSvc := scheduler.NewService(optimizer, planRepo, workerCfg.SuccessRate, log)
	if err := schedSvc.WarmWeights(ctx); err != nil {
		log.Fatal().Err(err).Msg("weight warmup failed")
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.ErrorHandler())
	registerRoutes(router, orchestrator.NewHandler(orch), scheduler.NewHandler(schedSvc))

	server := &http.Server{Addr: apiCfg.Addr, Handler: router}
	go func() {
		log.Info().Str("addr", apiCfg.Addr).Msg("api.listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), workerCfg.StopTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("api.stopped")
}

func registerRoutes(router *gin.Engine, bulk *orchestrator.Handler, sched *scheduler.Handler) {
	router.POST("/bulk-jobs", bulk.Create)
	router.GET("/bulk-jobs/:id", bulk.Get)
	router.POST("/bulk-jobs/:id/pause", bulk.Pause)
	router.POST("/bulk-jobs/:id/resume", bulk.Resume)
	router.POST("/bulk-jobs/:id/cancel", bulk.Cancel)
	router.GET("/bulk-jobs/:id/events", bulk.Events)

	router.POST("/schedules", sched.CreatePlan)
	router.GET("/schedules/:id", sched.GetPlan)
	router.POST("/outcomes", sched.ReportOutcome)
}

// hydrateQueue reloads persisted queued and retried jobs into the in-memory
// queue after a restart. Retried jobs go back through queued first so the
// state machine stays consistent.
func hydrateQueue(ctx context.Context, jobRepo *postgres.JobRepository, q *queue.PriorityQueue) error {
	retried, err := jobRepo.ListByStatus(ctx, config.JobStatusRetried)
	if err != nil {
		return err
	}
	for _, job := range retried {
		if _, err := jobRepo.TransitionStatus(ctx, job.ID, config.JobStatusQueued); err != nil {
			return err
		}
	}

	queued, err := jobRepo.ListByStatus(ctx, config.JobStatusQueued)
	if err != nil {
		return err
	}
	for _, job := range queued {
		q.Enqueue(queue.Entry{
			JobID:     job.ID,
			BulkJobID: job.BulkJobID,
			ActorID:   job.ActorID,
			Provider:  job.Provider,
			Priority:  config.Priority(job.Priority),
			CreatedAt: job.CreatedAt,
		})
	}
	return nil
}
