package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/pubplan/pubplan/internal/config"
	"github.com/pubplan/pubplan/internal/models"
	"github.com/pubplan/pubplan/internal/scheduler"
	"github.com/pubplan/pubplan/internal/storage/postgres"
)

// The worker binary is the scheduling maintenance daemon: it warms the
// adaptive weights and folds reported outcomes into them on a cron cadence.
// Job execution lives in the api binary, which owns the in-memory queue.
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "pubplan-worker").Logger()

	ctx := context.Background()
	cfg, err := config.LoadWorkerConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	db, err := postgres.ConnectDB(nil, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := postgres.MigrateModels(db,
		&models.SchedulePlan{}, &models.PlanAssignment{},
		&models.AdaptiveWeight{}, &models.OutcomeMetric{},
	); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	planRepo := postgres.NewScheduleRepository(db)
	optimizer := scheduler.New(scheduler.NewAdaptiveTable(), log)
	svc := scheduler.NewService(optimizer, planRepo, cfg.SuccessRate, log)

	if err := svc.WarmWeights(ctx); err != nil {
		log.Fatal().Err(err).Msg("weight warmup failed")
	}

	c := cron.New()
	if _, err := c.AddFunc(cfg.SweepSpec, func() {
		n, err := svc.SweepOutcomes(context.Background())
		if err != nil {
			log.Error().Err(err).Msg("outcome sweep failed")
			return
		}
		if n > 0 {
			log.Info().Int("metrics", n).Msg("outcome sweep done")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("spec", cfg.SweepSpec).Msg("invalid sweep cron spec")
	}
	c.Start()
	log.Info().Str("spec", cfg.SweepSpec).Msg("worker.sweeping")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	<-c.Stop().Done()
	log.Info().Msg("worker.stopped")
}
