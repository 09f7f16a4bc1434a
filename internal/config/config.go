package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// WorkerConfig tunes the worker binary: pool size, retry budget, rate limits
// and the outcome sweep cadence.
type WorkerConfig struct {
	Workers        int           `env:"WORKER_COUNT,default=8"`
	PollInterval   time.Duration `env:"WORKER_POLL_INTERVAL,default=1s"`
	MaxIdleDelay   time.Duration `env:"WORKER_MAX_IDLE_DELAY,default=30s"`
	StopTimeout    time.Duration `env:"WORKER_STOP_TIMEOUT,default=10s"`
	MaxRetries     int           `env:"JOB_MAX_RETRIES,default=3"`
	PerActorLimit  int           `env:"RATE_PER_ACTOR_LIMIT,default=30"`
	PoolCapacity   int           `env:"RATE_POOL_CAPACITY,default=10"`
	PoolRefillRate float64       `env:"RATE_POOL_REFILL_PER_SEC,default=2"`
	MonitorPoll    time.Duration `env:"BULK_MONITOR_POLL,default=2s"`
	SweepSpec      string        `env:"OUTCOME_SWEEP_CRON,default=@hourly"`
	SuccessRate    float64       `env:"OUTCOME_SUCCESS_ENGAGEMENT,default=0.03"`
}

// APIConfig tunes the HTTP binary.
type APIConfig struct {
	Addr string `env:"API_ADDR,default=:8080"`
}

// to help with testing
var envProcess = envconfig.Process

func LoadWorkerConfig(ctx context.Context) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := validateWorkerConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func validateWorkerConfig(cfg *WorkerConfig) error {
	var errs []string

	if cfg.Workers < 1 {
		errs = append(errs, "WORKER_COUNT must be at least 1")
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, "WORKER_POLL_INTERVAL must be positive")
	}
	if cfg.MaxIdleDelay < cfg.PollInterval {
		errs = append(errs, "WORKER_MAX_IDLE_DELAY must be at least WORKER_POLL_INTERVAL")
	}
	if cfg.StopTimeout <= 0 {
		errs = append(errs, "WORKER_STOP_TIMEOUT must be positive")
	}
	if cfg.MaxRetries < 0 || cfg.MaxRetries > 20 {
		errs = append(errs, "JOB_MAX_RETRIES must be between 0 and 20")
	}
	if cfg.PerActorLimit < 1 {
		errs = append(errs, "RATE_PER_ACTOR_LIMIT must be at least 1")
	}
	if cfg.PoolCapacity < 1 {
		errs = append(errs, "RATE_POOL_CAPACITY must be at least 1")
	}
	if cfg.PoolRefillRate <= 0 {
		errs = append(errs, "RATE_POOL_REFILL_PER_SEC must be positive")
	}
	if cfg.MonitorPoll <= 0 {
		errs = append(errs, "BULK_MONITOR_POLL must be positive")
	}
	if cfg.SuccessRate <= 0 || cfg.SuccessRate >= 1 {
		errs = append(errs, "OUTCOME_SUCCESS_ENGAGEMENT must be in (0, 1)")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func LoadAPIConfig(ctx context.Context) (*APIConfig, error) {
	var cfg APIConfig
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("config validation failed: API_ADDR is required")
	}
	return &cfg, nil
}
