package workerapp

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ivankudzin/payhooks/internal/config"
	"github.com/ivankudzin/payhooks/internal/jobs/boostexpiry"
	pgrepo "github.com/ivankudzin/payhooks/internal/repo/postgres"
)

type sweepJob interface {
	Run(ctx context.Context) error
}

type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	sweepJob sweepJob
	interval time.Duration
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.ServiceKey)
	if err != nil {
		return nil, fmt.Errorf("init postgres for worker app: %w", err)
	}

	job := boostexpiry.New(pgrepo.NewBoostRepo(pool), logger)
	job.AttachEventRetention(pgrepo.NewWebhookEventRepo(pool), cfg.Worker.EventRetention)

	return &App{
		cfg:      cfg,
		logger:   logger,
		postgres: pool,
		sweepJob: job,
		interval: cfg.Worker.SweepInterval,
	}, nil
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
// A failed sweep is logged and retried on the next tick.
func (a *App) Run(ctx context.Context) error {
	if a.sweepJob == nil {
		return nil
	}

	interval := a.interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	a.logger.Info("worker app started", zap.Duration("sweep_interval", interval))
	a.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("worker app stopped")
			return nil
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *App) sweep(ctx context.Context) {
	if err := a.sweepJob.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Error("boost expiry sweep failed", zap.Error(err))
	}
}
