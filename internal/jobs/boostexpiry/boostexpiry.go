package boostexpiry

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type boostExpirer interface {
	ExpireBoosts(ctx context.Context, now time.Time) (int64, error)
}

type eventPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type Job struct {
	boosts         boostExpirer
	events         eventPruner
	eventRetention time.Duration
	now            func() time.Time
	logger         *zap.Logger
}

func New(boosts boostExpirer, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Job{
		boosts:         boosts,
		eventRetention: 90 * 24 * time.Hour,
		now:            time.Now,
		logger:         logger,
	}
}

// AttachEventRetention makes each run also drop webhook audit rows older than
// retention.
func (j *Job) AttachEventRetention(pruner eventPruner, retention time.Duration) {
	j.events = pruner
	if retention > 0 {
		j.eventRetention = retention
	}
}

func (j *Job) Run(ctx context.Context) error {
	now := j.now().UTC()

	if j.boosts != nil {
		rows, err := j.boosts.ExpireBoosts(ctx, now)
		if err != nil {
			return fmt.Errorf("expire listing boosts: %w", err)
		}
		if rows > 0 {
			j.logger.Info("boost expiry completed", zap.Int64("expired", rows))
		}
	}

	if j.events != nil && j.eventRetention > 0 {
		rows, err := j.events.DeleteOlderThan(ctx, now.Add(-j.eventRetention))
		if err != nil {
			return fmt.Errorf("prune webhook events: %w", err)
		}
		if rows > 0 {
			j.logger.Info("webhook event pruning completed", zap.Int64("deleted", rows))
		}
	}

	return nil
}
