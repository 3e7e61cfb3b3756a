package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionPurger removes ended sessions created before the cutoff.
type SessionPurger interface {
	PurgeInactiveBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor enforces the retention policy: ended sessions older than the
// configured number of days are hard-deleted, cascading their questions,
// polls and votes.
type Janitor struct {
	store         SessionPurger
	retentionDays int
	sweepInterval time.Duration
	logger        *zap.Logger
}

// NewJanitor creates a session retention janitor.
func NewJanitor(store SessionPurger, retentionDays int, sweepInterval time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		store:         store,
		retentionDays: retentionDays,
		sweepInterval: sweepInterval,
		logger:        logger,
	}
}

// Cutoff returns the creation-time boundary for the current sweep.
func (j *Janitor) Cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -j.retentionDays)
}

// Sweep runs one purge pass.
func (j *Janitor) Sweep(ctx context.Context) {
	n, err := j.store.PurgeInactiveBefore(ctx, j.Cutoff(time.Now()))
	if err != nil {
		j.logger.Error("retention sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("purged expired sessions", zap.Int64("count", n))
	}
}

// Run sweeps immediately and then on every tick until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	j.Sweep(ctx)
	ticker := time.NewTicker(j.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("janitor stopping")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}
