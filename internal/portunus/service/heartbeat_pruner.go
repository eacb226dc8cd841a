package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/gatekeeper/internal/portunus/store"
)

const defaultPruneInterval = 6 * time.Hour

// PrunerConfig holds the parameters for NewHeartbeatPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of controller heartbeat history to
	// keep. 0 keeps everything and the pruner never starts.
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int
}

// HeartbeatPruner trims controller_heartbeats in the background. Audit
// records are never pruned.
type HeartbeatPruner struct {
	store     store.HeartbeatStore
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHeartbeatPruner(s store.HeartbeatStore, cfg PrunerConfig, opts ...Option) *HeartbeatPruner {
	o := buildOptions(opts)
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = defaultPruneInterval
	}
	return &HeartbeatPruner{
		store:     s,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		now:       o.now,
		logger:    o.logger,
		done:      make(chan struct{}),
	}
}

// Start prunes once, then again on every interval tick, until ctx is
// cancelled or Stop is called. With retention 0 it returns immediately.
func (p *HeartbeatPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("heartbeat pruner disabled")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	go p.loop(ctx)

	p.logger.Info("heartbeat pruner started",
		zap.Duration("retention", p.retention),
		zap.Duration("interval", p.interval),
	)
}

// Stop cancels the loop and waits for it to exit. Safe to call twice.
func (p *HeartbeatPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

// PruneNow removes heartbeats older than the retention window and returns
// how many were deleted.
func (p *HeartbeatPruner) PruneNow(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)
	deleted, err := p.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("pruned controller heartbeats",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}

func (p *HeartbeatPruner) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.PruneNow(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("heartbeat prune failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
