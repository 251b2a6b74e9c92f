// Package maintenance runs the periodic storage cleanup: stale cooldown rows
// and served markers orphaned by wipes.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	logx "rollbot/pkg/logx"
)

// Store is the slice of the persistence layer maintenance touches.
type Store interface {
	PruneLastServed(ctx context.Context, cutoff time.Time) (int64, error)
	PruneOrphanServed(ctx context.Context) (int64, error)
}

type Config struct {
	// Schedule is a cron spec; empty means "0 4 * * *" (daily at 04:00).
	Schedule string
	// CooldownRetention is how long last-served rows are kept.
	// Zero means 7 days.
	CooldownRetention time.Duration
}

type Service struct {
	cfg   Config
	store Store
	log   logx.Logger
	cron  *cron.Cron
}

func New(cfg Config, store Store, log logx.Logger) *Service {
	if cfg.Schedule == "" {
		cfg.Schedule = "0 4 * * *"
	}
	if cfg.CooldownRetention <= 0 {
		cfg.CooldownRetention = 7 * 24 * time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, store: store, log: log}
}

func (s *Service) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, s.runOnce); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("maintenance scheduled", logx.String("schedule", s.cfg.Schedule))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

func (s *Service) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.CooldownRetention)
	cooldowns, err := s.store.PruneLastServed(ctx, cutoff)
	if err != nil {
		s.log.Warn("cooldown prune failed", logx.Err(err))
	}
	orphans, err := s.store.PruneOrphanServed(ctx)
	if err != nil {
		s.log.Warn("orphan served prune failed", logx.Err(err))
	}
	s.log.Info("maintenance done",
		logx.Int64("cooldowns_pruned", cooldowns), logx.Int64("orphans_pruned", orphans))
}
