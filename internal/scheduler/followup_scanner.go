package scheduler

import (
	"context"
	"time"

	"legalintake_backend/internal/followup"
	"legalintake_backend/platform/config"
	"legalintake_backend/platform/logger"
)

// FollowUpScanner periodically sweeps quiet conversations and enqueues the
// next follow-up in the sequence for each.
type FollowUpScanner struct {
	engine   *followup.Engine
	interval time.Duration
	log      *logger.Logger
}

func NewFollowUpScanner(cfg config.SchedulerConfig, engine *followup.Engine, log *logger.Logger) *FollowUpScanner {
	interval := cfg.GetFollowUpScanInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	return &FollowUpScanner{
		engine:   engine,
		interval: interval,
		log:      log,
	}
}

func (s *FollowUpScanner) Run(ctx context.Context) {
	if s == nil || s.engine == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.engine.Scan(ctx); err != nil {
			s.log.Warn("follow-up scan failed", "error", err)
		}
	}
}
