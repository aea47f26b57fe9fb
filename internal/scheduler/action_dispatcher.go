package scheduler

import (
	"context"
	"time"

	"legalintake_backend/internal/actions"
	"legalintake_backend/platform/config"
	"legalintake_backend/platform/logger"
)

const claimBatchSize = 50

// ActionDispatcher is the poll-loop backstop behind the asynq timers. It
// claims overdue pending actions straight from the database and fires them,
// which covers lost timers, restarts, and retries.
type ActionDispatcher struct {
	scheduler *actions.Scheduler
	interval  time.Duration
	log       *logger.Logger
}

func NewActionDispatcher(cfg config.SchedulerConfig, sched *actions.Scheduler, log *logger.Logger) *ActionDispatcher {
	interval := cfg.GetActionClaimInterval()
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &ActionDispatcher{
		scheduler: sched,
		interval:  interval,
		log:       log,
	}
}

func (d *ActionDispatcher) Run(ctx context.Context) {
	if d == nil || d.scheduler == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := d.scheduler.FireDue(ctx, claimBatchSize); err != nil {
			d.log.Warn("action claim sweep failed", "error", err)
		}
	}
}
