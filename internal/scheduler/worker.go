package scheduler

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"legalintake_backend/internal/actions"
	"legalintake_backend/platform/config"
	"legalintake_backend/platform/logger"
)

// Worker consumes fire timers and hands them to the action scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *actions.Scheduler
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sched *actions.Scheduler, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		scheduler: sched,
		log:       log,
	}

	mux.HandleFunc(TaskActionDue, w.handleActionDue)

	return w, nil
}

func (w *Worker) handleActionDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseActionDuePayload(task)
	if err != nil {
		return err
	}

	actionID, err := uuid.Parse(payload.ActionID)
	if err != nil {
		return err
	}

	// Retry timing lives in the actions table, not in asynq. A failed fire
	// already rescheduled or buried itself; re-running the task would only
	// hit the pending check and no-op.
	if err := w.scheduler.Fire(ctx, actionID); err != nil {
		w.log.Warn("action fire failed", "action_id", actionID, "error", err)
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
