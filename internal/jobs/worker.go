package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	"github.com/hibiken/asynq"
)

func RedisOpt(cfg *config.RedisConnect) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewScheduler enqueues the sweep on cfg.SweepCron. The task is unique per
// interval so several scheduler replicas do not pile up duplicate sweeps.
func NewScheduler(redis asynq.RedisConnOpt, cfg config.Worker) (*asynq.Scheduler, error) {

	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   slogAdapter{},
		LogLevel: asynq.InfoLevel,
	})

	if err := RegisterSweep(scheduler, cfg); err != nil {
		return nil, err
	}

	return scheduler, nil
}

func RegisterSweep(scheduler *asynq.Scheduler, cfg config.Worker) error {

	entryID, err := scheduler.Register(cfg.SweepCron, NewSweepExpiredCartsTask(),
		asynq.Queue(cfg.Queue),
		asynq.MaxRetry(2),
		asynq.Timeout(5*time.Minute),
		asynq.Unique(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("register %s on %q: %w", TypeSweepExpiredCarts, cfg.SweepCron, err)
	}

	slog.Info("Registered periodic task", slog.String("task", TypeSweepExpiredCarts), slog.String("cron", cfg.SweepCron), slog.String("entryId", entryID))
	return nil
}

func NewServer(redis asynq.RedisConnOpt, cfg config.Worker) *asynq.Server {
	return asynq.NewServer(redis, asynq.Config{
		Queues:      map[string]int{cfg.Queue: 1},
		Concurrency: cfg.Concurrency,
		Logger:      slogAdapter{},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			slog.Error("Task failed", slog.String("task", task.Type()), slog.String("error", err.Error()))
		}),
	})
}

func NewServeMux(sweep *SweepHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypeSweepExpiredCarts, sweep)

	return mux
}

// slogAdapter routes asynq's internal logging through the default slog
// logger.
type slogAdapter struct{}

func (slogAdapter) Debug(args ...any) {
	slog.Debug(fmt.Sprint(args...), slog.String("component", "asynq"))
}

func (slogAdapter) Info(args ...any) {
	slog.Info(fmt.Sprint(args...), slog.String("component", "asynq"))
}

func (slogAdapter) Warn(args ...any) {
	slog.Warn(fmt.Sprint(args...), slog.String("component", "asynq"))
}

func (slogAdapter) Error(args ...any) {
	slog.Error(fmt.Sprint(args...), slog.String("component", "asynq"))
}

func (slogAdapter) Fatal(args ...any) {
	slog.Error(fmt.Sprint(args...), slog.String("component", "asynq"))
}
