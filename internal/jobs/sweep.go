package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/metrics"
	"github.com/hibiken/asynq"
)

const TypeSweepExpiredCarts = "cart:sweep_expired"

type CartSweeper interface {
	DeleteExpiredCarts(ctx context.Context, now time.Time) (int64, error)
}

type SweepHandler struct {
	carts CartSweeper
	now   func() time.Time
}

func NewSweepHandler(carts CartSweeper, now func() time.Time) *SweepHandler {
	if now == nil {
		now = time.Now
	}

	return &SweepHandler{carts: carts, now: now}
}

func NewSweepExpiredCartsTask() *asynq.Task {
	return asynq.NewTask(TypeSweepExpiredCarts, nil)
}

// ProcessTask deletes every cart whose expiry has passed. Items go with their
// cart through the foreign key cascade.
func (h *SweepHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {

	logger := slog.Default().With(slog.String("task", task.Type()))
	if id, ok := asynq.GetTaskID(ctx); ok {
		logger = logger.With(slog.String("taskId", id))
	}

	start := time.Now()

	deleted, err := h.carts.DeleteExpiredCarts(ctx, h.now())
	if err != nil {
		logger.Error("Expired cart sweep failed", slog.String("error", err.Error()))
		return fmt.Errorf("sweep expired carts: %w", err)
	}

	metrics.RecordExpiredCartsSwept(deleted)
	logger.Info("Expired carts swept", slog.Int64("deleted", deleted), slog.Duration("duration", time.Since(start)))

	return nil
}
