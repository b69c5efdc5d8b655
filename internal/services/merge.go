package service

import (
	"context"
	"log/slog"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	appErrors "github.com/aaravmahajanofficial/storefront-cart/internal/errors"
	"github.com/aaravmahajanofficial/storefront-cart/internal/metrics"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	repository "github.com/aaravmahajanofficial/storefront-cart/internal/repositories"
	"github.com/aaravmahajanofficial/storefront-cart/internal/tracing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type MergeService interface {
	SyncGuestCartToUser(ctx context.Context, guestSessionID string, userID uuid.UUID, strategy models.MergeStrategy) (*models.MergeResult, error)
}

type mergeService struct {
	carts CartService
	gate  repository.MergeGate
}

// NewMergeService builds the login-time merge on top of CartService, which
// stays the only write path into either cart.
func NewMergeService(carts CartService, gate repository.MergeGate) MergeService {
	return &mergeService{carts: carts, gate: gate}
}

func (s *mergeService) SyncGuestCartToUser(ctx context.Context, guestSessionID string, userID uuid.UUID, strategy models.MergeStrategy) (*models.MergeResult, error) {

	ctx, span := tracing.Start(ctx, "MergeService.SyncGuestCartToUser", attribute.String("merge.strategy", string(strategy)))
	defer span.End()

	logger := middleware.LoggerFromContext(ctx).With(slog.String("guestSessionId", guestSessionID), slog.String("userId", userID.String()))

	if guestSessionID == "" {
		return nil, appErrors.ValidationError("Guest session id is required")
	}

	if userID == uuid.Nil {
		return nil, appErrors.UnauthorizedError("Merging a guest cart requires an authenticated user")
	}

	switch strategy {
	case "":
		strategy = models.MergeStrategyMerge
	case models.MergeStrategyMerge, models.MergeStrategyReplace, models.MergeStrategyKeepLatest:
	default:
		return nil, appErrors.ValidationError("Unknown merge strategy").WithDetail(string(strategy))
	}

	guestOwner := models.SessionOwner(guestSessionID)
	userOwner := models.UserOwner(userID)

	guestCart, err := s.carts.FindActiveCart(ctx, guestOwner)
	if err != nil {
		return nil, err
	}

	if guestCart == nil || len(guestCart.Items) == 0 {
		logger.Info("No guest cart to merge")
		return s.result(ctx, userOwner, 0, 0, 0)
	}

	claimed, err := s.gate.Claim(ctx, guestSessionID)
	if err != nil {
		logger.Error("Failed to claim merge gate", slog.String("error", err.Error()))
		return nil, appErrors.ThirdPartyError("Failed to start cart merge").WithError(err)
	}

	if !claimed {
		logger.Warn("Guest cart merge already applied")
		metrics.RecordMerge(string(strategy), metrics.OutcomeRejected, 0, 0)
		return nil, appErrors.MergeAlreadyAppliedError()
	}

	replaced := 0

	if strategy == models.MergeStrategyReplace {
		cleared, err := s.carts.Clear(ctx, userOwner)
		if err != nil {
			if relErr := s.gate.Release(ctx, guestSessionID); relErr != nil {
				logger.Error("Failed to release merge gate", slog.String("error", relErr.Error()))
			}
			metrics.RecordMerge(string(strategy), metrics.OutcomeFailed, 0, 0)
			return nil, err
		}
		replaced = cleared.RemovedCount
	}

	// keep_latest has no distinct behavior yet and folds into merge.
	merged, failed := 0, 0

	for _, item := range guestCart.Items {
		if _, err := s.carts.AddItem(ctx, userOwner, item.ProductID, item.Quantity); err != nil {
			failed++
			logger.Warn("Dropped guest cart item during merge",
				slog.String("productId", item.ProductID.String()),
				slog.Int("quantity", item.Quantity),
				slog.String("error", err.Error()))
			continue
		}
		merged++
	}

	if _, err := s.carts.Clear(ctx, guestOwner); err != nil {
		logger.Error("Failed to clear guest cart after merge", slog.String("error", err.Error()))
		metrics.RecordMerge(string(strategy), metrics.OutcomeFailed, merged, failed)
		return nil, err
	}

	metrics.RecordMerge(string(strategy), metrics.OutcomeSuccess, merged, failed)
	logger.Info("Guest cart merged", slog.String("strategy", string(strategy)),
		slog.Int("mergedItems", merged), slog.Int("failedItems", failed), slog.Int("replacedItems", replaced))

	return s.result(ctx, userOwner, merged, failed, replaced)
}

func (s *mergeService) result(ctx context.Context, owner models.OwnerKey, merged, failed, replaced int) (*models.MergeResult, error) {

	current, err := s.carts.GetCart(ctx, owner)
	if err != nil {
		return nil, err
	}

	return &models.MergeResult{
		Cart:          current.Cart,
		Summary:       current.Summary,
		MergedItems:   merged,
		FailedItems:   failed,
		ReplacedItems: replaced,
	}, nil
}
