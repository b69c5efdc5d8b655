package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/api/middleware"
	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type RateLimitRepository interface {
	// CheckMutationRateLimit returns isAllowed, attempts left, seconds to wait.
	CheckMutationRateLimit(ctx context.Context, ownerKey string) (bool, int, int, error)
}

// MergeGate makes the guest-to-user merge a once-per-session event.
type MergeGate interface {
	Claim(ctx context.Context, guestSessionID string) (bool, error)
	Release(ctx context.Context, guestSessionID string) error
}

type redisRepository struct {
	client *redis.Client
	cfg    *config.Config
}

func NewRedisClient(cfg *config.Config) (*redis.Client, error) {

	redisURL := cfg.RedisConnect.GetDSN()
	slog.Info("Connecting to Redis", slog.String("addr", cfg.RedisConnect.Addr()), slog.Int("db", cfg.RedisConnect.DB))

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Error("Failed to parse Redis URL", slog.Any("error", err))
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.DB = cfg.RedisConnect.DB

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Failed to connect to Redis", slog.Any("error", err))
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("✅ Successfully connected to Redis")
	return client, nil
}

func NewRateLimitRepo(client *redis.Client, cfg *config.Config) RateLimitRepository {
	return &redisRepository{client: client, cfg: cfg}
}

func NewMergeGate(client *redis.Client, cfg *config.Config) MergeGate {
	return &redisRepository{client: client, cfg: cfg}
}

func rateLimitKey(ownerKey string) string {
	return "cart_mutations:" + ownerKey
}

func mergeGateKey(guestSessionID string) string {
	return "cart:merge:" + guestSessionID
}

// Sliding window over a sorted set: score is the attempt time in
// milliseconds, member is unique per attempt.
func (r *redisRepository) CheckMutationRateLimit(ctx context.Context, ownerKey string) (bool, int, int, error) {

	logger := middleware.LoggerFromContext(ctx)

	key := rateLimitKey(ownerKey)
	window := r.cfg.RateConfig.WindowSize

	now := time.Now().UnixMilli()
	windowStart := now - window.Milliseconds()

	pipe := r.client.Pipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("Redis pipeline execution failed for rate limit", slog.String("key", key), slog.Any("error", err))
		return false, 0, 0, fmt.Errorf("redis pipeline error for rate limit check: %w", err)
	}

	attempts := count.Val()
	remaining := r.cfg.RateConfig.MaxAttempts - attempts

	if attempts > r.cfg.RateConfig.MaxAttempts {

		scores, err := r.client.ZRangeArgsWithScores(ctx, redis.ZRangeArgs{Key: key, Start: 0, Stop: 0}).Result()
		if err != nil || len(scores) == 0 {
			logger.Error("Failed to get oldest attempt time for rate limit", slog.String("key", key), slog.Any("error", err))
			return false, 0, int(window.Seconds()), fmt.Errorf("failed to get oldest attempt time: %w", err)
		}

		oldest := int64(scores[0].Score)
		retryAfterMs := max(oldest+window.Milliseconds()-now, 0)
		retryAfter := int((retryAfterMs + 999) / 1000)

		logger.Warn("Cart mutation rate limit exceeded", slog.String("owner", ownerKey), slog.Int64("attempts", attempts))
		return false, 0, retryAfter, nil
	}

	logger.Debug("Rate limit check passed", slog.String("owner", ownerKey), slog.Int64("attempts", attempts), slog.Int64("remaining", remaining))
	return true, int(remaining), 0, nil
}

func (r *redisRepository) Claim(ctx context.Context, guestSessionID string) (bool, error) {

	ok, err := r.client.SetNX(ctx, mergeGateKey(guestSessionID), 1, r.cfg.Merge.GateTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim merge gate: %w", err)
	}

	return ok, nil
}

func (r *redisRepository) Release(ctx context.Context, guestSessionID string) error {

	if err := r.client.Del(ctx, mergeGateKey(guestSessionID)).Err(); err != nil {
		return fmt.Errorf("failed to release merge gate: %w", err)
	}

	return nil
}
