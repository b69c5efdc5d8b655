package health

import (
	"context"
	"fmt"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/config"
	"github.com/hellofresh/health-go/v5"
	"github.com/hellofresh/health-go/v5/checks/postgres"
	healthRedis "github.com/hellofresh/health-go/v5/checks/redis"
)

const Version = "1.0.0"

// NewHealthHandler reports postgres and redis. Extra checks, such as the
// asynq broker in the worker, are appended by the caller.
func NewHealthHandler(cfg *config.Config, extra ...health.Config) (*health.Health, error) {

	checks := append([]health.Config{
		{
			Name:    "database",
			Timeout: 3 * time.Second,
			Check:   postgres.New(postgres.Config{DSN: cfg.Database.GetDSN()}),
		},
		{
			Name:    "redis",
			Timeout: 2 * time.Second,
			Check:   healthRedis.New(healthRedis.Config{DSN: cfg.RedisConnect.GetDSN()}),
		},
	}, extra...)

	h, err := health.New(
		health.WithComponent(health.Component{
			Name:    cfg.Tracing.ServiceName,
			Version: Version,
		}),
		health.WithSystemInfo(),
		health.WithChecks(checks...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create health instance: %w", err)
	}

	return h, nil
}

// PingCheck adapts any Ping(ctx) error dependency into a health check.
func PingCheck(name string, timeout time.Duration, ping func(ctx context.Context) error) health.Config {
	return health.Config{
		Name:    name,
		Timeout: timeout,
		Check:   health.CheckFunc(ping),
	}
}
