package lock

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/schuelerfirma/kiosk/internal/config"
	"go.uber.org/fx"
)

// NewRedisClient returns nil when no redis address is configured. Everything
// built on it degrades to single-instance behavior.
func NewRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

var Module = fx.Module("lock",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
)
