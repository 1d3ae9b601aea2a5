package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/case-service/internal/config"
)

// Redis holds the client backing per-case edit locks.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds the client and probes it once. An unreachable server is
// only logged; case updates then rely on the optimistic version check.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.OpTimeout,
		WriteTimeout: cfg.OpTimeout,
		MaxRetries:   1,
	})

	probeCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	log := logger.With(zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	if err := client.Ping(probeCtx).Err(); err != nil {
		log.Warn("redis unreachable, case locks degrade to version checks", zap.Error(err))
	} else {
		log.Info("redis ready")
	}

	return &Redis{Client: client}
}

// Close releases the connection pool.
func (r *Redis) Close() {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Close()
}

// Ping reports readiness for /health/ready.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis: no client")
	}
	return r.Client.Ping(ctx).Err()
}
