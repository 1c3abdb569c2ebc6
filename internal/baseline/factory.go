package baseline

import (
	"context"
	"fmt"

	"okucheck/config"
)

// New builds the store selected by cfg. It returns nil, nil when baselines are disabled.
func New(ctx context.Context, cfg config.BaselineConfig) (Store, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case config.BaselineFile:
		return NewFileStore(cfg.Path), nil
	case config.BaselineRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis baseline requires a redis URL")
		}
		return NewRedisStore(ctx, RedisConfig{URL: cfg.RedisURL, Key: cfg.RedisKey, TTL: cfg.TTL})
	default:
		return nil, fmt.Errorf("unknown baseline type: %q", cfg.Type)
	}
}
