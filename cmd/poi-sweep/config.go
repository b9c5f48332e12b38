package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/Sternrassler/poi-sweep/pkg/logging"
	"github.com/redis/go-redis/v9"
)

// Environment variables.
const (
	envAPIKey      = "AMAP_KEY"
	envRedisURL    = "REDIS_URL"
	envMetricsAddr = "METRICS_ADDR"
)

// envConfig is the configuration read from the environment (and .env).
type envConfig struct {
	APIKey      string
	RedisURL    string
	MetricsAddr string
	Log         logging.Config
}

func loadEnv(getenv func(string) string) envConfig {
	return envConfig{
		APIKey:      strings.TrimSpace(getenv(envAPIKey)),
		RedisURL:    strings.TrimSpace(getenv(envRedisURL)),
		MetricsAddr: strings.TrimSpace(getenv(envMetricsAddr)),
		Log:         logging.FromEnv(getenv),
	}
}

// connectRedis accepts a redis:// URL or a bare host:port. An empty url
// returns a nil client.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}

	var opts *redis.Options
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", envRedisURL, err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: url}
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}
	return rdb, nil
}
