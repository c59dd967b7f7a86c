package db

import (
	"context"
	"fmt"
	"time"

	"doc-chat/internal/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis client with connection pooling
type RedisClient struct {
	client *redis.Client
	config RedisConfig
}

// RedisConfig holds configuration for Redis connection
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns a Redis configuration with sensible defaults
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         "localhost",
		Port:         6379,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// RedisConfigFrom maps the service settings onto a client configuration
func RedisConfigFrom(cfg config.RedisConfig) RedisConfig {
	rc := DefaultRedisConfig()
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	if cfg.PoolSize > 0 {
		rc.PoolSize = cfg.PoolSize
	}
	return rc
}

// Addr returns host:port
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewRedisClient creates a new Redis client with connection pooling. No
// connection is made until the first command.
func NewRedisClient(config RedisConfig) *RedisClient {
	defaults := DefaultRedisConfig()
	if config.Host == "" {
		config.Host = defaults.Host
	}
	if config.Port == 0 {
		config.Port = defaults.Port
	}
	if config.PoolSize == 0 {
		config.PoolSize = defaults.PoolSize
	}
	if config.MinIdleConns == 0 {
		config.MinIdleConns = defaults.MinIdleConns
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr(),
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		MaxRetries:   config.MaxRetries,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	return &RedisClient{
		client: client,
		config: config,
	}
}

// Connect creates a client and verifies the server answers within timeout.
// The client is closed when the ping fails.
func Connect(ctx context.Context, config RedisConfig, timeout time.Duration) (*RedisClient, error) {
	rc := NewRedisClient(config)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		rc.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", rc.config.Addr(), err)
	}
	return rc, nil
}

// Ping checks if Redis is alive
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Config returns the effective configuration
func (r *RedisClient) Config() RedisConfig {
	return r.config
}

// PoolStats returns connection pool statistics
func (r *RedisClient) PoolStats() *redis.PoolStats {
	return r.client.PoolStats()
}

// Close closes the Redis client and releases all connections
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// GetClient returns the underlying redis client for repositories
func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}
