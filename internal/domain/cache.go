package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetPrediction retrieves a cached prediction result.
	GetPrediction(ctx context.Context, key string) (*PredictionResult, error)

	// SetPrediction caches a prediction result.
	SetPrediction(ctx context.Context, key string, result *PredictionResult, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" mapstructure:"type"`

	// Local LRU cache settings (Community tier)
	LocalMaxSize int           `json:"localMaxSize" mapstructure:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTtl" mapstructure:"localTtl"`

	// Redis settings (Pro tier)
	RedisAddr     string `json:"redisAddr" mapstructure:"redisAddr"`
	RedisPassword string `json:"-" mapstructure:"redisPassword"`
	RedisDB       int    `json:"redisDb" mapstructure:"redisDb"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" mapstructure:"enableTwoPhase"` // If true, check local first, then Redis
}
