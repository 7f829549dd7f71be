package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

// store is a byte cache backend.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// New creates the prediction cache named by cfg.Type.
// "memory" keeps results in a local LRU. "redis" shares them through Redis,
// fronted by a local LRU when EnableTwoPhase is set.
func New(cfg domain.CacheConfig) (*PredictionCache, error) {
	var s store
	switch cfg.Type {
	case "memory":
		s = NewLRUCache(cfg.LocalMaxSize)

	case "redis":
		remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		s = remote
		if cfg.EnableTwoPhase {
			s = NewTwoPhaseCache(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL)
		}

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
	return &PredictionCache{store: s}, nil
}

// PredictionKey identifies the result of rec under a pipeline fingerprint.
// Records that parse to the same RawRecord share a key.
func PredictionKey(rec domain.RawRecord, fingerprint string) string {
	canonical, _ := json.Marshal(rec)
	h := xxhash.New()
	_, _ = h.WriteString(fingerprint)
	_, _ = h.WriteString("\x00")
	_, _ = h.Write(canonical)
	return "prediction:" + strconv.FormatUint(h.Sum64(), 16)
}

// PredictionCache stores prediction results as JSON in a byte store.
type PredictionCache struct {
	store store
}

// Get retrieves raw bytes. Returns nil, nil on a miss.
func (c *PredictionCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.store.Get(ctx, key)
}

// Set stores raw bytes for ttl.
func (c *PredictionCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.store.Set(ctx, key, value, ttl)
}

// Delete removes a key.
func (c *PredictionCache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, key)
}

// GetPrediction returns the cached result for key, or nil on a miss.
// An entry that no longer decodes is evicted and reported as a miss.
func (c *PredictionCache) GetPrediction(ctx context.Context, key string) (*domain.PredictionResult, error) {
	data, err := c.store.Get(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}

	var r domain.PredictionResult
	if err := json.Unmarshal(data, &r); err != nil {
		slog.Warn("evicting undecodable cached prediction", "key", key, "error", err)
		if err := c.store.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &r, nil
}

// SetPrediction caches result under key for ttl.
func (c *PredictionCache) SetPrediction(ctx context.Context, key string, result *domain.PredictionResult, ttl time.Duration) error {
	if result == nil {
		return fmt.Errorf("prediction result is required")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key, data, ttl)
}

// Ping checks the backend.
func (c *PredictionCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Close releases the backend.
func (c *PredictionCache) Close() error {
	return c.store.Close()
}

// TwoPhaseCache fronts Redis (L2) with a local LRU (L1). An L1 entry never
// outlives the L2 entry it was filled from.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache creates a two-phase cache. l1TTL caps how long an entry
// stays in L1; zero means five minutes.
func NewTwoPhaseCache(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL <= 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, l1TTL: l1TTL}
}

// Get retrieves from L1 first, then L2. An L2 hit is copied into L1 for the
// shorter of l1TTL and the entry's remaining L2 lifetime.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, key)
	if err != nil || val != nil {
		return val, err
	}

	val, remaining, err := c.remote.getWithTTL(ctx, key)
	if err != nil || val == nil {
		return nil, err
	}

	ttl := c.l1TTL
	if remaining > 0 && remaining < ttl {
		ttl = remaining
	}
	_ = c.local.Set(ctx, key, val, ttl)
	return val, nil
}

// Set writes to both L1 and L2.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	l1TTL := c.l1TTL
	if ttl < l1TTL {
		l1TTL = ttl
	}
	if err := c.local.Set(ctx, key, value, l1TTL); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes from both L1 and L2.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// Ping checks L2; L1 is always available.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close closes both L1 and L2.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}
