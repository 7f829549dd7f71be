package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/cardiorisk/internal/domain"
)

func sampleResult() *domain.PredictionResult {
	return &domain.PredictionResult{
		Prediction:  1,
		Probability: 81.23,
		RiskLevel:   domain.RiskHigh,
		RiskFactors: []string{"Exercise Induced Angina"},
	}
}

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		if err := cache.Delete(ctx, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		now := time.Now()
		cache.now = func() time.Time { return now }
		defer func() { cache.now = time.Now }()

		_ = cache.Set(ctx, "expiring", []byte("temp"), time.Second)

		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Fatal("expected value before expiry")
		}

		now = now.Add(2 * time.Second)
		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiry")
		}
	})

	t.Run("NonPositiveTTL", func(t *testing.T) {
		_ = cache.Set(ctx, "gone", []byte("x"), time.Minute)
		_ = cache.Set(ctx, "gone", []byte("y"), 0)

		val, _ := cache.Get(ctx, "gone")
		if val != nil {
			t.Error("expected a zero ttl to remove the key")
		}
	})
}

func TestPredictionCache(t *testing.T) {
	ctx := context.Background()
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.SetPrediction(ctx, "p1", sampleResult(), time.Minute))

	got, err := c.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), got)

	miss, err := c.GetPrediction(ctx, "p2")
	assert.NoError(t, err)
	assert.Nil(t, miss)

	assert.Error(t, c.SetPrediction(ctx, "p3", nil, time.Minute))

	// Undecodable entries are evicted and read as a miss.
	require.NoError(t, c.Set(ctx, "bad", []byte("{not json"), time.Minute))
	got, err = c.GetPrediction(ctx, "bad")
	require.NoError(t, err)
	assert.Nil(t, got)
	raw, _ := c.Get(ctx, "bad")
	assert.Nil(t, raw)
}

func TestLRUEviction(t *testing.T) {
	cache := NewLRUCache(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cache.Set(ctx, fmt.Sprintf("k%d", i), []byte{byte(i)}, time.Minute)
	}

	// Touch k0 so k1 becomes the oldest
	_, _ = cache.Get(ctx, "k0")
	_ = cache.Set(ctx, "k3", []byte{3}, time.Minute)

	assert.Equal(t, 3, cache.Len())

	val, _ := cache.Get(ctx, "k1")
	assert.Nil(t, val)
	val, _ = cache.Get(ctx, "k0")
	assert.NotNil(t, val)
}

func TestPredictionKey(t *testing.T) {
	rec := domain.RawRecord{Age: 50, Sex: domain.SexMale, Cholesterol: 220}

	k1 := PredictionKey(rec, "5dda609e/heart-v1/50")
	assert.Equal(t, k1, PredictionKey(rec, "5dda609e/heart-v1/50"))
	assert.NotEqual(t, k1, PredictionKey(rec, "9c0ffee1/heart-v1/50"))
	assert.NotEqual(t, k1, PredictionKey(rec, "5dda609e/heart-v2/50"))
	assert.NotEqual(t, k1, PredictionKey(rec, "5dda609e/heart-v1/60"))

	other := rec
	other.Cholesterol = 221
	assert.NotEqual(t, k1, PredictionKey(other, "5dda609e/heart-v1/50"))
}

func TestNewCache(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
	require.NoError(t, err)
	assert.IsType(t, &LRUCache{}, c.store)

	_, err = New(domain.CacheConfig{Type: "memcached"})
	assert.Error(t, err)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()
	require.IsType(t, &RedisCache{}, c.store)

	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.SetPrediction(ctx, "p1", sampleResult(), time.Minute))
	assert.True(t, mr.Exists("cardiorisk:p1"))

	got, err := c.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), got)

	mr.FastForward(2 * time.Minute)
	got, err = c.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "raw", []byte("x"), time.Minute))
	require.NoError(t, c.Delete(ctx, "raw"))
	assert.False(t, mr.Exists("cardiorisk:raw"))
}

func TestRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisCache(addr, "", 0)
	assert.Error(t, err)
}

func TestTwoPhaseCache(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c, err := New(domain.CacheConfig{
		Type:           "redis",
		RedisAddr:      mr.Addr(),
		EnableTwoPhase: true,
		LocalMaxSize:   10,
		LocalTTL:       time.Minute,
	})
	require.NoError(t, err)
	defer c.Close()

	tp, ok := c.store.(*TwoPhaseCache)
	require.True(t, ok)

	require.NoError(t, c.SetPrediction(ctx, "p1", sampleResult(), time.Hour))
	assert.True(t, mr.Exists("cardiorisk:p1"))

	// Evict L1 so the read goes to L2 and repopulates L1
	require.NoError(t, tp.local.Delete(ctx, "p1"))
	got, err := c.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, sampleResult(), got)
	assert.Equal(t, 1, tp.local.Len())

	// L1 answers even when L2 lost the key
	mr.Del("cardiorisk:p1")
	got, err = c.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	require.NoError(t, c.Delete(ctx, "p1"))
	got, err = c.GetPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Ping(ctx))
}

func TestTwoPhaseBackfillTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	remote, err := NewRedisCache(mr.Addr(), "", 0)
	require.NoError(t, err)
	local := NewLRUCache(10)
	now := time.Now()
	local.now = func() time.Time { return now }

	tp := NewTwoPhaseCache(local, remote, time.Hour)
	defer tp.Close()

	// An entry with ten seconds left in L2 must not live an hour in L1.
	require.NoError(t, remote.Set(ctx, "short", []byte("x"), 10*time.Second))
	val, err := tp.Get(ctx, "short")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), val)

	now = now.Add(11 * time.Second)
	mr.FastForward(11 * time.Second)
	val, err = tp.Get(ctx, "short")
	require.NoError(t, err)
	assert.Nil(t, val)

	// Keys without expiry are capped at the L1 ttl.
	require.NoError(t, remote.Set(ctx, "forever", []byte("y"), 0))
	val, err = tp.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), val)
	assert.Equal(t, 1, local.Len())
}
