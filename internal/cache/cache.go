// Package cache provides the two-tier evaluation result cache: an in-process
// LRU in front of an optional shared Redis tier guarded by a circuit breaker.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pharmds-ddi-server/internal/domain"
)

// Tiers and results reported to an Observer.
const (
	TierMemory = "memory"
	TierRedis  = "redis"

	ResultHit   = "hit"
	ResultMiss  = "miss"
	ResultError = "error"
)

const (
	defaultMaxItems = 1000
	defaultTTL      = time.Hour
	keyPrefix       = "pharmds:result:"
)

// Observer receives one call per tier lookup.
type Observer interface {
	ObserveCache(tier, result string)
}

// Stats represents cache performance statistics.
type Stats struct {
	MemoryHits   int64     `json:"memory_hits"`
	MemoryMisses int64     `json:"memory_misses"`
	RedisHits    int64     `json:"redis_hits"`
	RedisMisses  int64     `json:"redis_misses"`
	RedisErrors  int64     `json:"redis_errors"`
	Entries      int       `json:"entries"`
	BreakerState string    `json:"breaker_state,omitempty"`
	LastReset    time.Time `json:"last_reset"`
}

// entry is the JSON envelope stored in Redis.
type entry struct {
	Result    *domain.EvaluationResult `json:"result"`
	CachedAt  time.Time                `json:"cached_at"`
	ExpiresAt time.Time                `json:"expires_at"`
}

// ResultCache caches evaluation results by key. The zero value is not usable;
// construct it with New.
type ResultCache struct {
	memory   *expirable.LRU[string, *domain.EvaluationResult]
	redis    redis.Cmdable
	breaker  *gobreaker.CircuitBreaker
	ttl      time.Duration
	observer Observer
	log      *logrus.Logger

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithRedis adds the shared tier.
func WithRedis(client redis.Cmdable) Option {
	return func(c *ResultCache) { c.redis = client }
}

// WithObserver reports every lookup to o.
func WithObserver(o Observer) Option {
	return func(c *ResultCache) { c.observer = o }
}

// New creates a cache holding at most cfg.MaxItems results in memory for
// cfg.DefaultTTL.
func New(cfg domain.CacheConfig, logger *logrus.Logger, opts ...Option) *ResultCache {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = defaultMaxItems
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}

	c := &ResultCache{
		memory: expirable.NewLRU[string, *domain.EvaluationResult](cfg.MaxItems, nil, cfg.DefaultTTL),
		ttl:    cfg.DefaultTTL,
		log:    logger,
		stats:  Stats{LastReset: time.Now()},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.redis != nil {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "result-cache-redis",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("Cache circuit breaker changed state")
			},
		})
	}
	return c
}

// NewRedisClient connects to the Redis instance at cfg.RedisURL.
func NewRedisClient(ctx context.Context, cfg domain.CacheConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	opts.MaxRetries = cfg.MaxRetries

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// Get returns the cached result for key, promoting Redis hits into memory.
func (c *ResultCache) Get(ctx context.Context, key string) (*domain.EvaluationResult, bool) {
	if res, ok := c.memory.Get(key); ok {
		c.record(TierMemory, ResultHit)
		return res, true
	}
	c.record(TierMemory, ResultMiss)

	if c.redis == nil {
		return nil, false
	}
	res, err := c.getRedis(ctx, key)
	switch {
	case err != nil:
		c.record(TierRedis, ResultError)
		c.log.WithError(err).WithField("key", key).Debug("Redis cache lookup failed")
		return nil, false
	case res == nil:
		c.record(TierRedis, ResultMiss)
		return nil, false
	}
	c.record(TierRedis, ResultHit)
	c.memory.Add(key, res)
	return res, true
}

func (c *ResultCache) getRedis(ctx context.Context, key string) (*domain.EvaluationResult, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		raw, err := c.redis.Get(ctx, keyPrefix+key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return raw, err
	})
	if err != nil || out == nil {
		return nil, err
	}

	var e entry
	if err := json.Unmarshal(out.([]byte), &e); err != nil || e.Result == nil {
		// Drop corrupted entries.
		c.redis.Del(ctx, keyPrefix+key)
		return nil, nil
	}
	if time.Now().After(e.ExpiresAt) {
		c.redis.Del(ctx, keyPrefix+key)
		return nil, nil
	}
	return e.Result, nil
}

// Set stores res in both tiers. Redis failures are logged and otherwise
// ignored; the memory tier always succeeds.
func (c *ResultCache) Set(ctx context.Context, key string, res *domain.EvaluationResult) {
	if res == nil {
		return
	}
	c.memory.Add(key, res)
	if c.redis == nil {
		return
	}

	now := time.Now()
	raw, err := json.Marshal(entry{Result: res, CachedAt: now, ExpiresAt: now.Add(c.ttl)})
	if err != nil {
		c.log.WithError(err).Warn("Failed to encode cached result")
		return
	}
	_, err = c.breaker.Execute(func() (interface{}, error) {
		return nil, c.redis.Set(ctx, keyPrefix+key, raw, c.ttl).Err()
	})
	if err != nil {
		c.record(TierRedis, ResultError)
		c.log.WithError(err).WithField("key", key).Debug("Redis cache write failed")
	}
}

// Purge empties the memory tier. Redis entries are keyed by snapshot
// fingerprint and simply stop being requested once the snapshot changes.
func (c *ResultCache) Purge() {
	n := c.memory.Len()
	c.memory.Purge()
	c.log.WithField("entries", n).Debug("Result cache purged")
}

// Len returns the number of results held in memory.
func (c *ResultCache) Len() int {
	return c.memory.Len()
}

// Stats returns a copy of the counters.
func (c *ResultCache) Stats() Stats {
	c.statsMu.Lock()
	s := c.stats
	c.statsMu.Unlock()

	s.Entries = c.memory.Len()
	if c.breaker != nil {
		s.BreakerState = c.breaker.State().String()
	}
	return s
}

// ResetStats zeroes the counters.
func (c *ResultCache) ResetStats() {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	c.stats = Stats{LastReset: time.Now()}
}

func (c *ResultCache) record(tier, result string) {
	c.statsMu.Lock()
	switch tier + "/" + result {
	case TierMemory + "/" + ResultHit:
		c.stats.MemoryHits++
	case TierMemory + "/" + ResultMiss:
		c.stats.MemoryMisses++
	case TierRedis + "/" + ResultHit:
		c.stats.RedisHits++
	case TierRedis + "/" + ResultMiss:
		c.stats.RedisMisses++
	case TierRedis + "/" + ResultError:
		c.stats.RedisErrors++
	}
	c.statsMu.Unlock()

	if c.observer != nil {
		c.observer.ObserveCache(tier, result)
	}
}
