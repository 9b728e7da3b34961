// Package cache provides Redis-based caching for the latest tick per
// instrument, short-lived indicator snapshots, and the pending-command
// fanout hint used between heartbeats.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"
)

// CacheService provides Redis-based caching with graceful degradation. When
// Redis is unavailable, operations return errors that callers should handle
// by falling back to the relational store.
type CacheService struct {
	client       *redis.Client
	config       config.RedisConfig
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures     int
	checkInterval   time.Duration
	recoveryBackoff time.Duration
}

// Key prefixes for different cache types.
const (
	PrefixLatestTick      = "tick:%s:latest"          // instrument
	PrefixIndicatorSnap   = "indicator:%s:%s"         // instrument, timeframe
	PrefixSignalInterval  = "signal:%s:%s:%s:last"    // instrument, timeframe, direction — suppresses re-triggering within the cadence window
	PrefixPendingCommands = "commands:%d:pending"     // account_number — fanout hint so the ingestion surface can skip a DB round trip on heartbeats with nothing queued
	PrefixAccountSnapshot = "account:%d:snapshot"      // account_number — last reported balance/equity, for the dashboard's fast path
)

// Default TTLs.
const (
	DefaultTickTTL      = 5 * time.Minute
	DefaultIndicatorTTL = 2 * time.Minute
	DefaultSignalTTL    = 15 * time.Minute
	DefaultFanoutTTL    = 2 * time.Minute
)

// NewCacheService creates a new CacheService with the provided configuration.
// It attempts to connect to Redis and verifies connectivity.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := &CacheService{
		client:          client,
		config:          cfg,
		healthy:         false,
		failureCount:    0,
		maxFailures:     3,
		checkInterval:   30 * time.Second,
		recoveryBackoff: 5 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("cache: initial redis connection failed, starting in degraded mode")
		return cs, nil
	}

	cs.healthy = true
	cs.lastCheck = time.Now()
	log.Info().Str("address", cfg.Address).Msg("cache: redis connected")

	return cs, nil
}

// IsHealthy returns whether Redis is currently available.
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			log.Warn().Int("failures", cs.failureCount).Msg("cache: circuit breaker open, redis marked unhealthy")
		}
		cs.healthy = false
	}
}

func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		log.Info().Msg("cache: circuit breaker closed, redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

func (cs *CacheService) checkHealth(ctx context.Context) {
	cs.mu.RLock()
	timeSinceCheck := time.Since(cs.lastCheck)
	shouldCheck := !cs.healthy && timeSinceCheck >= cs.checkInterval
	cs.mu.RUnlock()

	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := cs.client.Ping(pingCtx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

// Get retrieves a value from cache.
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return "", fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	result, err := cs.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", err
		}
		cs.recordFailure()
		return "", fmt.Errorf("redis get failed: %w", err)
	}

	cs.recordSuccess()
	return result, nil
}

// MGet retrieves multiple keys atomically.
func (cs *CacheService) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return nil, fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	result, err := cs.client.MGet(ctx, keys...).Result()
	if err != nil {
		cs.recordFailure()
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	cs.recordSuccess()
	return result, nil
}

// Set stores a value in cache with TTL.
func (cs *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		data = string(jsonData)
	}

	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// Delete removes a key from cache.
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis delete failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// DeletePattern deletes all keys matching a pattern.
func (cs *CacheService) DeletePattern(ctx context.Context, pattern string) error {
	cs.checkHealth(ctx)

	if !cs.IsHealthy() {
		return fmt.Errorf("redis unavailable (circuit breaker open)")
	}

	iter := cs.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := cs.client.Del(ctx, iter.Val()).Err(); err != nil {
			cs.recordFailure()
			return fmt.Errorf("redis delete pattern failed: %w", err)
		}
	}

	if err := iter.Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis scan failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// GetJSON retrieves and unmarshals a JSON value from cache.
func (cs *CacheService) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := cs.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return nil
}

// SetJSON marshals and stores a JSON value in cache.
func (cs *CacheService) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return cs.Set(ctx, key, value, ttl)
}

// Close closes the Redis connection.
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

// Ping checks Redis connectivity.
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.recordFailure()
		return err
	}
	cs.recordSuccess()
	return nil
}

// GetClient returns the underlying Redis client for advanced operations.
func (cs *CacheService) GetClient() *redis.Client {
	return cs.client
}

// Stats summarizes cache health for monitoring.
type Stats struct {
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
	PoolSize     int    `json:"pool_size"`
}

// GetStats returns current cache statistics.
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return Stats{
		Healthy:      cs.healthy,
		FailureCount: cs.failureCount,
		Address:      cs.config.Address,
		PoolSize:     cs.config.PoolSize,
	}
}

// LatestTickKey generates a cache key for an instrument's latest tick.
func LatestTickKey(instrument string) string {
	return fmt.Sprintf(PrefixLatestTick, instrument)
}

// IndicatorSnapKey generates a cache key for an indicator snapshot.
func IndicatorSnapKey(instrument, timeframe string) string {
	return fmt.Sprintf(PrefixIndicatorSnap, instrument, timeframe)
}

// SignalIntervalKey generates a cache key used to suppress re-triggering a
// signal check for the same (instrument, timeframe, direction) within the
// generator's cadence window.
func SignalIntervalKey(instrument, timeframe, direction string) string {
	return fmt.Sprintf(PrefixSignalInterval, instrument, timeframe, direction)
}

// PendingCommandsKey generates a cache key hinting whether an account has
// commands awaiting delivery, so a heartbeat with nothing queued can skip a
// database round trip.
func PendingCommandsKey(accountNumber int64) string {
	return fmt.Sprintf(PrefixPendingCommands, accountNumber)
}

// AccountSnapshotKey generates a cache key for an account's last reported
// balance/equity/margin snapshot.
func AccountSnapshotKey(accountNumber int64) string {
	return fmt.Sprintf(PrefixAccountSnapshot, accountNumber)
}
