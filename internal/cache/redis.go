package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

// AnalysisCache handles Redis-based caching of completion analyses. The
// analysis is a pure function of the sample set, so entries are keyed by a
// fingerprint of the samples and never go stale while that set is unchanged.
type AnalysisCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	stats  *cacheStats
}

// cacheStats tracks cache performance metrics
type cacheStats struct {
	hits   int64
	misses int64
}

// NewAnalysisCache creates a new Redis-based analysis cache
func NewAnalysisCache(config *Config, logger *zap.Logger) (*AnalysisCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Configure connection pool
	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	cache := &AnalysisCache{
		client: client,
		config: config,
		logger: logger,
		stats:  &cacheStats{},
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Analysis cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// ping tests the Redis connection
func (c *AnalysisCache) ping(ctx context.Context) error {
	_, err := c.client.Ping(ctx).Result()
	return err
}

// Lookup returns the cached analysis for the user's current sample set.
// Cache failures degrade to a miss; callers recompute.
func (c *AnalysisCache) Lookup(ctx context.Context, userID string, samples []biometric.StoredSample) (*LookupResult, error) {
	cacheKey := c.analysisKey(userID, samples)

	cachedData, err := c.client.Get(ctx, cacheKey).Result()
	if err == redis.Nil {
		c.stats.misses++
		c.logger.Debug("Cache miss", zap.String("key", cacheKey))
		return &LookupResult{CacheHit: false}, nil
	} else if err != nil {
		c.logger.Error("Cache lookup failed", zap.Error(err))
		return &LookupResult{CacheHit: false}, nil
	}

	var cached CachedAnalysis
	if err := json.Unmarshal([]byte(cachedData), &cached); err != nil {
		c.logger.Error("Failed to unmarshal cached analysis", zap.Error(err))
		// Delete corrupted cache entry
		c.client.Del(ctx, cacheKey)
		return &LookupResult{CacheHit: false}, nil
	}

	c.stats.hits++
	c.logger.Debug("Cache hit",
		zap.String("key", cacheKey),
		zap.String("user_id", userID))

	return &LookupResult{Analysis: &cached, CacheHit: true}, nil
}

// Store caches an analysis for the user's current sample set.
func (c *AnalysisCache) Store(ctx context.Context, userID string, samples []biometric.StoredSample, analysis biometric.CompletionAnalysis) error {
	cacheKey := c.analysisKey(userID, samples)

	cached := CachedAnalysis{
		UserID:   userID,
		Analysis: analysis,
		CachedAt: time.Now(),
		TTL:      int64(c.config.DefaultTTL.Seconds()),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis for caching: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey, data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache analysis", zap.Error(err))
		return fmt.Errorf("failed to cache analysis: %w", err)
	}

	c.logger.Debug("Analysis cached successfully",
		zap.String("key", cacheKey),
		zap.String("user_id", userID),
		zap.Bool("is_complete", analysis.IsComplete))

	return nil
}

// Invalidate drops every cached analysis for a user, used after deletes.
func (c *AnalysisCache) Invalidate(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("%s:analysis:%s:*", c.config.KeyPrefix, userID)

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}

	c.logger.Debug("Analysis cache invalidated",
		zap.String("user_id", userID),
		zap.Int("deleted_keys", len(keys)))
	return nil
}

// GetStats returns cache performance statistics
func (c *AnalysisCache) GetStats(ctx context.Context) (*CacheStats, error) {
	info, err := c.client.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &CacheStats{
		Hits:   c.stats.hits,
		Misses: c.stats.misses,
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	lines := strings.Split(info, "\r\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "used_memory:") {
			if memStr := strings.TrimPrefix(line, "used_memory:"); memStr != "" {
				if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
					stats.MemoryUsage = mem
				}
			}
		}
	}

	keys, err := c.client.DBSize(ctx).Result()
	if err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes all cached analyses
func (c *AnalysisCache) Clear(ctx context.Context) error {
	pattern := c.config.KeyPrefix + ":analysis:*"

	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	// Delete keys in batches
	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := c.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			c.logger.Error("Failed to delete cache keys", zap.Error(err))
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	c.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (c *AnalysisCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// analysisKey fingerprints the sample set: IDs and qualities in order. Any
// append or delete changes the key, so stale entries simply stop being read.
func (c *AnalysisCache) analysisKey(userID string, samples []biometric.StoredSample) string {
	hasher := sha256.New()
	for _, sample := range samples {
		fmt.Fprintf(hasher, "%d:%.4f,", sample.ID, sample.Quality)
	}
	hash := hex.EncodeToString(hasher.Sum(nil))
	return fmt.Sprintf("%s:analysis:%s:%s", c.config.KeyPrefix, userID, hash[:16])
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
