package cache

import (
	"time"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

// CachedAnalysis wraps a completion analysis with cache bookkeeping.
type CachedAnalysis struct {
	UserID   string                       `json:"user_id"`
	Analysis biometric.CompletionAnalysis `json:"analysis"`
	CachedAt time.Time                    `json:"cached_at"`
	TTL      int64                        `json:"ttl"`
}

// LookupResult represents a cache lookup result
type LookupResult struct {
	Analysis *CachedAnalysis `json:"analysis"`
	CacheHit bool            `json:"cache_hit"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// Config contains cache configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	EventQueueKey  string        `yaml:"event_queue_key" mapstructure:"event_queue_key"`
}

// DefaultConfig returns the default cache settings.
func DefaultConfig() Config {
	return Config{
		RedisURL:       "redis://localhost:6379",
		MaxConnections: 10,
		MinIdleConns:   2,
		DefaultTTL:     5 * time.Minute,
		KeyPrefix:      "voicesentinel",
		EventQueueKey:  "voicesentinel:events",
	}
}
