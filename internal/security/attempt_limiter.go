package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterConfig controls per-user authentication attempt throttling.
type LimiterConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	AttemptsPerMin float64 `yaml:"attempts_per_min" mapstructure:"attempts_per_min"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// DefaultLimiterConfig returns the default throttling settings.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		Enabled:        true,
		AttemptsPerMin: 10,
		Burst:          5,
	}
}

// AttemptLimiter throttles authentication attempts per user to slow down
// brute-force probing of the voice matcher.
type AttemptLimiter struct {
	config   LimiterConfig
	limiters map[string]*userLimiter
	mu       sync.RWMutex
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAttemptLimiter creates an attempt limiter.
func NewAttemptLimiter(config LimiterConfig) *AttemptLimiter {
	return &AttemptLimiter{
		config:   config,
		limiters: make(map[string]*userLimiter),
	}
}

// Allow reports whether the user may make another authentication attempt.
func (a *AttemptLimiter) Allow(userID string) bool {
	if !a.config.Enabled {
		return true
	}
	return a.getLimiter(userID).Allow()
}

func (a *AttemptLimiter) getLimiter(userID string) *rate.Limiter {
	a.mu.RLock()
	ul, exists := a.limiters[userID]
	a.mu.RUnlock()

	if exists {
		a.mu.Lock()
		ul.lastSeen = time.Now()
		a.mu.Unlock()
		return ul.limiter
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Double-check after acquiring write lock
	if ul, exists := a.limiters[userID]; exists {
		ul.lastSeen = time.Now()
		return ul.limiter
	}

	ul = &userLimiter{
		limiter:  rate.NewLimiter(rate.Limit(a.config.AttemptsPerMin/60.0), a.config.Burst),
		lastSeen: time.Now(),
	}
	a.limiters[userID] = ul
	return ul.limiter
}

// CleanupStale removes limiters idle for longer than maxIdle to prevent
// unbounded growth.
func (a *AttemptLimiter) CleanupStale(maxIdle time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for userID, ul := range a.limiters {
		if ul.lastSeen.Before(cutoff) {
			delete(a.limiters, userID)
		}
	}
}

// StartCleanupRoutine starts a background routine to clean up stale limiters.
func (a *AttemptLimiter) StartCleanupRoutine() {
	go func() {
		ticker := time.NewTicker(30 * time.Minute)
		defer ticker.Stop()

		for range ticker.C {
			a.CleanupStale(time.Hour)
		}
	}()
}

// TrackedUsers returns the number of users with active limiters.
func (a *AttemptLimiter) TrackedUsers() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.limiters)
}
