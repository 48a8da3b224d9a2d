package cache

import (
	"context"

	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/pipeline"
)

// CachedAnalyzer wraps a local completion analyzer with the Redis cache.
// The analysis is a pure function of the sample set, so a cache hit for the
// current fingerprint is always correct.
type CachedAnalyzer struct {
	inner  *biometric.Analyzer
	cache  *AnalysisCache
	logger *zap.Logger
}

// NewCachedAnalyzer creates an analysis wrapper over an existing cache.
func NewCachedAnalyzer(inner *biometric.Analyzer, cache *AnalysisCache, logger *zap.Logger) *CachedAnalyzer {
	return &CachedAnalyzer{
		inner:  inner,
		cache:  cache,
		logger: logger,
	}
}

// Analyze returns the cached analysis for the user's current sample set, or
// computes and caches it on a miss. Cache errors never surface; the local
// analyzer is the fallback.
func (a *CachedAnalyzer) Analyze(ctx context.Context, userID string, samples []biometric.StoredSample) biometric.CompletionAnalysis {
	result, err := a.cache.Lookup(ctx, userID, samples)
	if err == nil && result.CacheHit {
		return result.Analysis.Analysis
	}

	analysis := a.inner.Analyze(samples)

	if err := a.cache.Store(ctx, userID, samples, analysis); err != nil {
		a.logger.Debug("Analysis caching skipped",
			zap.String("user_id", userID),
			zap.Error(err))
	}
	return analysis
}

// ShouldTriggerUpdate defers to the local analyzer.
func (a *CachedAnalyzer) ShouldTriggerUpdate(analysis biometric.CompletionAnalysis, status biometric.RegistrationStatus) bool {
	return a.inner.ShouldTriggerUpdate(analysis, status)
}

// Progress defers to the local analyzer. Progress reports are cheap to build
// and are not cached.
func (a *CachedAnalyzer) Progress(samples []biometric.StoredSample, analysis biometric.CompletionAnalysis) biometric.ProgressReport {
	return a.inner.AnalyzeProgress(samples, analysis)
}

// Compile-time interface check.
var _ pipeline.Analyzer = (*CachedAnalyzer)(nil)
