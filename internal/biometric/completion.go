package biometric

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// AnalyzerConfig contains enrollment-completion criteria.
type AnalyzerConfig struct {
	RequiredSamples               int     `yaml:"required_samples" mapstructure:"required_samples"`
	MinQualityScore               float64 `yaml:"min_quality_score" mapstructure:"min_quality_score"`
	MinAverageQuality             float64 `yaml:"min_average_quality" mapstructure:"min_average_quality"`
	QualityConsistencyThreshold   float64 `yaml:"quality_consistency_threshold" mapstructure:"quality_consistency_threshold"`
	AllowQualityOverride          bool    `yaml:"allow_quality_override" mapstructure:"allow_quality_override"`
	CompletionConfidenceThreshold float64 `yaml:"completion_confidence_threshold" mapstructure:"completion_confidence_threshold"`
}

// DefaultAnalyzerConfig returns the default completion criteria.
func DefaultAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		RequiredSamples:               3,
		MinQualityScore:               0.7,
		MinAverageQuality:             0.75,
		QualityConsistencyThreshold:   0.15,
		AllowQualityOverride:          false,
		CompletionConfidenceThreshold: 0.85,
	}
}

// Validate checks the completion criteria ranges.
func (c AnalyzerConfig) Validate() error {
	if c.RequiredSamples < 1 {
		return fmt.Errorf("required_samples must be at least 1, got %d", c.RequiredSamples)
	}
	if c.QualityConsistencyThreshold <= 0 {
		return fmt.Errorf("quality_consistency_threshold must be positive, got %g", c.QualityConsistencyThreshold)
	}
	return nil
}

// Analyzer decides whether a user has enrolled enough high-quality,
// consistent samples. It is pure and deterministic: the same sample set
// always yields the same analysis, and nothing is persisted here.
type Analyzer struct {
	config AnalyzerConfig
	logger *zap.Logger
}

// NewAnalyzer creates a completion analyzer.
func NewAnalyzer(config AnalyzerConfig, logger *zap.Logger) *Analyzer {
	return &Analyzer{config: config, logger: logger}
}

// Analyze recomputes the completion decision from scratch for the given
// sample set. Samples must be in insertion order; the quality trend depends
// on it.
func (a *Analyzer) Analyze(samples []StoredSample) CompletionAnalysis {
	basic := a.checkBasic(samples)
	quality := a.checkQuality(samples)
	consistency := a.checkConsistency(samples)

	analysis := CompletionAnalysis{
		Basic:       basic,
		Quality:     quality,
		Consistency: consistency,
	}

	if basic.HasMinimumSamples {
		// Base credit for the minimum sample count, plus quality and
		// consistency contributions.
		confidence := 0.4
		if quality.HasQualitySamples && quality.MinQualityMet {
			confidence += 0.4
		} else if quality.HasQualitySamples || quality.MinQualityMet {
			confidence += 0.2
		}
		if consistency.IsConsistent {
			confidence += 0.2
		} else {
			confidence += consistency.ConsistencyScore * 0.2
		}
		analysis.CompletionConfidence = clamp01(confidence)

		if a.config.AllowQualityOverride {
			analysis.IsComplete = true
		} else {
			analysis.IsComplete = quality.HasQualitySamples &&
				quality.MinQualityMet &&
				analysis.CompletionConfidence >= a.config.CompletionConfidenceThreshold
		}
	}

	analysis.RegistrationScore = clamp01(
		0.25*(basic.CompletionPercentage/100) +
			0.5*quality.AverageQuality +
			0.25*consistency.ConsistencyScore)

	analysis.Recommendations = a.recommendations(analysis)

	a.logger.Debug("Completion analysis computed",
		zap.Bool("is_complete", analysis.IsComplete),
		zap.Float64("completion_confidence", analysis.CompletionConfidence),
		zap.Float64("registration_score", analysis.RegistrationScore),
		zap.Int("samples_collected", basic.SamplesCollected))

	return analysis
}

// ShouldTriggerUpdate reports whether the analysis warrants persisting a
// status change: the complete flag flipped, or the enrollment is now
// complete with high confidence and has not been confirmed yet. No side
// effects; the caller decides whether to write.
func (a *Analyzer) ShouldTriggerUpdate(analysis CompletionAnalysis, current RegistrationStatus) bool {
	if current.Complete != analysis.IsComplete {
		return true
	}
	if analysis.IsComplete &&
		analysis.CompletionConfidence >= a.config.CompletionConfidenceThreshold &&
		!current.Confirmed {
		return true
	}
	return false
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() AnalyzerConfig {
	return a.config
}

func (a *Analyzer) checkBasic(samples []StoredSample) BasicCompletion {
	count := len(samples)
	pct := float64(count) / float64(a.config.RequiredSamples) * 100
	if pct > 100 {
		pct = 100
	}
	remaining := a.config.RequiredSamples - count
	if remaining < 0 {
		remaining = 0
	}
	return BasicCompletion{
		SamplesCollected:     count,
		SamplesRequired:      a.config.RequiredSamples,
		SamplesRemaining:     remaining,
		HasMinimumSamples:    count >= a.config.RequiredSamples,
		CompletionPercentage: pct,
	}
}

func (a *Analyzer) checkQuality(samples []StoredSample) QualityCompletion {
	if len(samples) == 0 {
		return QualityCompletion{}
	}

	var sum float64
	aboveFloor := 0
	for _, sample := range samples {
		sum += sample.Quality
		if sample.Quality >= a.config.MinQualityScore {
			aboveFloor++
		}
	}
	avg := sum / float64(len(samples))

	return QualityCompletion{
		HasQualitySamples:   aboveFloor >= a.config.RequiredSamples,
		QualitySamplesCount: aboveFloor,
		AverageQuality:      avg,
		MinQualityMet:       avg >= a.config.MinAverageQuality,
	}
}

func (a *Analyzer) checkConsistency(samples []StoredSample) ConsistencyCompletion {
	if len(samples) < 2 {
		return ConsistencyCompletion{Trend: TrendInsufficientData}
	}

	qualities := make([]float64, len(samples))
	var sum float64
	for i, sample := range samples {
		qualities[i] = sample.Quality
		sum += sample.Quality
	}
	mean := sum / float64(len(qualities))

	var variance float64
	for _, q := range qualities {
		variance += (q - mean) * (q - mean)
	}
	stddev := math.Sqrt(variance / float64(len(qualities)))

	return ConsistencyCompletion{
		IsConsistent:     stddev <= a.config.QualityConsistencyThreshold,
		ConsistencyScore: clamp01(1 - stddev/a.config.QualityConsistencyThreshold),
		QualityStdDev:    stddev,
		Trend:            qualityTrend(qualities),
	}
}

// qualityTrend compares the mean of the first half of samples against the
// second half, in insertion order. A gap over 0.05 marks a trend.
func qualityTrend(qualities []float64) QualityTrend {
	if len(qualities) < 2 {
		return TrendInsufficientData
	}

	half := len(qualities) / 2
	firstAvg := meanOf(qualities[:half])
	secondAvg := meanOf(qualities[half:])

	switch {
	case secondAvg > firstAvg+0.05:
		return TrendImproving
	case firstAvg > secondAvg+0.05:
		return TrendDeclining
	default:
		return TrendStable
	}
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// recommendations generates ordered, human-readable guidance from the failed
// sub-checks. Complete enrollments get an empty list.
func (a *Analyzer) recommendations(analysis CompletionAnalysis) []string {
	if analysis.IsComplete {
		return []string{}
	}

	recs := []string{}
	if !analysis.Basic.HasMinimumSamples {
		recs = append(recs, fmt.Sprintf("Record %d more voice sample(s) to meet the minimum requirement",
			analysis.Basic.SamplesRemaining))
	}
	if !analysis.Quality.MinQualityMet {
		recs = append(recs, fmt.Sprintf("Improve audio quality: current average %.2f, target %.2f",
			analysis.Quality.AverageQuality, a.config.MinAverageQuality))
	}
	if analysis.Quality.QualitySamplesCount < a.config.RequiredSamples {
		recs = append(recs, fmt.Sprintf("Re-record %d sample(s) with better audio quality",
			a.config.RequiredSamples-analysis.Quality.QualitySamplesCount))
	}
	if !analysis.Consistency.IsConsistent && analysis.Basic.SamplesCollected >= 2 {
		recs = append(recs, fmt.Sprintf("Improve consistency: quality deviation %.3f exceeds threshold %.3f",
			analysis.Consistency.QualityStdDev, a.config.QualityConsistencyThreshold))
	}
	if analysis.Basic.HasMinimumSamples && analysis.CompletionConfidence < a.config.CompletionConfidenceThreshold {
		recs = append(recs, "Overall completion confidence needs improvement - consider re-recording samples")
	}
	return recs
}
