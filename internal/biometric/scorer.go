package biometric

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ScorerConfig contains authentication scoring configuration. All fields are
// read-only after load and safe to share across concurrent requests.
type ScorerConfig struct {
	MinSimilarityThreshold  float64 `yaml:"min_similarity_threshold" mapstructure:"min_similarity_threshold"`
	HighConfidenceThreshold float64 `yaml:"high_confidence_threshold" mapstructure:"high_confidence_threshold"`
	AuthenticationThreshold float64 `yaml:"authentication_threshold" mapstructure:"authentication_threshold"`
	MinStoredSamples        int     `yaml:"min_stored_samples" mapstructure:"min_stored_samples"`
	UseAverageScoring       bool    `yaml:"use_average_scoring" mapstructure:"use_average_scoring"`
	UseMaxScoring           bool    `yaml:"use_max_scoring" mapstructure:"use_max_scoring"`
	WeightAverage           float64 `yaml:"weight_average" mapstructure:"weight_average"`
	WeightMax               float64 `yaml:"weight_max" mapstructure:"weight_max"`
	QualityScoreWeight      float64 `yaml:"quality_score_weight" mapstructure:"quality_score_weight"`
	ExpectedDimensions      int     `yaml:"expected_dimensions" mapstructure:"expected_dimensions"`
}

// DefaultScorerConfig returns the default authentication thresholds.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		MinSimilarityThreshold:  0.75,
		HighConfidenceThreshold: 0.85,
		AuthenticationThreshold: 0.80,
		MinStoredSamples:        1,
		UseAverageScoring:       true,
		UseMaxScoring:           true,
		WeightAverage:           0.6,
		WeightMax:               0.4,
		QualityScoreWeight:      0.1,
		ExpectedDimensions:      256,
	}
}

// Validate checks threshold and weight ranges.
func (c ScorerConfig) Validate() error {
	for name, v := range map[string]float64{
		"min_similarity_threshold":  c.MinSimilarityThreshold,
		"high_confidence_threshold": c.HighConfidenceThreshold,
		"authentication_threshold":  c.AuthenticationThreshold,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0.0 and 1.0, got %g", name, v)
		}
	}
	if c.MinStoredSamples < 1 {
		return fmt.Errorf("min_stored_samples must be at least 1, got %d", c.MinStoredSamples)
	}
	return nil
}

// Scorer renders authentication decisions by comparing an input embedding
// against a user's stored samples. It holds no mutable state, performs no
// I/O, and never retries; transient collaborator failures are the pipeline's
// responsibility.
type Scorer struct {
	config ScorerConfig
	logger *zap.Logger
}

// NewScorer creates an authentication scorer.
func NewScorer(config ScorerConfig, logger *zap.Logger) *Scorer {
	return &Scorer{config: config, logger: logger}
}

// CompareAgainstStored computes similarities between the input embedding and
// every stored sample. Samples whose comparison fails are skipped with a
// warning; one bad stored sample must not block authentication against the
// rest.
func (s *Scorer) CompareAgainstStored(input Embedding, stored []StoredSample) (*ComparisonResult, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("%w: input embedding cannot be empty", ErrInvalidEmbedding)
	}
	if len(stored) == 0 || len(stored) < s.config.MinStoredSamples {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientData, len(stored), s.config.MinStoredSamples)
	}
	if s.config.ExpectedDimensions > 0 && len(input) != s.config.ExpectedDimensions {
		s.logger.Warn("Unexpected embedding dimensions",
			zap.Int("expected", s.config.ExpectedDimensions),
			zap.Int("actual", len(input)))
	}

	result := &ComparisonResult{
		Comparisons:   make([]SimilarityComparison, 0, len(stored)),
		MinSimilarity: 1.0,
	}

	var sum, weightedSum, weightSum float64
	for i, sample := range stored {
		sim, err := CosineSimilarity(input, sample.Embedding)
		if err != nil {
			result.SkippedComparisons++
			s.logger.Warn("Skipping stored sample comparison",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}

		result.Comparisons = append(result.Comparisons, SimilarityComparison{
			Index:      i,
			Similarity: sim,
			Quality:    sample.Quality,
			CreatedAt:  sample.CreatedAt,
		})

		sum += sim
		weightedSum += sim * sample.Quality
		weightSum += sample.Quality
		if sim > result.MaxSimilarity {
			result.MaxSimilarity = sim
		}
		if sim < result.MinSimilarity {
			result.MinSimilarity = sim
		}
	}

	result.TotalComparisons = len(result.Comparisons)
	if result.TotalComparisons == 0 {
		return nil, fmt.Errorf("%w: all %d comparisons skipped", ErrNoValidComparisons, len(stored))
	}

	result.AverageSimilarity = sum / float64(result.TotalComparisons)
	if weightSum > 0 {
		result.QualityWeightedAverage = weightedSum / weightSum
	} else {
		// All qualities zero or absent: fall back to the plain average.
		result.QualityWeightedAverage = result.AverageSimilarity
	}

	s.logger.Debug("Embedding comparison completed",
		zap.Int("total_comparisons", result.TotalComparisons),
		zap.Int("skipped", result.SkippedComparisons),
		zap.Float64("average_similarity", result.AverageSimilarity),
		zap.Float64("max_similarity", result.MaxSimilarity),
		zap.Float64("quality_weighted_average", result.QualityWeightedAverage))

	return result, nil
}

// ScoreConfidence turns an aggregated comparison into an authentication
// decision. Confidence is a weighted blend of average and max similarity,
// adjusted by sample quality and corroborating-sample count. The final clamp
// to [0, 1] is load-bearing: the additive terms can individually push the
// raw score outside the intended range.
func (s *Scorer) ScoreConfidence(comparison *ComparisonResult) AuthenticationDecision {
	factors := DecisionFactors{}

	if s.config.UseAverageScoring {
		factors.AverageWeighted = comparison.AverageSimilarity * s.config.WeightAverage
	}
	if s.config.UseMaxScoring {
		factors.MaxWeighted = comparison.MaxSimilarity * s.config.WeightMax
	}
	factors.BaseConfidence = factors.AverageWeighted + factors.MaxWeighted

	factors.QualityAdjustment = (comparison.QualityWeightedAverage - comparison.AverageSimilarity) * s.config.QualityScoreWeight

	// Small, capped reward for having more corroborating samples.
	factors.SampleSizeBoost = float64(comparison.TotalComparisons-1) * 0.01
	if factors.SampleSizeBoost > 0.05 {
		factors.SampleSizeBoost = 0.05
	}

	confidence := clamp01(factors.BaseConfidence + factors.QualityAdjustment + factors.SampleSizeBoost)

	decision := AuthenticationDecision{
		ConfidenceScore:  confidence,
		MeetsThreshold:   confidence >= s.config.AuthenticationThreshold,
		IsHighConfidence: confidence >= s.config.HighConfidenceThreshold,
		Comparisons:      comparison.Comparisons,
		Factors:          factors,
	}

	switch {
	case comparison.TotalComparisons < s.config.MinStoredSamples:
		decision.Result = ResultInsufficientData
	case decision.MeetsThreshold:
		decision.Result = ResultAuthenticated
	default:
		decision.Result = ResultRejected
	}

	s.logger.Debug("Authentication confidence calculated",
		zap.Float64("confidence_score", confidence),
		zap.String("result", string(decision.Result)),
		zap.Bool("meets_threshold", decision.MeetsThreshold),
		zap.Int("total_comparisons", comparison.TotalComparisons))

	return decision
}

// Authenticate is the single public entry point for live authentication: it
// composes CompareAgainstStored and ScoreConfidence. Stored state is never
// mutated. Too few stored samples is an expected case and yields an
// INSUFFICIENT_DATA decision, not an error; truly invalid input still
// returns a typed error.
func (s *Scorer) Authenticate(input Embedding, stored []StoredSample) (AuthenticationDecision, error) {
	comparison, err := s.CompareAgainstStored(input, stored)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			s.logger.Info("Voice authentication completed",
				zap.String("result", string(ResultInsufficientData)),
				zap.Int("stored_samples", len(stored)))
			return AuthenticationDecision{Result: ResultInsufficientData}, nil
		}
		return AuthenticationDecision{}, err
	}

	decision := s.ScoreConfidence(comparison)

	s.logger.Info("Voice authentication completed",
		zap.String("result", string(decision.Result)),
		zap.Float64("confidence_score", decision.ConfidenceScore),
		zap.Bool("is_high_confidence", decision.IsHighConfidence),
		zap.Int("stored_samples", len(stored)))

	return decision, nil
}

// Config returns the scorer configuration.
func (s *Scorer) Config() ScorerConfig {
	return s.config
}
