package biometric

import (
	"errors"
	"time"
)

// Embedding is a fixed-length voice biometric vector produced by the
// embedding generator. Embeddings are immutable once created; all stored
// embeddings for a deployment share the same dimensionality.
type Embedding []float32

// StoredSample is one enrolled voice sample: the embedding, the quality
// score reported by the generator, and metadata about the source audio.
// Samples are append-only during enrollment and never mutated.
type StoredSample struct {
	ID        int64             `db:"id" json:"id"`
	Embedding Embedding         `json:"embedding"`
	Quality   float64           `db:"quality" json:"quality"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SimilarityComparison records the outcome of comparing the input embedding
// against a single stored sample.
type SimilarityComparison struct {
	Index      int       `json:"index"`
	Similarity float64   `json:"similarity"`
	Quality    float64   `json:"quality"`
	CreatedAt  time.Time `json:"sample_created_at"`
}

// ComparisonResult aggregates per-sample similarities for one input embedding.
type ComparisonResult struct {
	Comparisons            []SimilarityComparison `json:"comparisons"`
	AverageSimilarity      float64                `json:"average_similarity"`
	MaxSimilarity          float64                `json:"max_similarity"`
	MinSimilarity          float64                `json:"min_similarity"`
	QualityWeightedAverage float64                `json:"quality_weighted_average"`
	TotalComparisons       int                    `json:"total_comparisons"`
	SkippedComparisons     int                    `json:"skipped_comparisons"`
}

// AuthResult is the final authentication outcome.
type AuthResult string

const (
	ResultAuthenticated    AuthResult = "authenticated"
	ResultRejected         AuthResult = "rejected"
	ResultInsufficientData AuthResult = "insufficient_data"
)

// DecisionFactors breaks the confidence score into its components so callers
// can explain a decision.
type DecisionFactors struct {
	BaseConfidence    float64 `json:"base_confidence"`
	AverageWeighted   float64 `json:"average_weighted"`
	MaxWeighted       float64 `json:"max_weighted"`
	QualityAdjustment float64 `json:"quality_adjustment"`
	SampleSizeBoost   float64 `json:"sample_size_boost"`
}

// AuthenticationDecision is the result of one authentication request.
type AuthenticationDecision struct {
	ConfidenceScore  float64                `json:"confidence_score"`
	Result           AuthResult             `json:"result"`
	MeetsThreshold   bool                   `json:"meets_threshold"`
	IsHighConfidence bool                   `json:"is_high_confidence"`
	Comparisons      []SimilarityComparison `json:"comparisons"`
	Factors          DecisionFactors        `json:"decision_factors"`
}

// QualityTrend classifies how sample quality evolves across the enrollment.
type QualityTrend string

const (
	TrendImproving        QualityTrend = "improving"
	TrendDeclining        QualityTrend = "declining"
	TrendStable           QualityTrend = "stable"
	TrendInsufficientData QualityTrend = "insufficient_data"
)

// BasicCompletion covers the raw sample-count criterion.
type BasicCompletion struct {
	SamplesCollected     int     `json:"samples_collected"`
	SamplesRequired      int     `json:"samples_required"`
	SamplesRemaining     int     `json:"samples_remaining"`
	HasMinimumSamples    bool    `json:"has_minimum_samples"`
	CompletionPercentage float64 `json:"completion_percentage"`
}

// QualityCompletion covers per-sample and average quality criteria.
type QualityCompletion struct {
	HasQualitySamples   bool    `json:"has_quality_samples"`
	QualitySamplesCount int     `json:"quality_samples_count"`
	AverageQuality      float64 `json:"average_quality"`
	MinQualityMet       bool    `json:"min_quality_met"`
}

// ConsistencyCompletion covers variance of quality across samples.
type ConsistencyCompletion struct {
	IsConsistent     bool         `json:"is_consistent"`
	ConsistencyScore float64      `json:"consistency_score"`
	QualityStdDev    float64      `json:"quality_std_dev"`
	Trend            QualityTrend `json:"quality_trend"`
}

// CompletionAnalysis is the full enrollment-completion decision. It is
// recomputed from the sample set on every call and never treated as the
// source of truth; persisted copies are projections only.
type CompletionAnalysis struct {
	IsComplete           bool                  `json:"is_complete"`
	CompletionConfidence float64               `json:"completion_confidence"`
	RegistrationScore    float64               `json:"registration_score"`
	Basic                BasicCompletion       `json:"basic_completion"`
	Quality              QualityCompletion     `json:"quality_completion"`
	Consistency          ConsistencyCompletion `json:"consistency_completion"`
	Recommendations      []string              `json:"recommendations"`
}

// RegistrationStatus is the persisted completion state of a user record, as
// read back from the repository.
type RegistrationStatus struct {
	Complete    bool       `json:"registration_complete"`
	Confirmed   bool       `json:"completion_confirmed"`
	Confidence  float64    `json:"completion_confidence"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Engine error taxonomy. Per-sample comparison failures inside a batch are
// recovered locally; these sentinels cover the cases that reach callers.
var (
	ErrInvalidEmbedding   = errors.New("invalid embedding")
	ErrInsufficientData   = errors.New("insufficient stored samples")
	ErrNoValidComparisons = errors.New("no valid similarity comparisons")
)
