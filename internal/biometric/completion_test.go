package biometric

import (
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestAnalyzer(t *testing.T, cfg AnalyzerConfig) *Analyzer {
	t.Helper()
	return NewAnalyzer(cfg, zap.NewNop())
}

func samplesWithQualities(qualities ...float64) []StoredSample {
	samples := make([]StoredSample, len(qualities))
	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i, q := range qualities {
		samples[i] = StoredSample{
			ID:        int64(i + 1),
			Embedding: Embedding{1, 0, 0},
			Quality:   q,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
	}
	return samples
}

func TestAnalyzeEmpty(t *testing.T) {
	analyzer := newTestAnalyzer(t, DefaultAnalyzerConfig())

	analysis := analyzer.Analyze(nil)
	if analysis.IsComplete {
		t.Error("Empty sample set must not be complete")
	}
	if analysis.CompletionConfidence != 0 {
		t.Errorf("Expected zero confidence, got %g", analysis.CompletionConfidence)
	}
	if analysis.Basic.SamplesRemaining != 3 {
		t.Errorf("Expected 3 samples remaining, got %d", analysis.Basic.SamplesRemaining)
	}
	if analysis.Consistency.Trend != TrendInsufficientData {
		t.Errorf("Expected insufficient_data trend, got %s", analysis.Consistency.Trend)
	}
	if len(analysis.Recommendations) == 0 {
		t.Error("Incomplete enrollment should carry recommendations")
	}
}

func TestAnalyzeComplete(t *testing.T) {
	analyzer := newTestAnalyzer(t, DefaultAnalyzerConfig())

	analysis := analyzer.Analyze(samplesWithQualities(0.85, 0.88, 0.9))
	if !analysis.IsComplete {
		t.Errorf("Expected complete enrollment, confidence %g", analysis.CompletionConfidence)
	}
	if analysis.CompletionConfidence != 1.0 {
		t.Errorf("All criteria met should yield confidence 1.0, got %g", analysis.CompletionConfidence)
	}
	if len(analysis.Recommendations) != 0 {
		t.Errorf("Complete enrollment should have no recommendations, got %v", analysis.Recommendations)
	}
	if analysis.Consistency.Trend != TrendStable {
		t.Errorf("Expected stable trend, got %s", analysis.Consistency.Trend)
	}
}

func TestAnalyzeLowQuality(t *testing.T) {
	analyzer := newTestAnalyzer(t, DefaultAnalyzerConfig())

	analysis := analyzer.Analyze(samplesWithQualities(0.5, 0.55, 0.6))
	if analysis.IsComplete {
		t.Error("Low quality samples must not complete enrollment")
	}
	if analysis.Quality.QualitySamplesCount != 0 {
		t.Errorf("Expected 0 quality samples, got %d", analysis.Quality.QualitySamplesCount)
	}
	if analysis.Quality.MinQualityMet {
		t.Error("Average quality below minimum should not be met")
	}
	if analysis.Basic.HasMinimumSamples != true {
		t.Error("Sample count criterion is independent of quality")
	}
}

func TestAnalyzeQualityOverride(t *testing.T) {
	cfg := DefaultAnalyzerConfig()
	cfg.AllowQualityOverride = true
	analyzer := newTestAnalyzer(t, cfg)

	analysis := analyzer.Analyze(samplesWithQualities(0.4, 0.45, 0.5))
	if !analysis.IsComplete {
		t.Error("Quality override should complete on sample count alone")
	}
}

func TestAnalyzeConsistency(t *testing.T) {
	analyzer := newTestAnalyzer(t, DefaultAnalyzerConfig())

	t.Run("consistent qualities", func(t *testing.T) {
		analysis := analyzer.Analyze(samplesWithQualities(0.8, 0.82, 0.81))
		if !analysis.Consistency.IsConsistent {
			t.Errorf("Expected consistent, stddev %g", analysis.Consistency.QualityStdDev)
		}
		if analysis.Consistency.ConsistencyScore <= 0.9 {
			t.Errorf("Tight qualities should score near 1.0, got %g", analysis.Consistency.ConsistencyScore)
		}
	})

	t.Run("erratic qualities", func(t *testing.T) {
		analysis := analyzer.Analyze(samplesWithQualities(0.95, 0.4, 0.9))
		if analysis.Consistency.IsConsistent {
			t.Errorf("Expected inconsistent, stddev %g", analysis.Consistency.QualityStdDev)
		}
		if analysis.Consistency.ConsistencyScore < 0 || analysis.Consistency.ConsistencyScore > 1 {
			t.Errorf("Consistency score %g outside [0, 1]", analysis.Consistency.ConsistencyScore)
		}
	})

	t.Run("single sample has no trend", func(t *testing.T) {
		analysis := analyzer.Analyze(samplesWithQualities(0.8))
		if analysis.Consistency.Trend != TrendInsufficientData {
			t.Errorf("Expected insufficient_data trend, got %s", analysis.Consistency.Trend)
		}
	})
}

func TestQualityTrend(t *testing.T) {
	tests := []struct {
		name      string
		qualities []float64
		expected  QualityTrend
	}{
		{"improving", []float64{0.6, 0.65, 0.85, 0.9}, TrendImproving},
		{"declining", []float64{0.9, 0.85, 0.65, 0.6}, TrendDeclining},
		{"stable", []float64{0.8, 0.81, 0.8, 0.82}, TrendStable},
		{"within tolerance", []float64{0.8, 0.84}, TrendStable},
		{"one sample", []float64{0.8}, TrendInsufficientData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := qualityTrend(tt.qualities); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestRegistrationScore(t *testing.T) {
	analyzer := newTestAnalyzer(t, DefaultAnalyzerConfig())

	analysis := analyzer.Analyze(samplesWithQualities(0.8, 0.8, 0.8))

	// Full sample count, avg quality 0.8, perfect consistency.
	want := 0.25*1.0 + 0.5*0.8 + 0.25*1.0
	if math.Abs(analysis.RegistrationScore-want) > 1e-9 {
		t.Errorf("Expected registration score %g, got %g", want, analysis.RegistrationScore)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	analyzer := newTestAnalyzer(t, DefaultAnalyzerConfig())
	samples := samplesWithQualities(0.7, 0.85, 0.6, 0.9)

	first := analyzer.Analyze(samples)
	second := analyzer.Analyze(samples)
	if !reflect.DeepEqual(first, second) {
		t.Error("Analysis of the same sample set must be identical")
	}
}

func TestShouldTriggerUpdate(t *testing.T) {
	analyzer := newTestAnalyzer(t, DefaultAnalyzerConfig())

	complete := analyzer.Analyze(samplesWithQualities(0.85, 0.88, 0.9))
	incomplete := analyzer.Analyze(samplesWithQualities(0.85))

	tests := []struct {
		name     string
		analysis CompletionAnalysis
		status   RegistrationStatus
		expected bool
	}{
		{
			name:     "completion flips false to true",
			analysis: complete,
			status:   RegistrationStatus{Complete: false},
			expected: true,
		},
		{
			name:     "completion flips true to false",
			analysis: incomplete,
			status:   RegistrationStatus{Complete: true},
			expected: true,
		},
		{
			name:     "complete but not yet confirmed",
			analysis: complete,
			status:   RegistrationStatus{Complete: true, Confirmed: false},
			expected: true,
		},
		{
			name:     "complete and confirmed, nothing to do",
			analysis: complete,
			status:   RegistrationStatus{Complete: true, Confirmed: true},
			expected: false,
		},
		{
			name:     "still incomplete, nothing to do",
			analysis: incomplete,
			status:   RegistrationStatus{Complete: false},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := analyzer.ShouldTriggerUpdate(tt.analysis, tt.status); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestAnalyzeProgress(t *testing.T) {
	analyzer := newTestAnalyzer(t, DefaultAnalyzerConfig())
	samples := samplesWithQualities(0.95, 0.8, 0.65, 0.5)
	analysis := analyzer.Analyze(samples)

	report := analyzer.AnalyzeProgress(samples, analysis)
	if report.SamplesCollected != 4 {
		t.Errorf("Expected 4 samples collected, got %d", report.SamplesCollected)
	}
	if report.CompletionPercentage != 100 {
		t.Errorf("Expected 100%% completion, got %g", report.CompletionPercentage)
	}

	want := QualityDistribution{Excellent: 1, Good: 1, Fair: 1, Poor: 1}
	if report.Distribution != want {
		t.Errorf("Expected distribution %+v, got %+v", want, report.Distribution)
	}
}
