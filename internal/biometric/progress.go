package biometric

// QualityDistribution buckets sample qualities for progress reporting.
type QualityDistribution struct {
	Excellent int `json:"excellent"`
	Good      int `json:"good"`
	Fair      int `json:"fair"`
	Poor      int `json:"poor"`
}

// ProgressReport summarizes enrollment progress for user-facing status and
// notifications. It is a projection of a CompletionAnalysis, not a separate
// source of truth.
type ProgressReport struct {
	SamplesCollected     int                 `json:"samples_collected"`
	SamplesRequired      int                 `json:"samples_required"`
	SamplesRemaining     int                 `json:"samples_remaining"`
	CompletionPercentage float64             `json:"completion_percentage"`
	AverageQuality       float64             `json:"average_quality"`
	QualityTrend         QualityTrend        `json:"quality_trend"`
	Distribution         QualityDistribution `json:"quality_distribution"`
	IsComplete           bool                `json:"is_complete"`
	Recommendations      []string            `json:"recommendations"`
}

// AnalyzeProgress builds a progress report from the sample set and its
// completion analysis.
func (a *Analyzer) AnalyzeProgress(samples []StoredSample, analysis CompletionAnalysis) ProgressReport {
	return ProgressReport{
		SamplesCollected:     analysis.Basic.SamplesCollected,
		SamplesRequired:      analysis.Basic.SamplesRequired,
		SamplesRemaining:     analysis.Basic.SamplesRemaining,
		CompletionPercentage: analysis.Basic.CompletionPercentage,
		AverageQuality:       analysis.Quality.AverageQuality,
		QualityTrend:         analysis.Consistency.Trend,
		Distribution:         distributeQualities(samples),
		IsComplete:           analysis.IsComplete,
		Recommendations:      analysis.Recommendations,
	}
}

func distributeQualities(samples []StoredSample) QualityDistribution {
	var dist QualityDistribution
	for _, sample := range samples {
		switch {
		case sample.Quality >= 0.9:
			dist.Excellent++
		case sample.Quality >= 0.75:
			dist.Good++
		case sample.Quality >= 0.6:
			dist.Fair++
		default:
			dist.Poor++
		}
	}
	return dist
}
