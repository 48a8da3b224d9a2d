package pipeline

import (
	"errors"
	"time"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

// Event is one audio-upload notification entering the pipeline.
type Event struct {
	ObjectKey   string            `json:"object_key"`
	Bucket      string            `json:"bucket,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	Size        int64             `json:"size,omitempty"`
	ReceivedAt  time.Time         `json:"received_at,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// StageName identifies one pipeline stage.
type StageName string

const (
	StageExtractIdentity      StageName = "extract_identity"
	StageFetchAndValidate     StageName = "fetch_and_validate"
	StageGenerateEmbedding    StageName = "generate_embedding"
	StagePersistSample        StageName = "persist_sample"
	StageReevaluateCompletion StageName = "reevaluate_completion"
)

// stageOrder is the fixed execution order of the pipeline.
var stageOrder = []StageName{
	StageExtractIdentity,
	StageFetchAndValidate,
	StageGenerateEmbedding,
	StagePersistSample,
	StageReevaluateCompletion,
}

// StageStatus is the closed set of stage outcomes.
type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageFailed  StageStatus = "failed"
)

// StageResult records one executed stage. Stages that never ran because an
// earlier stage failed are absent from the run entirely.
type StageResult struct {
	Name        StageName   `json:"name"`
	Status      StageStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Detail      string      `json:"detail,omitempty"`
	Error       string      `json:"error,omitempty"`
}

// Run is the observable record of one processed event. Stage results are
// retained for observability but are not authoritative state.
type Run struct {
	ID          string                        `json:"run_id"`
	Event       Event                         `json:"event"`
	UserID      string                        `json:"user_id,omitempty"`
	Stages      []StageResult                 `json:"stages"`
	Success     bool                          `json:"success"`
	FailedStage StageName                     `json:"failed_stage,omitempty"`
	StartedAt   time.Time                     `json:"started_at"`
	Duration    time.Duration                 `json:"duration"`
	SampleCount int                           `json:"sample_count,omitempty"`
	Analysis    *biometric.CompletionAnalysis `json:"completion_analysis,omitempty"`
	Attempts    int                           `json:"attempts,omitempty"`
}

// Stage returns the result for a stage, or nil if it never executed.
func (r *Run) Stage(name StageName) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

var (
	// ErrStageFailure wraps any collaborator error that aborted a run.
	ErrStageFailure = errors.New("pipeline stage failed")

	// ErrRetryExhausted marks a run that failed after all retries, with the
	// last stage's error attached.
	ErrRetryExhausted = errors.New("pipeline retries exhausted")
)
