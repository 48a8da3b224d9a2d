package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/audiostore"
	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/embedder"
	"github.com/raaihank/voice-sentinel/internal/notify"
	"github.com/raaihank/voice-sentinel/internal/store"
	"github.com/raaihank/voice-sentinel/internal/validate"
)

// Config contains pipeline orchestration settings.
type Config struct {
	UploadPrefix        string        `yaml:"upload_prefix" mapstructure:"upload_prefix"`
	MaxRetries          int           `yaml:"max_retries" mapstructure:"max_retries"`
	StageTimeout        time.Duration `yaml:"stage_timeout" mapstructure:"stage_timeout"`
	QualityWarningFloor float64       `yaml:"quality_warning_floor" mapstructure:"quality_warning_floor"`
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		UploadPrefix:        "audio-uploads",
		MaxRetries:          3,
		StageTimeout:        30 * time.Second,
		QualityWarningFloor: 0.7,
	}
}

// AudioValidator is the pre-embedding validation collaborator.
type AudioValidator interface {
	Validate(data []byte, fileName string) validate.Result
}

// Analyzer is the completion-analysis collaborator. Implementations must be
// deterministic for an unchanged sample set; a caching wrapper satisfies
// this because the analysis is a pure function of the samples.
type Analyzer interface {
	Analyze(ctx context.Context, userID string, samples []biometric.StoredSample) biometric.CompletionAnalysis
	ShouldTriggerUpdate(analysis biometric.CompletionAnalysis, status biometric.RegistrationStatus) bool
	Progress(samples []biometric.StoredSample, analysis biometric.CompletionAnalysis) biometric.ProgressReport
}

// LocalAnalyzer adapts biometric.Analyzer to the pipeline collaborator
// contract without caching.
type LocalAnalyzer struct {
	*biometric.Analyzer
}

func (a LocalAnalyzer) Analyze(_ context.Context, _ string, samples []biometric.StoredSample) biometric.CompletionAnalysis {
	return a.Analyzer.Analyze(samples)
}

func (a LocalAnalyzer) Progress(samples []biometric.StoredSample, analysis biometric.CompletionAnalysis) biometric.ProgressReport {
	return a.Analyzer.AnalyzeProgress(samples, analysis)
}

// Pipeline orchestrates one incoming voice sample end to end: identity
// extraction, fetch and validation, embedding generation, atomic
// persistence, and completion re-evaluation. A Pipeline holds no mutable
// state beyond configuration; concurrent Process calls are independent.
type Pipeline struct {
	config    Config
	audio     audiostore.Store
	validator AudioValidator
	generator embedder.Generator
	repo      store.SampleRepository
	analyzer  Analyzer
	notifier  notify.Notifier
	logger    *zap.Logger
}

// New creates a registration pipeline.
func New(config Config, audio audiostore.Store, validator AudioValidator, generator embedder.Generator,
	repo store.SampleRepository, analyzer Analyzer, notifier notify.Notifier, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		config:    config,
		audio:     audio,
		validator: validator,
		generator: generator,
		repo:      repo,
		analyzer:  analyzer,
		notifier:  notifier,
		logger:    logger,
	}
}

// Process runs the five stages for one event. The returned Run always
// reports what happened; a failed stage aborts the remaining stages and the
// error wraps ErrStageFailure.
func (p *Pipeline) Process(ctx context.Context, event Event) (*Run, error) {
	run := &Run{
		ID:        uuid.NewString(),
		Event:     event,
		StartedAt: time.Now(),
	}

	p.logger.Info("Pipeline run started",
		zap.String("run_id", run.ID),
		zap.String("object_key", event.ObjectKey))

	err := p.execute(ctx, run)
	run.Duration = time.Since(run.StartedAt)
	run.Success = err == nil

	if err != nil {
		p.logger.Error("Pipeline run failed",
			zap.String("run_id", run.ID),
			zap.String("failed_stage", string(run.FailedStage)),
			zap.Duration("duration", run.Duration),
			zap.Error(err))
		return run, fmt.Errorf("%w: stage %s: %v", ErrStageFailure, run.FailedStage, err)
	}

	p.logger.Info("Pipeline run completed",
		zap.String("run_id", run.ID),
		zap.String("user_id", run.UserID),
		zap.Int("sample_count", run.SampleCount),
		zap.Duration("duration", run.Duration))
	return run, nil
}

// execute runs the stages strictly sequentially; the first failure aborts.
func (p *Pipeline) execute(ctx context.Context, run *Run) error {
	var (
		audioData []byte
		audioMeta audiostore.Metadata
		genResult *embedder.Result
	)

	for _, stage := range stageOrder {
		var detail string
		var err error
		startedAt := time.Now()

		stageCtx := ctx
		var cancel context.CancelFunc
		if p.config.StageTimeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, p.config.StageTimeout)
		}

		switch stage {
		case StageExtractIdentity:
			detail, err = p.extractIdentity(run)
		case StageFetchAndValidate:
			audioData, audioMeta, detail, err = p.fetchAndValidate(stageCtx, run)
		case StageGenerateEmbedding:
			genResult, detail, err = p.generateEmbedding(stageCtx, run, audioData, audioMeta)
		case StagePersistSample:
			detail, err = p.persistSample(stageCtx, run, genResult, audioMeta)
		case StageReevaluateCompletion:
			detail, err = p.reevaluateCompletion(stageCtx, run, genResult)
		}

		if cancel != nil {
			cancel()
		}

		result := StageResult{
			Name:        stage,
			StartedAt:   startedAt,
			CompletedAt: time.Now(),
			Detail:      detail,
		}
		if err != nil {
			result.Status = StageFailed
			result.Error = err.Error()
			run.Stages = append(run.Stages, result)
			run.FailedStage = stage
			return err
		}
		result.Status = StageSuccess
		run.Stages = append(run.Stages, result)
	}

	return nil
}

func (p *Pipeline) extractIdentity(run *Run) (string, error) {
	userID, err := audiostore.ExtractUserID(run.Event.ObjectKey, p.config.UploadPrefix)
	if err != nil {
		return "", err
	}
	run.UserID = userID
	return fmt.Sprintf("user %s", userID), nil
}

func (p *Pipeline) fetchAndValidate(ctx context.Context, run *Run) ([]byte, audiostore.Metadata, string, error) {
	data, meta, err := p.audio.Fetch(ctx, run.Event.ObjectKey)
	if err != nil {
		return nil, audiostore.Metadata{}, "", fmt.Errorf("fetch audio: %w", err)
	}

	result := p.validator.Validate(data, run.Event.ObjectKey)
	if !result.IsValid {
		return nil, meta, result.Summary(), fmt.Errorf("audio validation failed: %s", result.Summary())
	}

	return data, meta, fmt.Sprintf("%d bytes, %s", meta.Size, result.Summary()), nil
}

func (p *Pipeline) generateEmbedding(ctx context.Context, run *Run, audioData []byte, meta audiostore.Metadata) (*embedder.Result, string, error) {
	result, err := p.generator.Generate(ctx, audioData, run.Event.ObjectKey)
	if err != nil {
		return nil, "", fmt.Errorf("generate embedding: %w", err)
	}
	return result, fmt.Sprintf("%d dimensions, quality %.2f", len(result.Embedding), result.Quality), nil
}

func (p *Pipeline) persistSample(ctx context.Context, run *Run, genResult *embedder.Result, meta audiostore.Metadata) (string, error) {
	sample := biometric.StoredSample{
		Embedding: genResult.Embedding,
		Quality:   genResult.Quality,
		Metadata: map[string]string{
			"object_key":   meta.Key,
			"content_type": meta.ContentType,
		},
	}

	count, err := p.repo.AppendSample(ctx, run.UserID, sample)
	if err != nil {
		return "", fmt.Errorf("append sample: %w", err)
	}

	// The repository count is authoritative; never derive it locally.
	run.SampleCount = count
	return fmt.Sprintf("total samples %d", count), nil
}

func (p *Pipeline) reevaluateCompletion(ctx context.Context, run *Run, genResult *embedder.Result) (string, error) {
	samples, err := p.repo.GetSamples(ctx, run.UserID)
	if err != nil {
		return "", fmt.Errorf("get samples: %w", err)
	}

	analysis := p.analyzer.Analyze(ctx, run.UserID, samples)
	run.Analysis = &analysis

	status, err := p.repo.GetStatus(ctx, run.UserID)
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}

	statusUpdated := false
	if p.analyzer.ShouldTriggerUpdate(analysis, status) {
		update := store.StatusUpdate{
			Complete:   store.Bool(analysis.IsComplete),
			Confidence: store.Float64(analysis.CompletionConfidence),
		}
		if analysis.IsComplete && !status.Complete {
			update.CompletedAt = store.Time(time.Now().UTC())
		}
		if err := p.repo.SetStatus(ctx, run.UserID, update); err != nil {
			return "", fmt.Errorf("set status: %w", err)
		}
		statusUpdated = true
	}

	p.emitNotification(ctx, run, samples, analysis, status, genResult)

	return fmt.Sprintf("complete=%v confidence=%.2f status_updated=%v",
		analysis.IsComplete, analysis.CompletionConfidence, statusUpdated), nil
}

// emitNotification picks the event kind from the run outcome and delivers it
// best effort. Notifier errors are logged and swallowed; they never fail the
// stage.
func (p *Pipeline) emitNotification(ctx context.Context, run *Run, samples []biometric.StoredSample,
	analysis biometric.CompletionAnalysis, previous biometric.RegistrationStatus, genResult *embedder.Result) {

	event := notify.Event{
		UserID:    run.UserID,
		Timestamp: time.Now(),
		RunID:     run.ID,
	}

	switch {
	case analysis.IsComplete && !previous.Complete:
		event.Type = notify.EventTypeCompletion
		event.Data = notify.CompletionEvent{
			Confidence:        analysis.CompletionConfidence,
			RegistrationScore: analysis.RegistrationScore,
			SamplesCollected:  analysis.Basic.SamplesCollected,
		}
	case genResult.Quality < p.config.QualityWarningFloor:
		event.Type = notify.EventTypeQualityWarning
		event.Data = notify.QualityWarningEvent{
			Quality:         genResult.Quality,
			AverageQuality:  analysis.Quality.AverageQuality,
			Recommendations: analysis.Recommendations,
		}
	default:
		event.Type = notify.EventTypeProgress
		event.Data = notify.ProgressEvent{
			Report: p.analyzer.Progress(samples, analysis),
		}
	}

	if err := p.notifier.Notify(ctx, event); err != nil {
		p.logger.Warn("Notification delivery failed",
			zap.String("run_id", run.ID),
			zap.String("user_id", run.UserID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}

// ProcessWithRetry retries the whole pipeline with exponential backoff. Only
// full runs are retried; stage side effects are re-derivable from the same
// immutable audio object.
func (p *Pipeline) ProcessWithRetry(ctx context.Context, event Event, maxRetries int) (*Run, error) {
	if maxRetries <= 0 {
		maxRetries = p.config.MaxRetries
	}

	var lastRun *Run
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := backoffDelay(attempt)
			p.logger.Warn("Retrying pipeline run",
				zap.String("object_key", event.ObjectKey),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Duration("backoff", backoff))

			select {
			case <-ctx.Done():
				return lastRun, ctx.Err()
			case <-time.After(backoff):
			}
		}

		run, err := p.Process(ctx, event)
		run.Attempts = attempt + 1
		if err == nil {
			return run, nil
		}
		lastRun, lastErr = run, err
	}

	return lastRun, fmt.Errorf("%w after %d attempts: %v", ErrRetryExhausted, maxRetries+1, lastErr)
}

// backoffDelay returns min(2^attempt, 30) seconds.
func backoffDelay(attempt int) time.Duration {
	seconds := 1 << attempt
	if seconds > 30 || seconds <= 0 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}
