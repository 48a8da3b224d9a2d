package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/audiostore"
	"github.com/raaihank/voice-sentinel/internal/biometric"
	"github.com/raaihank/voice-sentinel/internal/embedder"
	"github.com/raaihank/voice-sentinel/internal/notify"
	"github.com/raaihank/voice-sentinel/internal/store"
	"github.com/raaihank/voice-sentinel/internal/validate"
)

type fakeAudioStore struct {
	objects  map[string][]byte
	failWith error
}

func (f *fakeAudioStore) Fetch(_ context.Context, key string) ([]byte, audiostore.Metadata, error) {
	if f.failWith != nil {
		return nil, audiostore.Metadata{}, f.failWith
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, audiostore.Metadata{}, audiostore.ErrNotFound
	}
	return data, audiostore.Metadata{Key: key, Size: int64(len(data)), ContentType: "audio/wav"}, nil
}

func (f *fakeAudioStore) Exists(_ context.Context, key string) (bool, error) {
	_, ok := f.objects[key]
	return ok, nil
}

type fakeValidator struct {
	reject bool
}

func (f *fakeValidator) Validate(data []byte, fileName string) validate.Result {
	if f.reject {
		return validate.Result{Issues: []string{"unsupported format"}}
	}
	return validate.Result{IsValid: true, Passed: []string{"size", "format"}}
}

type fakeGenerator struct {
	quality float64
	err     error
}

func (f *fakeGenerator) Generate(_ context.Context, audio []byte, _ string) (*embedder.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	// Derive a stable embedding from the payload so repeat runs match.
	embedding := make(biometric.Embedding, 8)
	for i, b := range audio {
		embedding[i%8] += float32(b) / 255.0
	}
	return &embedder.Result{Embedding: embedding, Quality: f.quality}, nil
}

func (f *fakeGenerator) Close() error { return nil }

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, event notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) last() (notify.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return notify.Event{}, false
	}
	return r.events[len(r.events)-1], true
}

type testHarness struct {
	pipeline *Pipeline
	audio    *fakeAudioStore
	repo     *store.MemoryStore
	notifier *recordingNotifier
}

func newHarness(t *testing.T, quality float64) *testHarness {
	t.Helper()

	audio := &fakeAudioStore{objects: map[string][]byte{
		"audio-uploads/user-1/sample.wav": []byte("fake wav payload for tests"),
	}}
	repo := store.NewMemoryStore()
	notifier := &recordingNotifier{}
	analyzer := biometric.NewAnalyzer(biometric.DefaultAnalyzerConfig(), zap.NewNop())

	p := New(DefaultConfig(), audio, &fakeValidator{}, &fakeGenerator{quality: quality},
		repo, LocalAnalyzer{analyzer}, notifier, zap.NewNop())

	return &testHarness{pipeline: p, audio: audio, repo: repo, notifier: notifier}
}

func TestProcessSuccess(t *testing.T) {
	h := newHarness(t, 0.9)

	run, err := h.pipeline.Process(context.Background(), Event{ObjectKey: "audio-uploads/user-1/sample.wav"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !run.Success {
		t.Fatal("Expected successful run")
	}
	if run.UserID != "user-1" {
		t.Errorf("Expected user-1, got %q", run.UserID)
	}
	if len(run.Stages) != 5 {
		t.Fatalf("Expected 5 stages, got %d", len(run.Stages))
	}
	for _, stage := range run.Stages {
		if stage.Status != StageSuccess {
			t.Errorf("Stage %s should be success, got %s", stage.Name, stage.Status)
		}
	}
	if run.SampleCount != 1 {
		t.Errorf("Expected sample count 1, got %d", run.SampleCount)
	}
	if run.Analysis == nil {
		t.Fatal("Expected completion analysis on the run")
	}

	samples, _ := h.repo.GetSamples(context.Background(), "user-1")
	if len(samples) != 1 {
		t.Errorf("Expected 1 persisted sample, got %d", len(samples))
	}

	event, ok := h.notifier.last()
	if !ok {
		t.Fatal("Expected a notification")
	}
	if event.Type != notify.EventTypeProgress {
		t.Errorf("Expected progress event, got %s", event.Type)
	}
}

func TestProcessFetchFailureAbortsRemainingStages(t *testing.T) {
	h := newHarness(t, 0.9)
	h.audio.failWith = fmt.Errorf("bucket unavailable")

	run, err := h.pipeline.Process(context.Background(), Event{ObjectKey: "audio-uploads/user-1/sample.wav"})
	if !errors.Is(err, ErrStageFailure) {
		t.Fatalf("Expected ErrStageFailure, got %v", err)
	}
	if run.Success {
		t.Fatal("Run must be reported failed")
	}
	if run.FailedStage != StageFetchAndValidate {
		t.Errorf("Expected failed stage %s, got %s", StageFetchAndValidate, run.FailedStage)
	}

	stage := run.Stage(StageFetchAndValidate)
	if stage == nil || stage.Status != StageFailed {
		t.Error("FetchAndValidate should be recorded as failed")
	}

	// Stages 3-5 must be absent, not recorded as skipped.
	for _, name := range []StageName{StageGenerateEmbedding, StagePersistSample, StageReevaluateCompletion} {
		if run.Stage(name) != nil {
			t.Errorf("Stage %s should not have executed", name)
		}
	}

	samples, _ := h.repo.GetSamples(context.Background(), "user-1")
	if len(samples) != 0 {
		t.Error("No sample should be persisted on a failed run")
	}
}

func TestProcessValidationFailure(t *testing.T) {
	h := newHarness(t, 0.9)
	h.pipeline.validator = &fakeValidator{reject: true}

	run, err := h.pipeline.Process(context.Background(), Event{ObjectKey: "audio-uploads/user-1/sample.wav"})
	if err == nil {
		t.Fatal("Expected error for rejected audio")
	}
	if run.FailedStage != StageFetchAndValidate {
		t.Errorf("Validation failure belongs to FetchAndValidate, got %s", run.FailedStage)
	}
}

func TestProcessInvalidObjectKey(t *testing.T) {
	h := newHarness(t, 0.9)

	run, err := h.pipeline.Process(context.Background(), Event{ObjectKey: "garbage"})
	if err == nil {
		t.Fatal("Expected error for malformed key")
	}
	if run.FailedStage != StageExtractIdentity {
		t.Errorf("Expected ExtractIdentity failure, got %s", run.FailedStage)
	}
	if len(run.Stages) != 1 {
		t.Errorf("Only the first stage should have run, got %d", len(run.Stages))
	}
}

func TestProcessEmitsCompletionEvent(t *testing.T) {
	h := newHarness(t, 0.9)
	ctx := context.Background()

	// Default completion criteria need three quality samples.
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("audio-uploads/user-1/take-%d.wav", i)
		h.audio.objects[key] = []byte(fmt.Sprintf("payload number %d with some body", i))
		if _, err := h.pipeline.Process(ctx, Event{ObjectKey: key}); err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
	}

	event, ok := h.notifier.last()
	if !ok {
		t.Fatal("Expected notifications")
	}
	if event.Type != notify.EventTypeCompletion {
		t.Errorf("Expected completion event after third sample, got %s", event.Type)
	}

	status, _ := h.repo.GetStatus(ctx, "user-1")
	if !status.Complete {
		t.Error("Registration status should be persisted as complete")
	}
	if status.Confidence < 0.85 {
		t.Errorf("Expected persisted confidence >= 0.85, got %g", status.Confidence)
	}
}

func TestProcessEmitsQualityWarning(t *testing.T) {
	h := newHarness(t, 0.55) // above generator floor, below warning floor

	if _, err := h.pipeline.Process(context.Background(), Event{ObjectKey: "audio-uploads/user-1/sample.wav"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	event, ok := h.notifier.last()
	if !ok {
		t.Fatal("Expected a notification")
	}
	if event.Type != notify.EventTypeQualityWarning {
		t.Errorf("Expected quality warning, got %s", event.Type)
	}
}

func TestProcessNotifierFailureDoesNotFailRun(t *testing.T) {
	h := newHarness(t, 0.9)
	h.notifier.err = fmt.Errorf("hub offline")

	run, err := h.pipeline.Process(context.Background(), Event{ObjectKey: "audio-uploads/user-1/sample.wav"})
	if err != nil {
		t.Fatalf("Notifier errors must be swallowed: %v", err)
	}
	if !run.Success {
		t.Error("Run should succeed despite notification failure")
	}
}

func TestProcessWithRetryExhausted(t *testing.T) {
	h := newHarness(t, 0.9)
	h.audio.failWith = fmt.Errorf("bucket unavailable")

	start := time.Now()
	run, err := h.pipeline.ProcessWithRetry(context.Background(), Event{ObjectKey: "audio-uploads/user-1/sample.wav"}, 1)
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("Expected ErrRetryExhausted, got %v", err)
	}
	if run == nil || run.Success {
		t.Fatal("Expected failed run from exhausted retries")
	}
	// One retry with 2^1 seconds of backoff.
	if elapsed := time.Since(start); elapsed < 2*time.Second {
		t.Errorf("Expected exponential backoff before retry, elapsed %v", elapsed)
	}
}

func TestProcessWithRetryRecovers(t *testing.T) {
	h := newHarness(t, 0.9)
	h.audio.failWith = fmt.Errorf("transient error")

	go func() {
		time.Sleep(500 * time.Millisecond)
		h.audio.failWith = nil
	}()

	run, err := h.pipeline.ProcessWithRetry(context.Background(), Event{ObjectKey: "audio-uploads/user-1/sample.wav"}, 3)
	if err != nil {
		t.Fatalf("Expected recovery on retry: %v", err)
	}
	if !run.Success {
		t.Fatal("Expected successful run after retry")
	}
	if run.Attempts < 2 {
		t.Errorf("Expected at least 2 attempts, got %d", run.Attempts)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d): expected %v, got %v", tt.attempt, tt.want, got)
		}
	}
}

type channelSource struct {
	events chan Event
}

func (c *channelSource) Next(ctx context.Context) (Event, error) {
	select {
	case event, ok := <-c.events:
		if !ok {
			return Event{}, context.Canceled
		}
		return event, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func TestWorkerDrainsSource(t *testing.T) {
	h := newHarness(t, 0.9)
	source := &channelSource{events: make(chan Event, 3)}

	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("audio-uploads/user-1/take-%d.wav", i)
		h.audio.objects[key] = []byte(fmt.Sprintf("payload number %d with some body", i))
		source.events <- Event{ObjectKey: key}
	}
	close(source.events)

	worker := NewWorker(h.pipeline, source, 2, zap.NewNop())
	if err := worker.Run(context.Background()); err != nil {
		t.Fatalf("Unexpected worker error: %v", err)
	}

	samples, _ := h.repo.GetSamples(context.Background(), "user-1")
	if len(samples) != 3 {
		t.Errorf("Expected 3 processed samples, got %d", len(samples))
	}
}
