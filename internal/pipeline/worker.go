package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// EventSource delivers upload events to the worker. Next blocks until an
// event is available or the context is done.
type EventSource interface {
	Next(ctx context.Context) (Event, error)
}

// Worker drains an EventSource into the pipeline with a fixed number of
// concurrent processors. Runs for different events are independent; the
// repository's atomic append protects same-user races.
type Worker struct {
	pipeline    *Pipeline
	source      EventSource
	concurrency int
	logger      *zap.Logger
}

// NewWorker creates an event worker. concurrency below 1 is treated as 1.
func NewWorker(p *Pipeline, source EventSource, concurrency int, logger *zap.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		pipeline:    p,
		source:      source,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run consumes events until the context is cancelled. It returns after all
// in-flight runs finish.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("Pipeline worker started",
		zap.Int("concurrency", w.concurrency))

	events := make(chan Event)
	var wg sync.WaitGroup

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for event := range events {
				if _, err := w.pipeline.ProcessWithRetry(ctx, event, 0); err != nil {
					w.logger.Error("Event processing exhausted retries",
						zap.String("object_key", event.ObjectKey),
						zap.Error(err))
				}
			}
		}()
	}

	var recvErr error
recv:
	for {
		event, err := w.source.Next(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				recvErr = err
				w.logger.Error("Event source failed", zap.Error(err))
			}
			break
		}
		select {
		case events <- event:
		case <-ctx.Done():
			break recv
		}
	}

	close(events)
	wg.Wait()
	w.logger.Info("Pipeline worker stopped")
	return recvErr
}
