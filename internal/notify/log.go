package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes enrollment events to the structured log. Used when no
// hub is configured and as the delivery of record in single-node deployments.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	n.logger.Info("Enrollment event",
		zap.String("event_type", string(event.Type)),
		zap.String("user_id", event.UserID),
		zap.String("run_id", event.RunID),
		zap.Any("data", event.Data))
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
