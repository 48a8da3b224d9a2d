package notify

import (
	"context"
	"time"

	"github.com/raaihank/voice-sentinel/internal/biometric"
)

// EventType represents the type of notification event
type EventType string

const (
	// EventTypeProgress is emitted after each successfully stored sample.
	EventTypeProgress EventType = "registration_progress"
	// EventTypeQualityWarning is emitted when a sample is stored but its
	// quality dragged the enrollment below the completion criteria.
	EventTypeQualityWarning EventType = "quality_warning"
	// EventTypeCompletion is emitted when an enrollment becomes complete.
	EventTypeCompletion EventType = "registration_complete"
	// EventTypeConnection represents client connection events
	EventTypeConnection EventType = "connection"
)

// Event represents a notification event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RunID     string      `json:"run_id,omitempty"`
}

// Notifier delivers enrollment events to interested parties. Delivery is
// best effort; the pipeline logs and swallows notifier errors.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// ProgressEvent reports enrollment progress after a stored sample.
type ProgressEvent struct {
	Report biometric.ProgressReport `json:"progress"`
}

// QualityWarningEvent reports a stored sample whose quality holds the
// enrollment back.
type QualityWarningEvent struct {
	Quality         float64  `json:"quality"`
	AverageQuality  float64  `json:"average_quality"`
	Recommendations []string `json:"recommendations"`
}

// CompletionEvent reports a finished enrollment.
type CompletionEvent struct {
	Confidence        float64 `json:"completion_confidence"`
	RegistrationScore float64 `json:"registration_score"`
	SamplesCollected  int     `json:"samples_collected"`
}

// ConnectionEvent represents client connection events
type ConnectionEvent struct {
	Action   string `json:"action"` // "connected", "disconnected"
	ClientID string `json:"client_id"`
	ClientIP string `json:"client_ip"`
	Message  string `json:"message,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// SubscriptionRequest represents a client subscription request
type SubscriptionRequest struct {
	Events  []EventType `json:"events"`
	UserIDs []string    `json:"user_ids,omitempty"`
}

// Client represents a connected notification consumer
type Client struct {
	ID           string
	Conn         interface{} // *websocket.Conn
	Send         chan Event
	Subscription *SubscriptionRequest
	ConnectedAt  time.Time
	LastPing     time.Time
	IP           string
	UserAgent    string
}
