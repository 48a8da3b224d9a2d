package notify

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func allEventsConfig() *HubConfig {
	return &HubConfig{
		BroadcastProgress:        true,
		BroadcastQualityWarnings: true,
		BroadcastCompletions:     true,
		BroadcastConnections:     true,
	}
}

func TestShouldBroadcastEvent(t *testing.T) {
	hub := NewHub(&HubConfig{BroadcastCompletions: true}, zap.NewNop())

	if !hub.shouldBroadcastEvent(EventTypeCompletion) {
		t.Error("Completions should broadcast")
	}
	if hub.shouldBroadcastEvent(EventTypeProgress) {
		t.Error("Progress is disabled and should not broadcast")
	}
	if hub.shouldBroadcastEvent(EventType("unknown")) {
		t.Error("Unknown event types should not broadcast")
	}
}

func TestShouldSendToClient(t *testing.T) {
	hub := NewHub(allEventsConfig(), zap.NewNop())

	tests := []struct {
		name     string
		sub      *SubscriptionRequest
		event    Event
		expected bool
	}{
		{
			name:     "no subscription receives everything",
			sub:      nil,
			event:    Event{Type: EventTypeProgress, UserID: "user-1"},
			expected: true,
		},
		{
			name:     "subscribed event type",
			sub:      &SubscriptionRequest{Events: []EventType{EventTypeCompletion}},
			event:    Event{Type: EventTypeCompletion, UserID: "user-1"},
			expected: true,
		},
		{
			name:     "unsubscribed event type",
			sub:      &SubscriptionRequest{Events: []EventType{EventTypeCompletion}},
			event:    Event{Type: EventTypeProgress, UserID: "user-1"},
			expected: false,
		},
		{
			name: "user allow-list match",
			sub: &SubscriptionRequest{
				Events:  []EventType{EventTypeProgress},
				UserIDs: []string{"user-1", "user-2"},
			},
			event:    Event{Type: EventTypeProgress, UserID: "user-2"},
			expected: true,
		},
		{
			name: "user allow-list mismatch",
			sub: &SubscriptionRequest{
				Events:  []EventType{EventTypeProgress},
				UserIDs: []string{"user-1"},
			},
			event:    Event{Type: EventTypeProgress, UserID: "user-9"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{Subscription: tt.sub}
			if got := hub.shouldSendToClient(client, tt.event); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestNotifyFiltersDisabledEvents(t *testing.T) {
	hub := NewHub(&HubConfig{}, zap.NewNop())

	// Disabled event types are accepted and dropped silently.
	if err := hub.Notify(context.Background(), Event{Type: EventTypeProgress}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	select {
	case <-hub.broadcast:
		t.Error("Disabled event should not reach the broadcast channel")
	default:
	}
}

func TestNotifyEnqueuesEnabledEvents(t *testing.T) {
	hub := NewHub(allEventsConfig(), zap.NewNop())

	if err := hub.Notify(context.Background(), Event{Type: EventTypeCompletion, UserID: "user-1"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	select {
	case event := <-hub.broadcast:
		if event.Type != EventTypeCompletion {
			t.Errorf("Expected completion event, got %s", event.Type)
		}
		if event.Timestamp.IsZero() {
			t.Error("Notify should stamp events missing a timestamp")
		}
	default:
		t.Error("Enabled event should be enqueued")
	}
}

func TestParseCredentials(t *testing.T) {
	// "ops:secret" base64-encoded.
	user, pass, ok := parseCredentials("b3BzOnNlY3JldA==")
	if !ok || user != "ops" || pass != "secret" {
		t.Errorf("Unexpected credentials: %q %q %v", user, pass, ok)
	}

	if _, _, ok := parseCredentials("not base64!!"); ok {
		t.Error("Invalid base64 should fail")
	}
}
