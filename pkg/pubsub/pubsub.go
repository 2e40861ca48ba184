// Package pubsub fans session updates out to browser subscribers.
package pubsub

import (
	"context"
	"encoding/json"
)

// Topics published by the session controller.
const (
	TopicGraph        = "graph"         // full snapshot replacements
	TopicSessionLog   = "session_log"   // one event per log entry
	TopicSessionState = "session_state" // stream session record changes
	TopicCandidates   = "candidates"    // resolved candidates per field
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "graph", "session_log")
	Type    string          `json:"type"`    // Event type (e.g., "snapshot", "entry", "open")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data any) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// KnownTopic reports whether topic is one of the session topics.
func KnownTopic(topic string) bool {
	switch topic {
	case TopicGraph, TopicSessionLog, TopicSessionState, TopicCandidates:
		return true
	}
	return false
}
