// Package pubsub fans out log entries and generation progress to any number of
// listeners without blocking the publisher.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened to the payload.
type EventType string

const (
	// LoggedEvent carries a formatted log line.
	LoggedEvent EventType = "logged"
	// ProgressEvent carries a progress update from a running generation.
	ProgressEvent EventType = "progress"
	// FinishedEvent marks the end of a progress scope.
	FinishedEvent EventType = "finished"
)

// Event is a published payload stamped with its type and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher accepts events for fan-out.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
