// Package events provides domain event handling capabilities for communicating
// state changes and important activities across system boundaries in a
// decoupled way.
package events

import "time"

// EventType represents a domain event category, enabling type-safe event
// routing and handling. It allows the system to distinguish between different
// kinds of events like task submission and progress updates.
type EventType string

// DomainEvent is implemented by every event emitted from the domain layer.
type DomainEvent interface {
	// EventType returns the type identifier used for routing.
	EventType() EventType

	// OccurredAt returns when the event was created.
	OccurredAt() time.Time
}

// EventEnvelope encapsulates all event data flowing through the system,
// providing a standardized format for event processing and distribution.
type EventEnvelope struct {
	// Type identifies the category of this event for routing and handling.
	Type EventType

	// Key enables consistent event routing, typically containing a business
	// identifier like a task ID that events can be partitioned by.
	Key string

	// Timestamp records when this event was created.
	Timestamp time.Time

	// Payload contains the actual event data. The concrete type depends on
	// the EventType.
	Payload any

	// Metadata carries transport-level position information.
	Metadata EventMetadata
}

// EventMetadata contains broker position details for a consumed event.
type EventMetadata struct {
	Partition int32
	Offset    int64
}
