// Package serialization provides a registry-based system for serializing and
// deserializing domain events in the event bus infrastructure. It acts as a
// translation layer between domain objects and their wire format.
//
// The package implements a registry pattern where serialization and
// deserialization functions are registered per event type, keeping the domain
// layer clean of wire-format concerns and letting new event types be added
// without modifying existing code.
package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/ahrav/reviewhound/internal/domain/events"
	"github.com/ahrav/reviewhound/internal/domain/review"
)

// SerializeFunc converts a domain object into a serialized byte slice.
type SerializeFunc func(payload any) ([]byte, error)

// DeserializeFunc converts a serialized byte slice back into a domain object.
type DeserializeFunc func(data []byte) (any, error)

// Global registries map event types to their serialization functions.
// This allows for dynamic dispatch based on event type at runtime.
var (
	serializerRegistry   = map[events.EventType]SerializeFunc{}
	deserializerRegistry = map[events.EventType]DeserializeFunc{}
)

// RegisterSerializeFunc registers a serialization function for a given event type.
func RegisterSerializeFunc(eventType events.EventType, fn SerializeFunc) {
	serializerRegistry[eventType] = fn
}

// RegisterDeserializeFunc registers a deserialization function for a given event type.
func RegisterDeserializeFunc(eventType events.EventType, fn DeserializeFunc) {
	deserializerRegistry[eventType] = fn
}

// SerializePayload converts a domain object into bytes using the registered
// serializer for its event type.
func SerializePayload(eventType events.EventType, payload any) ([]byte, error) {
	fn, ok := serializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no serializer registered for eventType=%s", eventType)
	}
	return fn(payload)
}

// DeserializePayload converts bytes back into a domain object using the
// registered deserializer for its event type.
func DeserializePayload(eventType events.EventType, data []byte) (any, error) {
	fn, ok := deserializerRegistry[eventType]
	if !ok {
		return nil, fmt.Errorf("no deserializer registered for eventType=%s", eventType)
	}
	return fn(data)
}

func init() { RegisterEventSerializers() }

// RegisterEventSerializers registers handlers for all supported event types.
// It runs during package initialization, before any event processing occurs.
func RegisterEventSerializers() {
	registerJSON[review.TaskSubmittedEvent](review.EventTypeTaskSubmitted)
	registerJSON[review.TaskProgressedEvent](review.EventTypeTaskProgressed)
	registerJSON[review.TaskCompletedEvent](review.EventTypeTaskCompleted)
	registerJSON[review.TaskFailedEvent](review.EventTypeTaskFailed)
}

// registerJSON wires JSON round-tripping for one event type. Deserialized
// payloads are returned by value so consumers can type-switch on the concrete
// event type.
func registerJSON[T any](eventType events.EventType) {
	RegisterSerializeFunc(eventType, func(payload any) ([]byte, error) {
		evt, ok := payload.(T)
		if !ok {
			return nil, fmt.Errorf("serialize %s: payload is %T", eventType, payload)
		}
		return json.Marshal(evt)
	})
	RegisterDeserializeFunc(eventType, func(data []byte) (any, error) {
		var evt T
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		return evt, nil
	})
}
