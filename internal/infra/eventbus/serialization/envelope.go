package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/ahrav/reviewhound/internal/domain/events"
)

// universalEnvelope is the wire frame around every serialized event. The
// event type travels alongside the payload so consumers can pick the right
// deserializer without out-of-band knowledge.
type universalEnvelope struct {
	Type    events.EventType `json:"type"`
	Payload json.RawMessage  `json:"payload"`
}

// SerializeEventEnvelope serializes a payload and wraps it with its event
// type for transport.
func SerializeEventEnvelope(eventType events.EventType, payload any) ([]byte, error) {
	payloadBytes, err := SerializePayload(eventType, payload)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(universalEnvelope{Type: eventType, Payload: payloadBytes})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope for event %s: %w", eventType, err)
	}
	return data, nil
}

// UnmarshalUniversalEnvelope splits a wire frame into its event type and raw
// payload bytes.
func UnmarshalUniversalEnvelope(data []byte) (events.EventType, []byte, error) {
	var env universalEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("envelope missing event type")
	}
	return env.Type, env.Payload, nil
}
