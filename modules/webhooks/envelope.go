package webhooks

import (
	"encoding/json"
	"errors"
	"time"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Envelope is the JSON document POSTed to subscribers.
type Envelope struct {
	Event      string `json:"evento"`
	EventName  string `json:"eventoNome"`
	Timestamp  string `json:"timestamp"`
	EntityID   string `json:"entidadeId"`
	EntityType string `json:"entidadeTipo"`
	Data       any    `json:"dados"`
	Test       bool   `json:"test,omitempty"`
}

// NewEnvelope builds an envelope stamped with at in UTC.
func NewEnvelope(event, entityID, entityType string, data any, at time.Time) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{
		Event:      event,
		EventName:  EventName(event),
		Timestamp:  at.UTC().Format(timestampLayout),
		EntityID:   entityID,
		EntityType: entityType,
		Data:       data,
	}
}

// Marshal serialises the envelope. The returned bytes are what gets signed
// and stored.
func (e Envelope) Marshal() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	return b, nil
}
