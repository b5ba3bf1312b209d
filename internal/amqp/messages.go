package amqp

import (
	"encoding/json"
	"time"

	"roiboard/internal/core"
)

// Event names for the request lifecycle. The notifier fans these out to
// whatever channel the deployment wires up (currently structured logs).
const (
	EventRequestCreated  = "request.created"
	EventRequestDecided  = "request.decided"
	EventRequestConsumed = "request.consumed"
)

// RequestEventMessage is the lightweight notification published on every
// edit-request transition. Consumers refetch the full request from the
// ledger if they need more than the envelope.
type RequestEventMessage struct {
	Event       string    `json:"event"`
	RequestID   string    `json:"requestId"`
	EntryID     string    `json:"entryId"`
	FieldPath   string    `json:"fieldPath"`
	RequestedBy string    `json:"requestedBy"`
	Status      string    `json:"status"`
	Consumed    bool      `json:"consumed"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRequestEventMessage builds the envelope for a request in its current
// state.
func NewRequestEventMessage(event string, r core.EditRequest) *RequestEventMessage {
	return &RequestEventMessage{
		Event:       event,
		RequestID:   r.ID,
		EntryID:     r.EntryID,
		FieldPath:   r.FieldPath,
		RequestedBy: r.RequestedBy,
		Status:      string(r.Status),
		Consumed:    r.Consumed,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes.
func (m *RequestEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RequestEventMessageFromJSON creates a message from JSON bytes.
func RequestEventMessageFromJSON(data []byte) (*RequestEventMessage, error) {
	var msg RequestEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
