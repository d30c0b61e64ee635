package inventory

import "encoding/json"

// Envelope types understood by the hub and the mirror.
const (
	MessageCurrentState = "current_state"
	MessageStatusUpdate = "status_update"
	MessageError        = "error"
)

// Message is the envelope of every WebSocket frame in both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is sent to the originator of a rejected update.
type ErrorPayload struct {
	Message        string          `json:"message"`
	OriginalUpdate json.RawMessage `json:"originalUpdate"`
}

// NewMessage encodes payload into an envelope of the given type and returns
// the frame bytes.
func NewMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msgType, Payload: raw})
}
