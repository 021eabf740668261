package notifications

import "encoding/json"

// Event types delivered over websockets.
const (
	EventMatchCreated = "match_created"
	EventMatchRemoved = "match_removed"
	EventChatMessage  = "chat_message"
	EventHostMessage  = "host_message"
	EventHostOptIn    = "host_opt_in"
	EventHostAnswer   = "host_answer"
	EventHostStatus   = "host_status"
	EventTyping       = "typing"
	// EventMessagesDropped tells a client its buffer overflowed and it should re-fetch.
	EventMessagesDropped = "messages_dropped"
)

// Event is the envelope every realtime message uses. Consumers treat the
// events of one room as an ordered, append-only stream.
type Event struct {
	Type    string      `json:"type"`
	RoomID  uint        `json:"room_id,omitempty"`
	Payload interface{} `json:"payload"`
}

// Encode serializes the event for the wire.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

var droppedNotice = []byte(`{"type":"` + EventMessagesDropped + `","payload":{"reason":"buffer_full"}}`)
