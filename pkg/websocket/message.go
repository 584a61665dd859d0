package websocket

import "time"

// Envelope wraps every outbound frame with its type so the client knows
// how to render the payload.
type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Frame types pushed by the notification listener.
const (
	TypeStageChanged = "request.stage.changed"
	TypeNewMessage   = "request.message.sent"
)

// StageChangedPayload is the board update for one request card.
// EventID is the history entry id; clients use it to deduplicate
// at-least-once delivery.
type StageChangedPayload struct {
	EventID     string    `json:"eventId"`
	RequestID   string    `json:"requestId"`
	RequestCode string    `json:"requestCode"`
	FromStage   string    `json:"fromStage,omitempty"`
	ToStage     string    `json:"toStage"`
	ActorName   string    `json:"actorName"`
	Comment     string    `json:"comment,omitempty"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NewMessagePayload is the chat notification for one request thread.
type NewMessagePayload struct {
	EventID     string    `json:"eventId"`
	RequestID   string    `json:"requestId"`
	RequestCode string    `json:"requestCode"`
	SenderName  string    `json:"senderName"`
	Text        string    `json:"text"`
	SentAt      time.Time `json:"sentAt"`
}
