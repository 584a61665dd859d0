package entities

import (
	"time"

	"fleet-system/pkg/constants"
)

// Message is one entry in a request's chat thread. IsAutomated marks
// system/assistant-generated messages for audit purposes only; it never
// grants the sender any privilege.
type Message struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"senderId"`
	SenderName  string          `json:"senderName"`
	SenderRole  constants.Role  `json:"senderRole"`
	Text        string          `json:"text"`
	Timestamp   time.Time       `json:"timestamp"`
	IsAutomated bool            `json:"isAutomated"`
}
