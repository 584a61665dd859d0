package entities

import (
	"time"

	"fleet-system/pkg/constants"
)

// HistoryEntry is one immutable record in a request's audit trail.
// FromStage is nil only on the creation entry. Entries are never edited
// or deleted; replaying them in timestamp order must reproduce the
// aggregate's current stage.
type HistoryEntry struct {
	ID        string           `json:"id"`
	Timestamp time.Time        `json:"timestamp"`
	ActorID   string           `json:"actorId"`
	ActorName string           `json:"actorName"`
	FromStage *constants.Stage `json:"fromStage,omitempty"`
	ToStage   constants.Stage  `json:"toStage"`
	Comment   string           `json:"comment"`
}
