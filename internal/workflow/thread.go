package workflow

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"fleet-system/internal/entities"
	"fleet-system/pkg/apperrors"
	"fleet-system/pkg/constants"
)

// Side identifies one end of the message thread for unread accounting.
type Side string

const (
	SideDispatch  Side = "dispatch"
	SideRequester Side = "requester"
)

// MessageThread is the chat attached to one request. The unread fields
// are counters, not derived counts: each send increments the opposite
// side, markRead resets a side to zero, and the counters never go
// negative. At the store layer the increments are applied atomically so
// concurrent sends from the same side are never lost.
type MessageThread struct {
	messages           []entities.Message
	unreadForDispatch  int
	unreadForRequester int
	clock              func() time.Time
}

func NewMessageThread(messages []entities.Message, unreadForDispatch, unreadForRequester int) *MessageThread {
	if unreadForDispatch < 0 {
		unreadForDispatch = 0
	}
	if unreadForRequester < 0 {
		unreadForRequester = 0
	}
	return &MessageThread{
		messages:           messages,
		unreadForDispatch:  unreadForDispatch,
		unreadForRequester: unreadForRequester,
		clock:              time.Now,
	}
}

// WithClock overrides the thread's time source. Used in tests.
func (t *MessageThread) WithClock(clock func() time.Time) *MessageThread {
	t.clock = clock
	return t
}

// Send appends a message and returns it together with the side whose
// unread counter was incremented. Staff senders (dispatcher, provider,
// auditor) count against the requester; everyone else counts against
// dispatch. The isAutomated flag is provenance only and never changes
// the accounting.
func (t *MessageThread) Send(actor entities.Actor, text string, isAutomated bool) (entities.Message, Side, error) {
	if strings.TrimSpace(text) == "" {
		return entities.Message{}, "", apperrors.NewInvalidInputError("message text must not be empty")
	}

	msg := entities.Message{
		ID:          uuid.NewString(),
		SenderID:    actor.ID,
		SenderName:  actor.Name,
		SenderRole:  actor.Role,
		Text:        text,
		Timestamp:   t.clock().UTC(),
		IsAutomated: isAutomated,
	}
	t.messages = append(t.messages, msg)

	if constants.IsStaffRole(actor.Role) {
		t.unreadForRequester++
		return msg, SideRequester, nil
	}
	t.unreadForDispatch++
	return msg, SideDispatch, nil
}

// MarkRead resets one side's counter to zero. An explicit reset rather
// than per-message decrements keeps the counter correct under
// out-of-order delivery.
func (t *MessageThread) MarkRead(side Side) {
	switch side {
	case SideDispatch:
		t.unreadForDispatch = 0
	case SideRequester:
		t.unreadForRequester = 0
	}
}

// Unread returns both counters.
func (t *MessageThread) Unread() (forDispatch, forRequester int) {
	return t.unreadForDispatch, t.unreadForRequester
}

// Messages returns the thread in order of arrival.
func (t *MessageThread) Messages() []entities.Message {
	out := make([]entities.Message, len(t.messages))
	copy(out, t.messages)
	return out
}
