package listeners

import (
	"context"

	"go.uber.org/zap"

	"fleet-system/internal/events"
	"fleet-system/pkg/eventbus"
	"fleet-system/pkg/websocket"
)

// NotificationListener turns committed workflow events into websocket
// pushes for the request's participants. It runs off the event bus,
// outside the write path: a failed push never fails the transition.
type NotificationListener struct {
	hub    *websocket.Hub
	logger *zap.Logger
}

func NewNotificationListener(hub *websocket.Hub, logger *zap.Logger) *NotificationListener {
	return &NotificationListener{hub: hub, logger: logger}
}

// Subscribe registers the listener on the bus.
func (l *NotificationListener) Subscribe(bus *eventbus.Bus) {
	bus.Subscribe(events.RequestStageChangedEventName, l.onStageChanged)
	bus.Subscribe(events.RequestMessageSentEventName, l.onMessageSent)
}

func (l *NotificationListener) onStageChanged(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.RequestStageChangedEvent)
	if !ok {
		return nil
	}

	payload := websocket.StageChangedPayload{
		EventID:     e.Entry.ID,
		RequestID:   e.RequestID,
		RequestCode: e.RequestCode,
		ToStage:     string(e.ToStage),
		FromStage:   string(e.FromStage),
		ActorName:   e.Entry.ActorName,
		Comment:     e.Entry.Comment,
		OccurredAt:  e.Entry.Timestamp,
	}

	for _, actorID := range recipients(e.RequesterID, e.ProviderID, e.Entry.ActorID) {
		if err := l.hub.SendToActor(actorID, payload, websocket.TypeStageChanged); err != nil {
			l.logger.Warn("failed to push stage change",
				zap.String("requestId", e.RequestID),
				zap.String("actorId", actorID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (l *NotificationListener) onMessageSent(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.RequestMessageSentEvent)
	if !ok {
		return nil
	}

	payload := websocket.NewMessagePayload{
		EventID:     e.Message.ID,
		RequestID:   e.RequestID,
		RequestCode: e.RequestCode,
		SenderName:  e.Message.SenderName,
		Text:        e.Message.Text,
		SentAt:      e.Message.Timestamp,
	}

	for _, actorID := range recipients(e.RequesterID, e.ProviderID, e.Message.SenderID) {
		if err := l.hub.SendToActor(actorID, payload, websocket.TypeNewMessage); err != nil {
			l.logger.Warn("failed to push chat notification",
				zap.String("requestId", e.RequestID),
				zap.String("actorId", actorID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// recipients is the participant set minus the actor who triggered the
// event.
func recipients(requesterID, providerID, actorID string) []string {
	out := make([]string, 0, 2)
	if requesterID != "" && requesterID != actorID {
		out = append(out, requesterID)
	}
	if providerID != "" && providerID != actorID && providerID != requesterID {
		out = append(out, providerID)
	}
	return out
}
