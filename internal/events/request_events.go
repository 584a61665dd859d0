package events

import (
	"fleet-system/internal/entities"
	"fleet-system/pkg/constants"
)

const (
	RequestStageChangedEventName = "request.stage.changed"
	RequestMessageSentEventName  = "request.message.sent"
)

// RequestStageChangedEvent fires after a stage transition committed.
type RequestStageChangedEvent struct {
	RequestID   string
	RequestCode string
	RequesterID string
	ProviderID  string
	FromStage   constants.Stage
	ToStage     constants.Stage
	Entry       entities.HistoryEntry
}

func (e RequestStageChangedEvent) Name() string { return RequestStageChangedEventName }

// RequestMessageSentEvent fires after a chat message committed.
type RequestMessageSentEvent struct {
	RequestID   string
	RequestCode string
	RequesterID string
	ProviderID  string
	Message     entities.Message
}

func (e RequestMessageSentEvent) Name() string { return RequestMessageSentEventName }
