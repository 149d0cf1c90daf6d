package events

import (
	"time"

	"github.com/shinyyama/musclecat-chat/internal/model"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventMessageCreated  EventType = "message.created"
	EventMessageDeleted  EventType = "message.deleted"
	EventReactionToggled EventType = "message.reaction_toggled"
	EventBotStatus       EventType = "bot.status_changed"
)

// Actor is whoever caused the event.
type Actor struct {
	UID  string     `json:"uid"`
	Role model.Role `json:"role"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// MessageCreatedPayload carries the committed message.
type MessageCreatedPayload struct {
	Message model.Message `json:"message"`
}

type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
}

type ReactionToggledPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
	Active    bool   `json:"active"`
}

type BotStatusPayload struct {
	Active bool   `json:"active"`
	Reason string `json:"reason"`
}
