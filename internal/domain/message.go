// Package domain contains the shared data types for chat rooms, the round
// game, and matchmaking.
package domain

import "time"

// SystemUserID and SystemUserName identify messages authored by the room itself.
const (
	SystemUserID   = "system"
	SystemUserName = "System"
)

// Identity is who a connection claims to be.
type Identity struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// ChatMessage is one entry in a room's message log. It is never mutated after
// creation; ordering is the arrival order at the room.
type ChatMessage struct {
	SenderID     string `json:"userId"`
	SenderName   string `json:"userName"`
	Body         string `json:"message"`
	SentAtMillis int64  `json:"timestamp"`
	IsSystem     bool   `json:"isSystemMessage,omitempty"`
}

// NewChatMessage stamps a user message with the server time.
func NewChatMessage(from Identity, body string, now time.Time) ChatMessage {
	return ChatMessage{
		SenderID:     from.UserID,
		SenderName:   from.UserName,
		Body:         body,
		SentAtMillis: now.UnixMilli(),
	}
}

// NewSystemMessage builds a message authored by the room.
func NewSystemMessage(body string, now time.Time) ChatMessage {
	return ChatMessage{
		SenderID:     SystemUserID,
		SenderName:   SystemUserName,
		Body:         body,
		SentAtMillis: now.UnixMilli(),
		IsSystem:     true,
	}
}
