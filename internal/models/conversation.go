package models

import "time"

// Conversation represents a multi-party conversation. UpdatedAt is the
// freshness signal polled by streams and must be bumped on every message.
type Conversation struct {
	ID        int64     `json:"id"`
	Name      *string   `json:"name"`
	IsGroup   bool      `json:"is_group"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationDetails is a conversation enriched with the data the
// conversation list needs: active participants (capped at 10) and the most
// recent non-deleted message.
type ConversationDetails struct {
	Conversation
	ParticipantCount int      `json:"participant_count"`
	Participants     []User   `json:"participants"`
	LastMessage      *Message `json:"last_message,omitempty"`
}
