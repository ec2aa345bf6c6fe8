package models

import "time"

// Message represents a chat message. IDs are assigned by the store and are
// strictly increasing within a conversation, which is what lets a stream
// watermark on "max delivered id" define newness.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Content        string    `json:"content"`
	SentAt         time.Time `json:"sent_at"`
	IsDeleted      bool      `json:"-"`

	// Denormalized sender fields attached on reads.
	SenderName        string  `json:"username,omitempty"`
	SenderDisplayName *string `json:"display_name,omitempty"`
	SenderAvatarURL   *string `json:"avatar_url,omitempty"`
}
