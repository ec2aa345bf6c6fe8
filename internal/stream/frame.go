package stream

import (
	"encoding/json"

	"github.com/patter-chat/patter/internal/models"
)

// FrameType tags a push frame on the wire.
type FrameType string

const (
	FrameInitial       FrameType = "initial"
	FrameConversations FrameType = "conversations"
	FrameMessages      FrameType = "messages"
	FrameHeartbeat     FrameType = "heartbeat"
	FrameError         FrameType = "error"
)

// Frame is one server-push event. Exactly one payload is set, matching the
// frame type; constructors keep empty payloads non-nil so an empty snapshot
// still serializes an explicit empty array.
type Frame struct {
	Type          FrameType
	Conversations []models.ConversationDetails
	Messages      []models.Message
	ErrMessage    string
}

// InitialConversations builds the first frame of a list-scope stream.
func InitialConversations(conversations []models.ConversationDetails) Frame {
	if conversations == nil {
		conversations = []models.ConversationDetails{}
	}
	return Frame{Type: FrameInitial, Conversations: conversations}
}

// InitialMessages builds the first frame of a message-scope stream.
func InitialMessages(messages []models.Message) Frame {
	if messages == nil {
		messages = []models.Message{}
	}
	return Frame{Type: FrameInitial, Messages: messages}
}

// ConversationsDelta builds a full-snapshot refresh frame for list scope.
func ConversationsDelta(conversations []models.ConversationDetails) Frame {
	if conversations == nil {
		conversations = []models.ConversationDetails{}
	}
	return Frame{Type: FrameConversations, Conversations: conversations}
}

// MessagesDelta builds an append frame carrying newly observed messages.
func MessagesDelta(messages []models.Message) Frame {
	return Frame{Type: FrameMessages, Messages: messages}
}

// Heartbeat builds a keepalive frame. It carries no payload and must never
// advance any watermark.
func Heartbeat() Frame {
	return Frame{Type: FrameHeartbeat}
}

// ErrorFrame builds a non-terminal error report.
func ErrorFrame(message string) Frame {
	return Frame{Type: FrameError, ErrMessage: message}
}

// MarshalJSON renders the frame in the wire shape
// {"type": ..., conversations|messages|message}.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case FrameHeartbeat:
		return json.Marshal(struct {
			Type FrameType `json:"type"`
		}{f.Type})
	case FrameError:
		return json.Marshal(struct {
			Type    FrameType `json:"type"`
			Message string    `json:"message"`
		}{f.Type, f.ErrMessage})
	default:
		if f.Conversations != nil {
			return json.Marshal(struct {
				Type          FrameType                    `json:"type"`
				Conversations []models.ConversationDetails `json:"conversations"`
			}{f.Type, f.Conversations})
		}
		return json.Marshal(struct {
			Type     FrameType        `json:"type"`
			Messages []models.Message `json:"messages"`
		}{f.Type, f.Messages})
	}
}
