package stream

import (
	"context"
	"time"

	"github.com/patter-chat/patter/internal/models"
)

// maxListedParticipants caps how many participants the conversation list
// attaches per conversation.
const maxListedParticipants = 10

// Gateway is the authorized read surface the change detector polls. The full
// store.DataStore satisfies it; tests supply fakes.
type Gateway interface {
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int64) ([]models.ConversationDetails, error)
	ListActiveParticipants(ctx context.Context, conversationID int64, limit int) ([]models.User, error)
	LatestMessage(ctx context.Context, conversationID int64) (*models.Message, error)
	ListMessagesAfter(ctx context.Context, conversationID, afterID int64) ([]models.Message, error)
	IsActiveParticipant(ctx context.Context, userID, conversationID int64) (bool, error)
}

// ListWatermark captures the freshness of the last conversation-list
// snapshot a session delivered: the newest updated_at in the authorized set
// and the size of that set. A change in either means the list must be
// re-sent.
type ListWatermark struct {
	UpdatedAt time.Time
	Count     int
}

// Equal compares watermarks. updated_at goes through time.Time.Equal so
// wall-clock representation differences don't register as changes.
func (w ListWatermark) Equal(other ListWatermark) bool {
	return w.Count == other.Count && w.UpdatedAt.Equal(other.UpdatedAt)
}

// Detector computes, for a scope and a watermark, exactly the entities that
// changed since that watermark.
type Detector struct {
	gw Gateway
}

// NewDetector creates a detector over the given gateway.
func NewDetector(gw Gateway) *Detector {
	return &Detector{gw: gw}
}

// ConversationDelta recomputes the full authorized conversation set for the
// user with participants and last message attached. There is no diffing: the
// whole snapshot is returned each time, and changed reports whether the new
// watermark differs from the previous one. Stale caches are never served.
func (d *Detector) ConversationDelta(ctx context.Context, userID int64, mark ListWatermark) ([]models.ConversationDetails, ListWatermark, bool, error) {
	conversations, err := d.gw.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, mark, false, &FetchError{Op: "conversations", Err: err}
	}

	for i := range conversations {
		participants, err := d.gw.ListActiveParticipants(ctx, conversations[i].ID, maxListedParticipants)
		if err != nil {
			return nil, mark, false, &FetchError{Op: "participants", Err: err}
		}
		conversations[i].Participants = participants

		last, err := d.gw.LatestMessage(ctx, conversations[i].ID)
		if err != nil {
			return nil, mark, false, &FetchError{Op: "latest message", Err: err}
		}
		conversations[i].LastMessage = last
	}

	next := ListWatermark{Count: len(conversations)}
	for _, c := range conversations {
		if c.UpdatedAt.After(next.UpdatedAt) {
			next.UpdatedAt = c.UpdatedAt
		}
	}

	return conversations, next, !next.Equal(mark), nil
}

// MessageDelta returns the non-deleted messages of the conversation with id
// greater than afterID, oldest first, and the advanced watermark. With no
// new rows the watermark is returned unchanged.
func (d *Detector) MessageDelta(ctx context.Context, conversationID, afterID int64) ([]models.Message, int64, error) {
	messages, err := d.gw.ListMessagesAfter(ctx, conversationID, afterID)
	if err != nil {
		return nil, afterID, &FetchError{Op: "messages", Err: err}
	}

	mark := afterID
	for _, m := range messages {
		if m.ID > mark {
			mark = m.ID
		}
	}
	return messages, mark, nil
}
