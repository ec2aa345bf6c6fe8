package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/patter-chat/patter/internal/models"
)

// fakeGateway is an in-memory Gateway for tests. Set failing to make every
// read return an error.
type fakeGateway struct {
	mu            sync.Mutex
	conversations map[int64]*models.Conversation
	details       map[int64][]models.ConversationDetails // keyed by user id
	messages      map[int64][]models.Message
	participants  map[[2]int64]bool // {userID, conversationID}
	failing       bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		conversations: make(map[int64]*models.Conversation),
		details:       make(map[int64][]models.ConversationDetails),
		messages:      make(map[int64][]models.Message),
		participants:  make(map[[2]int64]bool),
	}
}

var errGatewayDown = errors.New("gateway down")

func (g *fakeGateway) setFailing(failing bool) {
	g.mu.Lock()
	g.failing = failing
	g.mu.Unlock()
}

func (g *fakeGateway) addConversation(id int64, updatedAt time.Time) {
	g.mu.Lock()
	g.conversations[id] = &models.Conversation{ID: id, UpdatedAt: updatedAt}
	g.mu.Unlock()
}

func (g *fakeGateway) addParticipant(userID, conversationID int64) {
	g.mu.Lock()
	g.participants[[2]int64{userID, conversationID}] = true
	g.mu.Unlock()
}

func (g *fakeGateway) addMessage(conversationID int64, m models.Message) {
	g.mu.Lock()
	m.ConversationID = conversationID
	g.messages[conversationID] = append(g.messages[conversationID], m)
	g.mu.Unlock()
}

func (g *fakeGateway) setDetails(userID int64, details []models.ConversationDetails) {
	g.mu.Lock()
	g.details[userID] = details
	g.mu.Unlock()
}

func (g *fakeGateway) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing {
		return nil, errGatewayDown
	}
	return g.conversations[id], nil
}

func (g *fakeGateway) ListConversationsForUser(ctx context.Context, userID int64) ([]models.ConversationDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing {
		return nil, errGatewayDown
	}
	out := make([]models.ConversationDetails, len(g.details[userID]))
	copy(out, g.details[userID])
	return out, nil
}

func (g *fakeGateway) ListActiveParticipants(ctx context.Context, conversationID int64, limit int) ([]models.User, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing {
		return nil, errGatewayDown
	}
	return nil, nil
}

func (g *fakeGateway) LatestMessage(ctx context.Context, conversationID int64) (*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing {
		return nil, errGatewayDown
	}
	msgs := g.messages[conversationID]
	if len(msgs) == 0 {
		return nil, nil
	}
	last := msgs[len(msgs)-1]
	return &last, nil
}

func (g *fakeGateway) ListMessagesAfter(ctx context.Context, conversationID, afterID int64) ([]models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing {
		return nil, errGatewayDown
	}
	var out []models.Message
	for _, m := range g.messages[conversationID] {
		if m.ID > afterID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (g *fakeGateway) IsActiveParticipant(ctx context.Context, userID, conversationID int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing {
		return false, errGatewayDown
	}
	return g.participants[[2]int64{userID, conversationID}], nil
}

// collectFrame waits for the next frame with a timeout.
func collectFrame(t *testing.T, frames <-chan Frame, timeout time.Duration) Frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		if !ok {
			t.Fatalf("frame channel closed")
		}
		return f
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for frame")
	}
	return Frame{}
}
