package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/patter-chat/patter/internal/models"
)

const waitFor = 2 * time.Second

func testMultiplexer(gw Gateway) *Multiplexer {
	return NewMultiplexer(gw, zerolog.Nop(), Options{
		HeartbeatInterval:        time.Hour,
		MessagePollInterval:      10 * time.Millisecond,
		ConversationPollInterval: 10 * time.Millisecond,
	})
}

func TestOpenStreamRequiresIdentity(t *testing.T) {
	m := testMultiplexer(newFakeGateway())

	_, err := m.OpenStream(context.Background(), 0, ConversationList())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOpenStreamUnknownConversation(t *testing.T) {
	m := testMultiplexer(newFakeGateway())

	_, err := m.OpenStream(context.Background(), 1, ConversationMessages(42))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenStreamRequiresActiveParticipant(t *testing.T) {
	gw := newFakeGateway()
	gw.addConversation(1, time.Now())
	m := testMultiplexer(gw)

	_, err := m.OpenStream(context.Background(), 7, ConversationMessages(1))
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if m.Registry().Len() != 0 {
		t.Errorf("rejected open left a session registered")
	}
}

func TestMessageStreamInitialThenDelta(t *testing.T) {
	gw := newFakeGateway()
	gw.addConversation(1, time.Now())
	gw.addParticipant(7, 1)
	gw.addMessage(1, models.Message{ID: 1, Content: "hello"})
	gw.addMessage(1, models.Message{ID: 2, Content: "there"})

	m := testMultiplexer(gw)
	sess, err := m.OpenStream(context.Background(), 7, ConversationMessages(1))
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer sess.Close()

	initial := collectFrame(t, sess.Frames(), waitFor)
	if initial.Type != FrameInitial {
		t.Fatalf("expected initial frame, got %s", initial.Type)
	}
	if len(initial.Messages) != 2 {
		t.Fatalf("initial snapshot has %d messages, want 2", len(initial.Messages))
	}

	gw.addMessage(1, models.Message{ID: 3, Content: "new"})

	delta := collectFrame(t, sess.Frames(), waitFor)
	if delta.Type != FrameMessages {
		t.Fatalf("expected messages frame, got %s", delta.Type)
	}
	if len(delta.Messages) != 1 || delta.Messages[0].ID != 3 {
		t.Fatalf("delta should carry exactly the new message, got %v", delta.Messages)
	}
}

func TestMessageStreamIdlePollsEmitNothing(t *testing.T) {
	gw := newFakeGateway()
	gw.addConversation(1, time.Now())
	gw.addParticipant(7, 1)
	gw.addMessage(1, models.Message{ID: 1})

	m := testMultiplexer(gw)
	sess, err := m.OpenStream(context.Background(), 7, ConversationMessages(1))
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer sess.Close()

	if f := collectFrame(t, sess.Frames(), waitFor); f.Type != FrameInitial {
		t.Fatalf("expected initial frame, got %s", f.Type)
	}

	// Dozens of polls pass with nothing new; no frame may arrive.
	select {
	case f := <-sess.Frames():
		t.Fatalf("idle stream emitted a %s frame", f.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestListStreamEmptyInitialSnapshot(t *testing.T) {
	m := testMultiplexer(newFakeGateway())
	sess, err := m.OpenStream(context.Background(), 7, ConversationList())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer sess.Close()

	initial := collectFrame(t, sess.Frames(), waitFor)
	if initial.Type != FrameInitial {
		t.Fatalf("expected initial frame, got %s", initial.Type)
	}
	if initial.Conversations == nil {
		t.Fatal("empty snapshot must still carry a non-nil conversation list")
	}
	if len(initial.Conversations) != 0 {
		t.Fatalf("expected empty snapshot, got %d conversations", len(initial.Conversations))
	}
}

func TestListStreamDeltaOnActivity(t *testing.T) {
	gw := newFakeGateway()
	base := time.Now()
	gw.setDetails(7, []models.ConversationDetails{
		{Conversation: models.Conversation{ID: 1, UpdatedAt: base}},
	})

	m := testMultiplexer(gw)
	sess, err := m.OpenStream(context.Background(), 7, ConversationList())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer sess.Close()

	if f := collectFrame(t, sess.Frames(), waitFor); f.Type != FrameInitial {
		t.Fatalf("expected initial frame, got %s", f.Type)
	}

	gw.setDetails(7, []models.ConversationDetails{
		{Conversation: models.Conversation{ID: 1, UpdatedAt: base.Add(time.Second)}},
		{Conversation: models.Conversation{ID: 2, UpdatedAt: base}},
	})

	delta := collectFrame(t, sess.Frames(), waitFor)
	if delta.Type != FrameConversations {
		t.Fatalf("expected conversations frame, got %s", delta.Type)
	}
	if len(delta.Conversations) != 2 {
		t.Fatalf("refresh should carry the full snapshot, got %d", len(delta.Conversations))
	}
}

func TestHeartbeatKeepsIdleStreamAlive(t *testing.T) {
	gw := newFakeGateway()
	m := NewMultiplexer(gw, zerolog.Nop(), Options{
		HeartbeatInterval:        20 * time.Millisecond,
		MessagePollInterval:      time.Hour,
		ConversationPollInterval: time.Hour,
	})

	sess, err := m.OpenStream(context.Background(), 7, ConversationList())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer sess.Close()

	if f := collectFrame(t, sess.Frames(), waitFor); f.Type != FrameInitial {
		t.Fatalf("expected initial frame, got %s", f.Type)
	}
	if f := collectFrame(t, sess.Frames(), waitFor); f.Type != FrameHeartbeat {
		t.Fatalf("expected heartbeat frame, got %s", f.Type)
	}
}

func TestFetchFailureEmitsErrorThenResumes(t *testing.T) {
	gw := newFakeGateway()
	gw.setFailing(true)

	m := testMultiplexer(gw)
	sess, err := m.OpenStream(context.Background(), 7, ConversationList())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer sess.Close()

	errFrame := collectFrame(t, sess.Frames(), waitFor)
	if errFrame.Type != FrameError {
		t.Fatalf("expected error frame, got %s", errFrame.Type)
	}
	if errFrame.ErrMessage == "" {
		t.Error("error frame should carry a message")
	}
	if sess.State() != StateStreaming {
		t.Errorf("fetch failure must not close the session, state %s", sess.State())
	}

	// Store recovers; the stream resumes with a snapshot on its own.
	gw.setDetails(7, []models.ConversationDetails{
		{Conversation: models.Conversation{ID: 1, UpdatedAt: time.Now()}},
	})
	gw.setFailing(false)

	for {
		f := collectFrame(t, sess.Frames(), waitFor)
		if f.Type == FrameError {
			continue
		}
		if f.Type != FrameConversations {
			t.Fatalf("expected conversations frame after recovery, got %s", f.Type)
		}
		if len(f.Conversations) != 1 {
			t.Fatalf("recovery snapshot has %d conversations, want 1", len(f.Conversations))
		}
		break
	}
}

func TestCloseIsSynchronousAndIdempotent(t *testing.T) {
	gw := newFakeGateway()
	m := testMultiplexer(gw)

	sess, err := m.OpenStream(context.Background(), 7, ConversationList())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	if f := collectFrame(t, sess.Frames(), waitFor); f.Type != FrameInitial {
		t.Fatalf("expected initial frame, got %s", f.Type)
	}

	sess.Close()
	sess.Close() // second close is a no-op

	if sess.State() != StateClosed {
		t.Errorf("state after close: %s", sess.State())
	}
	if m.Registry().Len() != 0 {
		t.Errorf("closed session still registered")
	}

	// The frame channel drains and closes; nothing new may arrive.
	for {
		f, ok := <-sess.Frames()
		if !ok {
			return
		}
		if f.Type != FrameHeartbeat && f.Type != FrameConversations && f.Type != FrameError {
			t.Fatalf("unexpected frame after close: %s", f.Type)
		}
	}
}

func TestTransportAbortStopsSession(t *testing.T) {
	gw := newFakeGateway()
	m := testMultiplexer(gw)

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := m.OpenStream(ctx, 7, ConversationList())
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}

	if f := collectFrame(t, sess.Frames(), waitFor); f.Type != FrameInitial {
		t.Fatalf("expected initial frame, got %s", f.Type)
	}

	cancel()

	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-sess.Frames():
			if !ok {
				if sess.State() != StateClosed {
					t.Errorf("state after abort: %s", sess.State())
				}
				return
			}
		case <-deadline:
			t.Fatal("session did not stop after transport abort")
		}
	}
}
