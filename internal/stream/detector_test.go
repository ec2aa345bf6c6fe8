package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/patter-chat/patter/internal/models"
)

func TestMessageDeltaFiltersByWatermark(t *testing.T) {
	gw := newFakeGateway()
	gw.addMessage(1, models.Message{ID: 1, Content: "a"})
	gw.addMessage(1, models.Message{ID: 2, Content: "b"})
	gw.addMessage(1, models.Message{ID: 3, Content: "c"})

	d := NewDetector(gw)

	messages, mark, err := d.MessageDelta(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("MessageDelta: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages after id 1, got %d", len(messages))
	}
	if messages[0].ID != 2 || messages[1].ID != 3 {
		t.Errorf("wrong messages: %v", messages)
	}
	if mark != 3 {
		t.Errorf("expected watermark 3, got %d", mark)
	}
}

func TestMessageDeltaEmptyKeepsWatermark(t *testing.T) {
	gw := newFakeGateway()
	gw.addMessage(1, models.Message{ID: 5})

	d := NewDetector(gw)

	messages, mark, err := d.MessageDelta(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("MessageDelta: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no messages, got %d", len(messages))
	}
	if mark != 5 {
		t.Errorf("watermark moved without new messages: %d", mark)
	}
}

func TestMessageDeltaFetchFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.setFailing(true)

	d := NewDetector(gw)

	_, mark, err := d.MessageDelta(context.Background(), 1, 7)
	if err == nil {
		t.Fatal("expected error from failing gateway")
	}
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if mark != 7 {
		t.Errorf("watermark moved on failure: %d", mark)
	}
}

func TestConversationDeltaReportsChange(t *testing.T) {
	gw := newFakeGateway()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw.setDetails(9, []models.ConversationDetails{
		{Conversation: models.Conversation{ID: 1, UpdatedAt: base}},
		{Conversation: models.Conversation{ID: 2, UpdatedAt: base.Add(time.Minute)}},
	})

	d := NewDetector(gw)

	conversations, mark, changed, err := d.ConversationDelta(context.Background(), 9, ListWatermark{})
	if err != nil {
		t.Fatalf("ConversationDelta: %v", err)
	}
	if !changed {
		t.Fatal("first poll should report a change")
	}
	if len(conversations) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(conversations))
	}
	if mark.Count != 2 || !mark.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Errorf("wrong watermark: %+v", mark)
	}

	// Same snapshot again: no change.
	_, mark2, changed, err := d.ConversationDelta(context.Background(), 9, mark)
	if err != nil {
		t.Fatalf("ConversationDelta: %v", err)
	}
	if changed {
		t.Error("unchanged snapshot reported as changed")
	}
	if !mark2.Equal(mark) {
		t.Errorf("watermark drifted: %+v vs %+v", mark2, mark)
	}
}

func TestConversationDeltaDetectsActivityAndMembership(t *testing.T) {
	gw := newFakeGateway()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gw.setDetails(9, []models.ConversationDetails{
		{Conversation: models.Conversation{ID: 1, UpdatedAt: base}},
	})

	d := NewDetector(gw)
	_, mark, _, err := d.ConversationDelta(context.Background(), 9, ListWatermark{})
	if err != nil {
		t.Fatalf("ConversationDelta: %v", err)
	}

	// New activity bumps updated_at.
	gw.setDetails(9, []models.ConversationDetails{
		{Conversation: models.Conversation{ID: 1, UpdatedAt: base.Add(time.Second)}},
	})
	_, mark, changed, err := d.ConversationDelta(context.Background(), 9, mark)
	if err != nil {
		t.Fatalf("ConversationDelta: %v", err)
	}
	if !changed {
		t.Error("updated_at bump not detected")
	}

	// Leaving the only conversation changes the count.
	gw.setDetails(9, nil)
	_, _, changed, err = d.ConversationDelta(context.Background(), 9, mark)
	if err != nil {
		t.Fatalf("ConversationDelta: %v", err)
	}
	if !changed {
		t.Error("membership change not detected")
	}
}
