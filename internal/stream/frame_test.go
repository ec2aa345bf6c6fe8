package stream

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/patter-chat/patter/internal/models"
)

func TestInitialFrameEmptySnapshotMarshalsEmptyArray(t *testing.T) {
	data, err := json.Marshal(InitialConversations(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"type":"initial"`) {
		t.Errorf("missing type: %s", s)
	}
	if !strings.Contains(s, `"conversations":[]`) {
		t.Errorf("empty snapshot must serialize an explicit empty array: %s", s)
	}

	data, err = json.Marshal(InitialMessages(nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"messages":[]`) {
		t.Errorf("empty snapshot must serialize an explicit empty array: %s", data)
	}
}

func TestMessagesFrameWireShape(t *testing.T) {
	frame := MessagesDelta([]models.Message{{ID: 3, Content: "hi", SenderID: 1}})
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Type     string           `json:"type"`
		Messages []models.Message `json:"messages"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Type != "messages" {
		t.Errorf("type = %q", decoded.Type)
	}
	if len(decoded.Messages) != 1 || decoded.Messages[0].ID != 3 {
		t.Errorf("messages = %v", decoded.Messages)
	}
}

func TestHeartbeatFrameCarriesOnlyType(t *testing.T) {
	data, err := json.Marshal(Heartbeat())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"type":"heartbeat"}` {
		t.Errorf("heartbeat wire shape: %s", data)
	}
}

func TestErrorFrameWireShape(t *testing.T) {
	data, err := json.Marshal(ErrorFrame("Failed to fetch new messages"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"type":"error"`) || !strings.Contains(s, `"message":"Failed to fetch new messages"`) {
		t.Errorf("error wire shape: %s", s)
	}
}

func TestScopeString(t *testing.T) {
	if got := ConversationList().String(); got != "conversations" {
		t.Errorf("list scope = %q", got)
	}
	if got := ConversationMessages(5).String(); got != "messages" {
		t.Errorf("message scope = %q", got)
	}
	if ConversationList().Messages() {
		t.Error("list scope reports message scope")
	}
	if !ConversationMessages(5).Messages() {
		t.Error("message scope not recognized")
	}
}
