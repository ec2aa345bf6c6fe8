package patter

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const waitFor = 3 * time.Second

// sseHandler writes the given frames per connection attempt and then closes
// the response.
func sseHandler(connects *atomic.Int32, framesByAttempt [][]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		attempt := int(connects.Add(1)) - 1
		if attempt >= len(framesByAttempt) {
			attempt = len(framesByAttempt) - 1
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, frame := range framesByAttempt[attempt] {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, s *Stream, cond func() bool) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		if cond() {
			return
		}
		select {
		case <-s.Updates():
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("condition not reached in time")
		}
	}
}

func TestStreamAppendsWithDedup(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(&connects, [][]string{
		{
			`{"type":"initial","messages":[{"id":1,"content":"a"},{"id":2,"content":"b"}]}`,
			`{"type":"messages","messages":[{"id":2,"content":"b"},{"id":3,"content":"c"}]}`,
		},
		{}, // reconnects idle
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.Token = "test-token"
	stream := client.StreamMessages(1, StreamOptions{RetryInterval: time.Hour})
	defer stream.Stop()

	waitUntil(t, stream, func() bool { return len(stream.Messages()) == 3 })

	messages := stream.Messages()
	for i, want := range []int64{1, 2, 3} {
		if messages[i].ID != want {
			t.Errorf("messages[%d].ID = %d, want %d", i, messages[i].ID, want)
		}
	}
}

func TestStreamReconnectReplacesSnapshotWithoutDuplicates(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(&connects, [][]string{
		{`{"type":"initial","messages":[{"id":1,"content":"a"},{"id":2,"content":"b"}]}`},
		{`{"type":"initial","messages":[{"id":1,"content":"a"},{"id":2,"content":"b"},{"id":3,"content":"c"}]}`},
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.Token = "test-token"
	stream := client.StreamMessages(1, StreamOptions{RetryInterval: 20 * time.Millisecond})
	defer stream.Stop()

	waitUntil(t, stream, func() bool { return len(stream.Messages()) == 3 })

	if connects.Load() < 2 {
		t.Errorf("expected a reconnect, saw %d connects", connects.Load())
	}
	messages := stream.Messages()
	seen := make(map[int64]bool)
	for _, m := range messages {
		if seen[m.ID] {
			t.Errorf("duplicate message id %d after reconnect", m.ID)
		}
		seen[m.ID] = true
	}
}

func TestStreamErroredStateAndRetryNow(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(&connects, [][]string{
		{`{"type":"initial","messages":[]}`},
		{`{"type":"initial","messages":[{"id":1,"content":"late"}]}`},
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.Token = "test-token"
	stream := client.StreamMessages(1, StreamOptions{RetryInterval: time.Hour})
	defer stream.Stop()

	// First connection ends; with an hour-long retry the stream parks in the
	// errored state with a scheduled attempt.
	waitUntil(t, stream, func() bool { return stream.State() == StreamErrored })
	if stream.NextRetry().IsZero() {
		t.Error("errored stream should expose its next retry time")
	}

	stream.RetryNow()
	waitUntil(t, stream, func() bool { return len(stream.Messages()) == 1 })
}

func TestStreamConversationsReplace(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(&connects, [][]string{
		{
			`{"type":"initial","conversations":[{"id":1},{"id":2}]}`,
			`{"type":"conversations","conversations":[{"id":2},{"id":3},{"id":4}]}`,
		},
		{},
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.Token = "test-token"
	stream := client.StreamConversations(StreamOptions{RetryInterval: time.Hour})
	defer stream.Stop()

	waitUntil(t, stream, func() bool { return len(stream.Conversations()) == 3 })

	conversations := stream.Conversations()
	if conversations[0].ID != 2 || conversations[2].ID != 4 {
		t.Errorf("refresh should replace the list wholesale: %v", conversations)
	}
}

func TestStreamStopIsTerminal(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(&connects, [][]string{
		{`{"type":"initial","messages":[]}`},
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.Token = "test-token"
	stream := client.StreamMessages(1, StreamOptions{RetryInterval: 10 * time.Millisecond})

	waitUntil(t, stream, func() bool { return connects.Load() >= 1 })
	stream.Stop()

	if stream.State() != StreamStopped {
		t.Errorf("state after Stop: %s", stream.State())
	}

	before := connects.Load()
	time.Sleep(100 * time.Millisecond)
	if connects.Load() != before {
		t.Error("stream reconnected after Stop")
	}
}

func TestStreamSurfacesInBandErrors(t *testing.T) {
	var connects atomic.Int32
	srv := httptest.NewServer(sseHandler(&connects, [][]string{
		{
			`{"type":"initial","messages":[]}`,
			`{"type":"error","message":"Failed to fetch new messages"}`,
		},
		{},
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	client.Token = "test-token"
	stream := client.StreamMessages(1, StreamOptions{RetryInterval: time.Hour})
	defer stream.Stop()

	waitUntil(t, stream, func() bool { return stream.LastError() == "Failed to fetch new messages" })
}
