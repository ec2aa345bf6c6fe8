package patter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultRetryInterval is the fixed delay between reconnect attempts. There
// is no backoff and no attempt cap: the stream keeps trying until Stop.
const DefaultRetryInterval = 5 * time.Second

// StreamState tracks the client-side view of a stream connection.
type StreamState int

const (
	StreamConnecting StreamState = iota
	StreamOpen
	StreamErrored
	StreamStopped
)

func (s StreamState) String() string {
	switch s {
	case StreamConnecting:
		return "connecting"
	case StreamOpen:
		return "open"
	case StreamErrored:
		return "errored"
	case StreamStopped:
		return "stopped"
	}
	return "unknown"
}

// Frame mirrors the server's wire frame.
type Frame struct {
	Type          string         `json:"type"`
	Conversations []Conversation `json:"conversations,omitempty"`
	Messages      []Message      `json:"messages,omitempty"`
	Error         string         `json:"message,omitempty"`
}

// StreamOptions tune the reconnection controller.
type StreamOptions struct {
	RetryInterval time.Duration
}

// Stream consumes a server event stream and keeps a local view current
// across reconnects. Message deltas are appended with id-based dedup, so a
// reconnect's initial snapshot never duplicates what was already seen.
// Conversation payloads replace the local list wholesale.
type Stream struct {
	client *Client
	path   string
	retry  time.Duration

	mu            sync.Mutex
	state         StreamState
	nextRetry     time.Time
	lastErr       string
	messages      []Message
	seen          map[int64]bool
	conversations []Conversation

	ctx      context.Context
	cancel   context.CancelFunc
	retryNow chan struct{}
	updates  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StreamConversations opens a live stream over the user's conversation list.
func (c *Client) StreamConversations(opts StreamOptions) *Stream {
	return c.newStream("/conversations/stream", opts)
}

// StreamMessages opens a live stream over one conversation's messages.
func (c *Client) StreamMessages(conversationID int64, opts StreamOptions) *Stream {
	return c.newStream(fmt.Sprintf("/conversations/%d/stream", conversationID), opts)
}

func (c *Client) newStream(path string, opts StreamOptions) *Stream {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Stream{
		client:   c,
		path:     path,
		retry:    opts.RetryInterval,
		state:    StreamConnecting,
		seen:     make(map[int64]bool),
		ctx:      ctx,
		cancel:   cancel,
		retryNow: make(chan struct{}, 1),
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// State returns the current connection state.
func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent connection or in-band error message.
func (s *Stream) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// NextRetry returns when the next reconnect attempt is due. Zero unless the
// stream is in the errored state.
func (s *Stream) NextRetry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRetry
}

// Messages returns a copy of the accumulated message view.
func (s *Stream) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Conversations returns a copy of the current conversation list view.
func (s *Stream) Conversations() []Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Updates returns a channel that receives a signal whenever the view or
// connection state changes. Signals are coalesced.
func (s *Stream) Updates() <-chan struct{} {
	return s.updates
}

// RetryNow skips the remaining retry delay and reconnects immediately.
func (s *Stream) RetryNow() {
	select {
	case s.retryNow <- struct{}{}:
	default:
	}
}

// Stop permanently shuts down the stream and blocks until the controller
// goroutine has exited. No reconnect is attempted after Stop.
func (s *Stream) Stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

func (s *Stream) run() {
	defer func() {
		s.setState(StreamStopped)
		close(s.done)
	}()

	for {
		s.setState(StreamConnecting)
		err := s.connectOnce()
		if s.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.state = StreamErrored
		if err != nil {
			s.lastErr = err.Error()
		}
		s.nextRetry = time.Now().Add(s.retry)
		s.mu.Unlock()
		s.notify()

		timer := time.NewTimer(s.retry)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-s.retryNow:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// connectOnce opens the stream and consumes frames until the connection
// drops or the stream is stopped.
func (s *Stream) connectOnce() error {
	req, err := http.NewRequestWithContext(s.ctx, "GET", s.client.BaseURL+s.path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	if s.client.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.client.Token)
	}

	resp, err := s.client.streamClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream rejected: status %d", resp.StatusCode)
	}

	s.setState(StreamOpen)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			if data.Len() > 0 {
				s.handleFrame(data.Bytes())
				data.Reset()
			}
			continue
		}
		if rest, ok := bytes.CutPrefix(line, []byte("data: ")); ok {
			data.Write(rest)
		}
	}
	return scanner.Err()
}

func (s *Stream) handleFrame(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}

	s.mu.Lock()
	switch frame.Type {
	case "initial":
		if frame.Messages != nil {
			s.messages = s.messages[:0]
			s.seen = make(map[int64]bool)
			s.appendLocked(frame.Messages)
		}
		if frame.Conversations != nil {
			s.conversations = frame.Conversations
		}
	case "messages":
		s.appendLocked(frame.Messages)
	case "conversations":
		s.conversations = frame.Conversations
	case "error":
		s.lastErr = frame.Error
	case "heartbeat":
		s.mu.Unlock()
		return
	default:
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Stream) appendLocked(messages []Message) {
	for _, m := range messages {
		if s.seen[m.ID] {
			continue
		}
		s.seen[m.ID] = true
		s.messages = append(s.messages, m)
	}
}

func (s *Stream) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	if state != StreamErrored {
		s.nextRetry = time.Time{}
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Stream) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}
