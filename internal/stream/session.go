package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/patter-chat/patter/internal/metrics"
)

// SessionState tracks the lifecycle of a subscription session.
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateStreaming
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

const frameBuffer = 16

// Session binds a user identity and scope to a live push channel. It is
// ephemeral: created on connect, destroyed on disconnect, never persisted.
// One goroutine owns all session state (watermarks, timers); nothing mutates
// it from outside.
type Session struct {
	id     string
	userID int64
	scope  Scope

	detector       *Detector
	logger         zerolog.Logger
	heartbeatEvery time.Duration
	pollEvery      time.Duration

	frames    chan Frame
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	onClose   func(*Session)

	// owned by the run goroutine
	listMark ListWatermark
	msgMark  int64
}

func newSession(userID int64, scope Scope, detector *Detector, logger zerolog.Logger, heartbeatEvery, pollEvery time.Duration, onClose func(*Session)) *Session {
	id := ulid.Make().String()
	return &Session{
		id:             id,
		userID:         userID,
		scope:          scope,
		detector:       detector,
		logger:         logger.With().Str("conn_id", id).Int64("user_id", userID).Str("scope", scope.String()).Logger(),
		heartbeatEvery: heartbeatEvery,
		pollEvery:      pollEvery,
		frames:         make(chan Frame, frameBuffer),
		closing:        make(chan struct{}),
		done:           make(chan struct{}),
		onClose:        onClose,
	}
}

// ID returns the connection id assigned at open time.
func (s *Session) ID() string { return s.id }

// UserID returns the subscriber identity.
func (s *Session) UserID() int64 { return s.userID }

// Scope returns the subscription target.
func (s *Session) Scope() Scope { return s.scope }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Frames returns the push channel. It is closed when the session ends.
func (s *Session) Frames() <-chan Frame { return s.frames }

// Close transitions the session to Closing and blocks until the run
// goroutine has stopped both timers and closed the frame channel. No frame
// is emitted after Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosing))
		close(s.closing)
	})
	<-s.done
}

// run drives the session until the context is cancelled (transport abort) or
// Close is called. It emits the initial snapshot, then serves the heartbeat
// and poll timers.
func (s *Session) run(ctx context.Context) {
	defer func() {
		s.state.Store(int32(StateClosed))
		if s.onClose != nil {
			s.onClose(s)
		}
		close(s.frames)
		close(s.done)
	}()

	s.state.Store(int32(StateStreaming))
	s.emitInitial(ctx)

	heartbeat := time.NewTicker(s.heartbeatEvery)
	defer heartbeat.Stop()
	poll := time.NewTicker(s.pollEvery)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		case <-heartbeat.C:
			s.emit(ctx, Heartbeat())
		case <-poll.C:
			s.pollOnce(ctx)
		}
	}
}

// emitInitial sends the full current snapshot and seeds the watermark. A
// failed initial fetch is reported like any poll failure; the next
// successful poll then delivers the snapshot as a delta from the zero
// watermark.
func (s *Session) emitInitial(ctx context.Context) {
	if s.scope.Messages() {
		messages, mark, err := s.detector.MessageDelta(ctx, s.scope.ConversationID, 0)
		if err != nil {
			s.reportFetchFailure(ctx, err, "Stream initialization failed")
			return
		}
		if s.emit(ctx, InitialMessages(messages)) {
			s.msgMark = mark
		}
		return
	}

	conversations, mark, _, err := s.detector.ConversationDelta(ctx, s.userID, ListWatermark{})
	if err != nil {
		s.reportFetchFailure(ctx, err, "Stream initialization failed")
		return
	}
	if s.emit(ctx, InitialConversations(conversations)) {
		s.listMark = mark
	}
}

// pollOnce runs one poll tick: delta computation, at most one push frame,
// watermark advance. Fetch failures are reported and retried on the next
// tick; they never close the session.
func (s *Session) pollOnce(ctx context.Context) {
	if s.scope.Messages() {
		messages, mark, err := s.detector.MessageDelta(ctx, s.scope.ConversationID, s.msgMark)
		if err != nil {
			s.reportFetchFailure(ctx, err, "Failed to fetch new messages")
			return
		}
		if len(messages) == 0 {
			return
		}
		if s.emit(ctx, MessagesDelta(messages)) {
			s.msgMark = mark
		}
		return
	}

	conversations, mark, changed, err := s.detector.ConversationDelta(ctx, s.userID, s.listMark)
	if err != nil {
		s.reportFetchFailure(ctx, err, "Failed to fetch conversations")
		return
	}
	if !changed {
		return
	}
	if s.emit(ctx, ConversationsDelta(conversations)) {
		s.listMark = mark
	}
}

func (s *Session) reportFetchFailure(ctx context.Context, err error, message string) {
	metrics.StreamPollErrors.Inc()
	s.logger.Warn().Err(err).Msg("poll fetch failed")
	s.emit(ctx, ErrorFrame(message))
}

// emit delivers a frame unless the session is closing. Returns false when
// the frame was dropped because of shutdown.
func (s *Session) emit(ctx context.Context, f Frame) bool {
	select {
	case <-s.closing:
		return false
	default:
	}
	select {
	case s.frames <- f:
		metrics.StreamFrames.WithLabelValues(string(f.Type)).Inc()
		return true
	case <-s.closing:
		return false
	case <-ctx.Done():
		return false
	}
}
