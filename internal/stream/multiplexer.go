package stream

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Default timer periods. The message poll is tighter than the list poll:
// active chat is latency-sensitive, the ambient conversation list is not.
const (
	DefaultHeartbeatInterval        = 30 * time.Second
	DefaultMessagePollInterval      = 2 * time.Second
	DefaultConversationPollInterval = 5 * time.Second
)

// Options tune the session timers. Zero values select the defaults; tests
// shrink them.
type Options struct {
	HeartbeatInterval        time.Duration
	MessagePollInterval      time.Duration
	ConversationPollInterval time.Duration
}

// Multiplexer authorizes incoming subscription requests, creates and
// destroys sessions, and owns the process-wide connection registry. Sessions
// never coordinate ticks with each other: every session does its own
// authorized read, so two sessions on the same conversation poll redundantly
// rather than sharing a cache.
type Multiplexer struct {
	gateway  Gateway
	detector *Detector
	registry *Registry
	logger   zerolog.Logger

	heartbeatEvery time.Duration
	listPollEvery  time.Duration
	msgPollEvery   time.Duration
}

// NewMultiplexer creates a multiplexer over the given gateway.
func NewMultiplexer(gw Gateway, logger zerolog.Logger, opts Options) *Multiplexer {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.MessagePollInterval <= 0 {
		opts.MessagePollInterval = DefaultMessagePollInterval
	}
	if opts.ConversationPollInterval <= 0 {
		opts.ConversationPollInterval = DefaultConversationPollInterval
	}
	return &Multiplexer{
		gateway:        gw,
		detector:       NewDetector(gw),
		registry:       NewRegistry(),
		logger:         logger,
		heartbeatEvery: opts.HeartbeatInterval,
		listPollEvery:  opts.ConversationPollInterval,
		msgPollEvery:   opts.MessagePollInterval,
	}
}

// Registry exposes the connection registry for accounting.
func (m *Multiplexer) Registry() *Registry {
	return m.registry
}

// OpenStream authorizes the subscription, creates a session, registers it
// and starts its goroutine bound to ctx (the transport's abort signal).
// Authorization is verified once, here; it is not re-checked mid-stream.
//
// Terminal failures: ErrUnauthorized when no identity, ErrNotFound when a
// message scope names an unknown conversation, ErrForbidden when the user
// has no active participant row in it. No session is created in any of
// these cases.
func (m *Multiplexer) OpenStream(ctx context.Context, userID int64, scope Scope) (*Session, error) {
	if userID == 0 {
		return nil, ErrUnauthorized
	}

	if scope.Messages() {
		conversation, err := m.gateway.GetConversation(ctx, scope.ConversationID)
		if err != nil {
			return nil, &FetchError{Op: "conversation", Err: err}
		}
		if conversation == nil {
			return nil, ErrNotFound
		}

		active, err := m.gateway.IsActiveParticipant(ctx, userID, scope.ConversationID)
		if err != nil {
			return nil, &FetchError{Op: "participant check", Err: err}
		}
		if !active {
			return nil, ErrForbidden
		}
	}

	pollEvery := m.listPollEvery
	if scope.Messages() {
		pollEvery = m.msgPollEvery
	}

	sess := newSession(userID, scope, m.detector, m.logger, m.heartbeatEvery, pollEvery, m.registry.remove)
	m.registry.add(sess)
	go sess.run(ctx)

	m.logger.Info().
		Str("conn_id", sess.ID()).
		Int64("user_id", userID).
		Str("scope", scope.String()).
		Int("open_streams", m.registry.Len()).
		Msg("stream opened")

	return sess, nil
}

// CloseAll shuts down every open session. Called on server shutdown.
func (m *Multiplexer) CloseAll() {
	m.registry.CloseAll()
}
