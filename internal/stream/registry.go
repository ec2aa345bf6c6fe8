package stream

import (
	"sync"

	"github.com/patter-chat/patter/internal/metrics"
)

// Registry tracks every open session in this process, keyed by connection
// id. It exists for resource accounting and shutdown; delivery correctness
// assumes a single serving process owns all sessions (no cluster fan-out).
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	metrics.StreamsOpen.WithLabelValues(s.scope.String()).Inc()
}

func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	_, present := r.sessions[s.id]
	delete(r.sessions, s.id)
	r.mu.Unlock()
	if present {
		metrics.StreamsOpen.WithLabelValues(s.scope.String()).Dec()
	}
}

// Get returns the session with the given connection id, or nil.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every registered session and blocks until each has fully
// stopped. Used on server shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	open := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		open = append(open, s)
	}
	r.mu.RUnlock()

	for _, s := range open {
		s.Close()
	}
}
