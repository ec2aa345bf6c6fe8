package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/patter-chat/patter/internal/api/middleware"
	"github.com/patter-chat/patter/internal/stream"
)

// StreamConversations opens a server-sent events stream over the user's
// conversation list.
func (h *Handler) StreamConversations(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	h.serveStream(w, r, user.ID, stream.ConversationList())
}

// StreamMessages opens a server-sent events stream over one conversation's
// messages.
func (h *Handler) StreamMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}
	h.serveStream(w, r, user.ID, stream.ConversationMessages(id))
}

// serveStream authorizes the subscription, then pumps session frames to the
// client as SSE until either side disconnects. Terminal authorization
// failures map to plain HTTP status codes before any stream bytes are
// written; after that, failures arrive in-band as error frames.
func (h *Handler) serveStream(w http.ResponseWriter, r *http.Request, userID int64, scope stream.Scope) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	sess, err := h.mux.OpenStream(r.Context(), userID, scope)
	if err != nil {
		switch {
		case errors.Is(err, stream.ErrUnauthorized):
			h.Error(w, http.StatusUnauthorized, "authentication required")
		case errors.Is(err, stream.ErrForbidden):
			h.Error(w, http.StatusForbidden, "not a participant in this conversation")
		case errors.Is(err, stream.ErrNotFound):
			h.Error(w, http.StatusNotFound, "conversation not found")
		default:
			h.Error(w, http.StatusInternalServerError, "failed to open stream")
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for frame := range sess.Frames() {
		data, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			break
		}
		flusher.Flush()
	}

	// Either the client went away (write failed, request context cancels the
	// session) or the session ended on its own. Close is idempotent and
	// blocks until the session goroutine is fully stopped.
	sess.Close()
}
