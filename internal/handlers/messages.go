package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/patter-chat/patter/internal/api/middleware"
	"github.com/patter-chat/patter/internal/metrics"
	"github.com/patter-chat/patter/internal/models"
)

const (
	maxMessageLength = 2000
	defaultPageSize  = 50
	maxPageSize      = 200
)

// ListMessagesResponse wraps a page of message history.
type ListMessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// ListMessages returns a page of history for a conversation, oldest first.
// The "before" query parameter pages backwards from a message id.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, ok := conversationID(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	conversation, err := h.db.GetConversation(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if conversation == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}

	active, err := h.db.IsActiveParticipant(r.Context(), user.ID, id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to verify participant")
		return
	}
	if !active {
		h.Error(w, http.StatusForbidden, "not a participant in this conversation")
		return
	}

	limit := defaultPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	var beforeID int64
	if raw := r.URL.Query().Get("before"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
			beforeID = n
		}
	}

	messages, err := h.db.ListMessages(r.Context(), id, limit, beforeID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, ListMessagesResponse{Messages: messages})
}

// SendMessageRequest represents a message send.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage appends a message to a conversation. The store bumps the
// conversation's updated_at in the same transaction, which is what surfaces
// the activity to list streams.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	id, ok := conversationID(r)
	if !ok {
		h.Error(w, http.StatusBadRequest, "invalid conversation ID")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" || utf8.RuneCountInString(content) > maxMessageLength {
		h.Error(w, http.StatusBadRequest, "message must be 1-2000 characters")
		return
	}

	conversation, err := h.db.GetConversation(r.Context(), id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if conversation == nil {
		h.Error(w, http.StatusNotFound, "conversation not found")
		return
	}

	active, err := h.db.IsActiveParticipant(r.Context(), user.ID, id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to verify participant")
		return
	}
	if !active {
		h.Error(w, http.StatusForbidden, "not a participant in this conversation")
		return
	}

	message, err := h.db.CreateMessage(r.Context(), id, user.ID, content)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to send message")
		return
	}

	metrics.MessagesSent.Inc()

	h.JSON(w, http.StatusCreated, message)
}

// DeleteMessage soft-deletes a message. Only the sender may delete their own
// messages; deleted content disappears from history and latest-message views.
func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil || messageID <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid message ID")
		return
	}

	deleted, err := h.db.DeleteMessage(r.Context(), messageID, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to delete message")
		return
	}
	if !deleted {
		h.Error(w, http.StatusNotFound, "message not found")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
