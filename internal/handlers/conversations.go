package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/patter-chat/patter/internal/api/middleware"
	"github.com/patter-chat/patter/internal/metrics"
	"github.com/patter-chat/patter/internal/models"
)

// maxListedParticipants caps how many participants the list view embeds per
// conversation.
const maxListedParticipants = 10

// conversationID parses the {id} route parameter.
func conversationID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ListConversationsResponse wraps the conversation list.
type ListConversationsResponse struct {
	Conversations []models.ConversationDetails `json:"conversations"`
}

// ListConversations returns every conversation the user actively
// participates in, newest activity first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	conversations, err := h.db.ListConversationsForUser(r.Context(), user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}
	if conversations == nil {
		conversations = []models.ConversationDetails{}
	}

	h.JSON(w, http.StatusOK, ListConversationsResponse{Conversations: conversations})
}

// CreateConversationRequest represents a conversation creation request.
type CreateConversationRequest struct {
	Name           *string `json:"name"`
	IsGroup        bool    `json:"is_group"`
	ParticipantIDs []int64 `json:"participant_ids"`
}

// CreateConversation creates a conversation with the caller as admin plus
// the listed participants.
func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.ParticipantIDs) == 0 {
		h.Error(w, http.StatusBadRequest, "at least one participant required")
		return
	}
	if req.Name != nil {
		cleaned := sanitizeName(*req.Name)
		req.Name = &cleaned
	}

	for _, id := range req.ParticipantIDs {
		other, err := h.db.GetUserByID(r.Context(), id)
		if err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to verify participant")
			return
		}
		if other == nil {
			h.Error(w, http.StatusNotFound, "participant not found")
			return
		}
	}

	conversation, err := h.db.CreateConversation(r.Context(), req.Name, req.IsGroup, user.ID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}

	if _, err := h.db.AddParticipant(r.Context(), conversation.ID, user.ID, true); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to add creator")
		return
	}
	for _, id := range req.ParticipantIDs {
		if id == user.ID {
			continue
		}
		if _, err := h.db.AddParticipant(r.Context(), conversation.ID, id, false); err != nil {
			h.Error(w, http.StatusInternalServerError, "failed to add participant")
			return
		}
	}

	metrics.ConversationsCreated.Inc()

	details, err := h.conversationDetails(r, conversation)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	h.JSON(w, http.StatusCreated, details)
}

// GetConversation returns one conversation with participants and the latest
// message. Only active participants may read it.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
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

	details, err := h.conversationDetails(r, conversation)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}

	h.JSON(w, http.StatusOK, details)
}

// AddParticipantRequest represents adding a user to a conversation.
type AddParticipantRequest struct {
	UserID int64 `json:"user_id"`
}

// AddParticipant adds a user to a conversation. Any active participant may
// invite others.
func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
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

	var req AddParticipantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		h.Error(w, http.StatusBadRequest, "invalid request body")
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

	target, err := h.db.GetUserByID(r.Context(), req.UserID)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to look up user")
		return
	}
	if target == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	participant, err := h.db.AddParticipant(r.Context(), id, req.UserID, false)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to add participant")
		return
	}

	// Membership changes count as list activity.
	_ = h.db.TouchConversation(r.Context(), id)

	h.JSON(w, http.StatusCreated, participant)
}

// LeaveConversation marks the caller's participant row as left. History
// stays readable to remaining participants.
func (h *Handler) LeaveConversation(w http.ResponseWriter, r *http.Request) {
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

	active, err := h.db.IsActiveParticipant(r.Context(), user.ID, id)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to verify participant")
		return
	}
	if !active {
		h.Error(w, http.StatusForbidden, "not a participant in this conversation")
		return
	}

	if err := h.db.RemoveParticipant(r.Context(), id, user.ID); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to leave conversation")
		return
	}

	_ = h.db.TouchConversation(r.Context(), id)

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// conversationDetails assembles the enriched view of a conversation.
func (h *Handler) conversationDetails(r *http.Request, conversation *models.Conversation) (*models.ConversationDetails, error) {
	participants, err := h.db.ListActiveParticipants(r.Context(), conversation.ID, maxListedParticipants)
	if err != nil {
		return nil, err
	}
	if participants == nil {
		participants = []models.User{}
	}

	last, err := h.db.LatestMessage(r.Context(), conversation.ID)
	if err != nil {
		return nil, err
	}

	return &models.ConversationDetails{
		Conversation:     *conversation,
		ParticipantCount: len(participants),
		Participants:     participants,
		LastMessage:      last,
	}, nil
}
