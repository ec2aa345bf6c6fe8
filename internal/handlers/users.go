package handlers

import (
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/patter-chat/patter/internal/api/middleware"
	"github.com/patter-chat/patter/internal/models"
)

// SearchUsersResponse wraps user search results.
type SearchUsersResponse struct {
	Users []models.User `json:"users"`
}

// SearchUsers handles display-name prefix search, used when adding
// participants to a conversation.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := sanitizeName(r.URL.Query().Get("q"))
	if query == "" {
		h.Error(w, http.StatusBadRequest, "missing search query")
		return
	}

	users, err := h.db.SearchUsersByDisplayName(r.Context(), query, 20)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to search users")
		return
	}
	if users == nil {
		users = []models.User{}
	}

	h.JSON(w, http.StatusOK, SearchUsersResponse{Users: users})
}

// UpdateProfileRequest represents a profile update. Pointer fields
// distinguish "clear this" (explicit null) from "set this".
type UpdateProfileRequest struct {
	Username    string  `json:"username"`
	DisplayName *string `json:"display_name"`
	Bio         *string `json:"bio"`
	AvatarURL   *string `json:"avatar_url"`
}

// UpdateProfile handles profile edits for the authenticated user.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	username := user.Username
	if req.Username != "" {
		if !usernameRegex.MatchString(req.Username) {
			h.Error(w, http.StatusBadRequest, "username must be 3-30 characters (letters, digits, underscore)")
			return
		}
		username = req.Username
	}

	if req.DisplayName != nil {
		cleaned := sanitizeName(*req.DisplayName)
		req.DisplayName = &cleaned
	}

	if err := h.db.UpdateUserProfile(r.Context(), user.ID, username, req.DisplayName, req.Bio, req.AvatarURL); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	updated, err := h.db.GetUserByID(r.Context(), user.ID)
	if err != nil || updated == nil {
		h.Error(w, http.StatusInternalServerError, "failed to load updated profile")
		return
	}

	h.JSON(w, http.StatusOK, updated)
}

// UpdatePasswordRequest represents a password change.
type UpdatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// UpdatePassword handles password changes for the authenticated user.
func (h *Handler) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req UpdatePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		h.Error(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}
	if len(req.NewPassword) < 8 {
		h.Error(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := h.db.UpdateUserPassword(r.Context(), user.ID, string(hash)); err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to update password")
		return
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
