// Package patter provides a client for the Patter messaging API.
package patter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Client is a Patter API client. Token holds the opaque session credential
// returned by Register or Login; it is sent as a Bearer header.
type Client struct {
	BaseURL    string
	ConfigDir  string
	Token      string
	HTTPClient *http.Client

	// streamClient has no timeout so event streams can stay open.
	streamClient *http.Client
}

// Config holds persisted client credentials.
type Config struct {
	Token string `json:"token"`
}

// NewClient creates a new Patter client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	configDir := os.Getenv("PATTER_CONFIG")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".patter")
	}

	c := &Client{
		BaseURL:      baseURL,
		ConfigDir:    configDir,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
		streamClient: &http.Client{},
	}

	_ = c.LoadConfig()
	return c
}

// LoadConfig loads the saved session token from disk.
func (c *Client) LoadConfig() error {
	data, err := os.ReadFile(filepath.Join(c.ConfigDir, "session.json"))
	if err != nil {
		return err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return err
	}

	c.Token = config.Token
	return nil
}

// SaveConfig saves the session token to disk.
func (c *Client) SaveConfig() error {
	if err := os.MkdirAll(c.ConfigDir, 0700); err != nil {
		return err
	}

	data, _ := json.MarshalIndent(Config{Token: c.Token}, "", "  ")
	return os.WriteFile(filepath.Join(c.ConfigDir, "session.json"), data, 0600)
}

// doRequest performs an HTTP request.
func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("patter error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// User represents an account.
type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email,omitempty"`
	DisplayName *string   `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url"`
	Bio         *string   `json:"bio,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Message represents a chat message.
type Message struct {
	ID                int64     `json:"id"`
	ConversationID    int64     `json:"conversation_id"`
	SenderID          int64     `json:"sender_id"`
	Content           string    `json:"content"`
	SentAt            time.Time `json:"sent_at"`
	SenderName        string    `json:"username,omitempty"`
	SenderDisplayName *string   `json:"display_name,omitempty"`
}

// Conversation represents a conversation with its list metadata.
type Conversation struct {
	ID               int64     `json:"id"`
	Name             *string   `json:"name"`
	IsGroup          bool      `json:"is_group"`
	CreatedBy        int64     `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	ParticipantCount int       `json:"participant_count"`
	Participants     []User    `json:"participants"`
	LastMessage      *Message  `json:"last_message,omitempty"`
}

// AuthResponse is the response from register and login.
type AuthResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// Register creates an account and stores the returned session token.
func (c *Client) Register(username, email, password string) (*AuthResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
	respBody, err := c.doRequest("POST", "/register", body)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login verifies credentials and stores the returned session token.
func (c *Client) Login(email, password string) (*AuthResponse, error) {
	body, _ := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	respBody, err := c.doRequest("POST", "/login", body)
	if err != nil {
		return nil, err
	}

	var resp AuthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}

	c.Token = resp.Token
	if err := c.SaveConfig(); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout revokes the current session.
func (c *Client) Logout() error {
	if _, err := c.doRequest("POST", "/logout", nil); err != nil {
		return err
	}
	c.Token = ""
	return c.SaveConfig()
}

// Me returns the authenticated user.
func (c *Client) Me() (*User, error) {
	respBody, err := c.doRequest("GET", "/me", nil)
	if err != nil {
		return nil, err
	}

	var resp User
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SearchUsers searches accounts by display-name prefix.
func (c *Client) SearchUsers(query string) ([]User, error) {
	respBody, err := c.doRequest("GET", "/users?q="+url.QueryEscape(query), nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// ListConversations returns the user's conversations, newest activity first.
func (c *Client) ListConversations() ([]Conversation, error) {
	respBody, err := c.doRequest("GET", "/conversations", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Conversations, nil
}

// CreateConversation creates a conversation with the given participants.
func (c *Client) CreateConversation(name string, isGroup bool, participantIDs []int64) (*Conversation, error) {
	req := map[string]interface{}{
		"is_group":        isGroup,
		"participant_ids": participantIDs,
	}
	if name != "" {
		req["name"] = name
	}
	body, _ := json.Marshal(req)

	respBody, err := c.doRequest("POST", "/conversations", body)
	if err != nil {
		return nil, err
	}

	var resp Conversation
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetConversation returns one conversation with participants.
func (c *Client) GetConversation(id int64) (*Conversation, error) {
	respBody, err := c.doRequest("GET", fmt.Sprintf("/conversations/%d", id), nil)
	if err != nil {
		return nil, err
	}

	var resp Conversation
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddParticipant adds a user to a conversation.
func (c *Client) AddParticipant(conversationID, userID int64) error {
	body, _ := json.Marshal(map[string]int64{"user_id": userID})
	_, err := c.doRequest("POST", fmt.Sprintf("/conversations/%d/participants", conversationID), body)
	return err
}

// LeaveConversation removes the caller from a conversation.
func (c *Client) LeaveConversation(conversationID int64) error {
	_, err := c.doRequest("POST", fmt.Sprintf("/conversations/%d/leave", conversationID), nil)
	return err
}

// GetMessages retrieves a page of history, oldest first. A non-zero before
// pages backwards from that message id.
func (c *Client) GetMessages(conversationID int64, limit int, before int64) ([]Message, error) {
	path := fmt.Sprintf("/conversations/%d/messages?limit=%d", conversationID, limit)
	if before > 0 {
		path += fmt.Sprintf("&before=%d", before)
	}

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Messages []Message `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// SendMessage appends a message to a conversation.
func (c *Client) SendMessage(conversationID int64, content string) (*Message, error) {
	body, _ := json.Marshal(map[string]string{"content": content})
	respBody, err := c.doRequest("POST", fmt.Sprintf("/conversations/%d/messages", conversationID), body)
	if err != nil {
		return nil, err
	}

	var resp Message
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteMessage soft-deletes one of the caller's own messages.
func (c *Client) DeleteMessage(conversationID, messageID int64) error {
	_, err := c.doRequest("DELETE", fmt.Sprintf("/conversations/%d/messages/%d", conversationID, messageID), nil)
	return err
}

// HealthResponse is the response from the health endpoint.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	OpenStreams int                    `json:"open_streams"`
	Checks      map[string]interface{} `json:"checks"`
	Timestamp   string                 `json:"timestamp"`
}

// Health checks server health.
func (c *Client) Health() (*HealthResponse, error) {
	respBody, err := c.doRequest("GET", "/health", nil)
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
