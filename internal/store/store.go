package store

import (
	"context"

	"github.com/patter-chat/patter/internal/models"
)

// DataStore defines the interface for persistent conversation, participant,
// message and user state. Both PostgresStore and SQLiteStore implement this
// interface; everything above it (handlers, change detection) is storage
// agnostic.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SearchUsersByDisplayName(ctx context.Context, prefix string, limit int) ([]models.User, error)
	UpdateUserProfile(ctx context.Context, id int64, username string, displayName, bio, avatarURL *string) error
	UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error
	UpdateUserStatus(ctx context.Context, id int64, status string) error

	// Conversation operations
	CreateConversation(ctx context.Context, name *string, isGroup bool, createdBy int64) (*models.Conversation, error)
	GetConversation(ctx context.Context, id int64) (*models.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID int64) ([]models.ConversationDetails, error)
	ListActiveParticipants(ctx context.Context, conversationID int64, limit int) ([]models.User, error)
	LatestMessage(ctx context.Context, conversationID int64) (*models.Message, error)
	TouchConversation(ctx context.Context, id int64) error

	// Participant operations
	AddParticipant(ctx context.Context, conversationID, userID int64, admin bool) (*models.Participant, error)
	RemoveParticipant(ctx context.Context, conversationID, userID int64) error
	IsActiveParticipant(ctx context.Context, userID, conversationID int64) (bool, error)

	// Message operations
	CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (*models.Message, error)
	ListMessages(ctx context.Context, conversationID int64, limit int, beforeID int64) ([]models.Message, error)
	ListMessagesAfter(ctx context.Context, conversationID, afterID int64) ([]models.Message, error)
	DeleteMessage(ctx context.Context, messageID, senderID int64) (bool, error)
}
