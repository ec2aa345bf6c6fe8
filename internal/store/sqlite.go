package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/patter-chat/patter/internal/models"
)

// SQLiteStore handles SQLite database operations. It backs development
// setups and the seed CLI; the schema mirrors the PostgreSQL one.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/patter.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/patter.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		display_name TEXT,
		avatar_url TEXT,
		bio TEXT,
		status TEXT NOT NULL DEFAULT 'offline',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT,
		is_group INTEGER NOT NULL DEFAULT 0,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		conversation_id INTEGER NOT NULL REFERENCES conversations(id),
		joined_at DATETIME NOT NULL,
		left_at DATETIME,
		is_admin INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id INTEGER NOT NULL REFERENCES conversations(id),
		sender_id INTEGER NOT NULL REFERENCES users(id),
		content TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		is_deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(user_id, left_at);
	CREATE INDEX IF NOT EXISTS idx_participants_conversation ON participants(conversation_id, left_at);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateUser creates a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, username, email, passwordHash, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *SQLiteStore) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	u := &models.User{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, password_hash, display_name, avatar_url, bio, status, created_at, updated_at
		FROM users WHERE `+where,
		arg,
	).Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.AvatarURL,
		&u.Bio,
		&u.Status,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getUser(ctx, "email = ?", email)
}

// SearchUsersByDisplayName finds users whose display name starts with the
// given prefix.
func (s *SQLiteStore) SearchUsersByDisplayName(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, display_name, avatar_url, status
		FROM users
		WHERE display_name LIKE ?
		ORDER BY display_name
		LIMIT ?
	`, prefix+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Status); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpdateUserProfile updates the mutable profile fields of a user.
func (s *SQLiteStore) UpdateUserProfile(ctx context.Context, id int64, username string, displayName, bio, avatarURL *string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET username = ?, display_name = ?, bio = ?, avatar_url = ?, updated_at = ?
		WHERE id = ?
	`, username, displayName, bio, avatarURL, time.Now().UTC(), id)
	return err
}

// UpdateUserPassword replaces a user's password hash.
func (s *SQLiteStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?
	`, passwordHash, time.Now().UTC(), id)
	return err
}

// UpdateUserStatus sets a user's presence status.
func (s *SQLiteStore) UpdateUserStatus(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now().UTC(), id)
	return err
}

// CreateConversation creates a new conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, name *string, isGroup bool, createdBy int64) (*models.Conversation, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (name, is_group, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, name, isGroup, createdBy, now, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetConversation(ctx, id)
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, is_group, created_by, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(
		&c.ID,
		&c.Name,
		&c.IsGroup,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListConversationsForUser returns every conversation where the user has an
// active participant row, newest activity first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID int64) ([]models.ConversationDetails, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_by, c.created_at, c.updated_at,
		       COUNT(p.id) AS participant_count
		FROM conversations c
		JOIN participants p ON c.id = p.conversation_id AND p.left_at IS NULL
		WHERE c.id IN (
			SELECT conversation_id
			FROM participants
			WHERE user_id = ? AND left_at IS NULL
		)
		GROUP BY c.id
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []models.ConversationDetails
	for rows.Next() {
		var d models.ConversationDetails
		err := rows.Scan(
			&d.ID,
			&d.Name,
			&d.IsGroup,
			&d.CreatedBy,
			&d.CreatedAt,
			&d.UpdatedAt,
			&d.ParticipantCount,
		)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, d)
	}
	return conversations, rows.Err()
}

// ListActiveParticipants returns up to limit active participants of a
// conversation.
func (s *SQLiteStore) ListActiveParticipants(ctx context.Context, conversationID int64, limit int) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.display_name, u.avatar_url, u.status
		FROM users u
		JOIN participants p ON u.id = p.user_id
		WHERE p.conversation_id = ? AND p.left_at IS NULL
		ORDER BY p.joined_at
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarURL, &u.Status); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// LatestMessage returns the most recent non-deleted message of a
// conversation, or nil if it has none.
func (s *SQLiteStore) LatestMessage(ctx context.Context, conversationID int64) (*models.Message, error) {
	m := &models.Message{}
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.sent_at, m.is_deleted,
		       u.username, u.display_name, u.avatar_url
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = ? AND m.is_deleted = 0
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT 1
	`, conversationID).Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.Content,
		&m.SentAt,
		&m.IsDeleted,
		&m.SenderName,
		&m.SenderDisplayName,
		&m.SenderAvatarURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// TouchConversation bumps the conversation's updated_at timestamp.
func (s *SQLiteStore) TouchConversation(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	return err
}

// AddParticipant adds a user to a conversation.
func (s *SQLiteStore) AddParticipant(ctx context.Context, conversationID, userID int64, admin bool) (*models.Participant, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO participants (conversation_id, user_id, joined_at, is_admin)
		VALUES (?, ?, ?, ?)
	`, conversationID, userID, now, admin)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	p := &models.Participant{}
	err = s.db.QueryRowContext(ctx, `
		SELECT id, user_id, conversation_id, joined_at, left_at, is_admin
		FROM participants WHERE id = ?
	`, id).Scan(
		&p.ID,
		&p.UserID,
		&p.ConversationID,
		&p.JoinedAt,
		&p.LeftAt,
		&p.IsAdmin,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// RemoveParticipant marks the user's active participant row as left.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, conversationID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE participants SET left_at = ?
		WHERE conversation_id = ? AND user_id = ? AND left_at IS NULL
	`, time.Now().UTC(), conversationID, userID)
	return err
}

// IsActiveParticipant reports whether the user has an active participant row
// in the conversation.
func (s *SQLiteStore) IsActiveParticipant(ctx context.Context, userID, conversationID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM participants
		WHERE conversation_id = ? AND user_id = ? AND left_at IS NULL
	`, conversationID, userID).Scan(&count)
	return count > 0, err
}

// CreateMessage inserts a message and bumps the conversation's updated_at in
// the same transaction.
func (s *SQLiteStore) CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (*models.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, sent_at)
		VALUES (?, ?, ?, ?)
	`, conversationID, senderID, content, now)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?
	`, now, conversationID)
	if err != nil {
		return nil, err
	}

	m := &models.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		SentAt:         now,
	}
	err = tx.QueryRowContext(ctx, `
		SELECT username, display_name, avatar_url FROM users WHERE id = ?
	`, senderID).Scan(&m.SenderName, &m.SenderDisplayName, &m.SenderAvatarURL)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns up to limit non-deleted messages of a conversation in
// chronological order. A beforeID > 0 pages backwards through history.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID int64) ([]models.Message, error) {
	before := beforeID
	if before <= 0 {
		before = math.MaxInt64
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT m.id, m.conversation_id, m.sender_id, m.content, m.sent_at, m.is_deleted,
			       u.username, u.display_name, u.avatar_url
			FROM messages m
			JOIN users u ON m.sender_id = u.id
			WHERE m.conversation_id = ? AND m.is_deleted = 0 AND m.id < ?
			ORDER BY m.sent_at DESC, m.id DESC
			LIMIT ?
		)
		ORDER BY sent_at ASC, id ASC
	`, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectMessages(rows)
}

// ListMessagesAfter returns the non-deleted messages with id greater than
// afterID, oldest first.
func (s *SQLiteStore) ListMessagesAfter(ctx context.Context, conversationID, afterID int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.content, m.sent_at, m.is_deleted,
		       u.username, u.display_name, u.avatar_url
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = ? AND m.is_deleted = 0 AND m.id > ?
		ORDER BY m.sent_at ASC, m.id ASC
	`, conversationID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectMessages(rows)
}

func (s *SQLiteStore) collectMessages(rows *sql.Rows) ([]models.Message, error) {
	var messages []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.SenderID,
			&m.Content,
			&m.SentAt,
			&m.IsDeleted,
			&m.SenderName,
			&m.SenderDisplayName,
			&m.SenderAvatarURL,
		)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteMessage soft-deletes a message. Returns false when the message does
// not exist or the caller is not its sender.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, messageID, senderID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET is_deleted = 1
		WHERE id = ? AND sender_id = ?
	`, messageID, senderID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
