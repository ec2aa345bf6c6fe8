package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patter-chat/patter/internal/metrics"
	"github.com/patter-chat/patter/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// observe records query latency for the Postgres latency histogram.
func observe(start time.Time) {
	metrics.PostgresLatency.Observe(time.Since(start).Seconds())
}

const userColumns = `id, username, email, password_hash, display_name, avatar_url, bio, status, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// CreateUser creates a new user record.
func (s *PostgresStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	defer observe(time.Now())
	return scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING `+userColumns+`
	`, username, email, passwordHash))
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	defer observe(time.Now())
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = $1
	`, id))
}

// GetUserByEmail retrieves a user by email.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	defer observe(time.Now())
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1
	`, email))
}

// SearchUsersByDisplayName finds users whose display name starts with the
// given prefix.
func (s *PostgresStore) SearchUsersByDisplayName(ctx context.Context, prefix string, limit int) ([]models.User, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, display_name, avatar_url, status
		FROM users
		WHERE display_name LIKE $1
		ORDER BY display_name
		LIMIT $2
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
func (s *PostgresStore) UpdateUserProfile(ctx context.Context, id int64, username string, displayName, bio, avatarURL *string) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET username = $2, display_name = $3, bio = $4, avatar_url = $5, updated_at = NOW()
		WHERE id = $1
	`, id, username, displayName, bio, avatarURL)
	return err
}

// UpdateUserPassword replaces a user's password hash.
func (s *PostgresStore) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, id, passwordHash)
	return err
}

// UpdateUserStatus sets a user's presence status.
func (s *PostgresStore) UpdateUserStatus(ctx context.Context, id int64, status string) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, status)
	return err
}

// CreateConversation creates a new conversation.
func (s *PostgresStore) CreateConversation(ctx context.Context, name *string, isGroup bool, createdBy int64) (*models.Conversation, error) {
	defer observe(time.Now())
	c := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (name, is_group, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, name, is_group, created_by, created_at, updated_at
	`, name, isGroup, createdBy).Scan(
		&c.ID,
		&c.Name,
		&c.IsGroup,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetConversation retrieves a conversation by ID.
func (s *PostgresStore) GetConversation(ctx context.Context, id int64) (*models.Conversation, error) {
	defer observe(time.Now())
	c := &models.Conversation{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, is_group, created_by, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id).Scan(
		&c.ID,
		&c.Name,
		&c.IsGroup,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// ListConversationsForUser returns every conversation where the user has an
// active participant row, newest activity first. Participants and last
// message are left for the caller to attach.
func (s *PostgresStore) ListConversationsForUser(ctx context.Context, userID int64) ([]models.ConversationDetails, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_by, c.created_at, c.updated_at,
		       COUNT(p.id) AS participant_count
		FROM conversations c
		JOIN participants p ON c.id = p.conversation_id AND p.left_at IS NULL
		WHERE c.id IN (
			SELECT conversation_id
			FROM participants
			WHERE user_id = $1 AND left_at IS NULL
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
func (s *PostgresStore) ListActiveParticipants(ctx context.Context, conversationID int64, limit int) ([]models.User, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT u.id, u.username, u.display_name, u.avatar_url, u.status
		FROM users u
		JOIN participants p ON u.id = p.user_id
		WHERE p.conversation_id = $1 AND p.left_at IS NULL
		ORDER BY p.joined_at
		LIMIT $2
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

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.sent_at, m.is_deleted,
	       u.username, u.display_name, u.avatar_url`

func scanMessage(row pgx.Row) (*models.Message, error) {
	m := &models.Message{}
	err := row.Scan(
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
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// LatestMessage returns the most recent non-deleted message of a
// conversation, or nil if it has none.
func (s *PostgresStore) LatestMessage(ctx context.Context, conversationID int64) (*models.Message, error) {
	defer observe(time.Now())
	return scanMessage(s.pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = $1 AND m.is_deleted = FALSE
		ORDER BY m.sent_at DESC, m.id DESC
		LIMIT 1
	`, conversationID))
}

// TouchConversation bumps the conversation's updated_at timestamp.
func (s *PostgresStore) TouchConversation(ctx context.Context, id int64) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		UPDATE conversations SET updated_at = NOW() WHERE id = $1
	`, id)
	return err
}

// AddParticipant adds a user to a conversation. Rejoining after leaving
// creates a fresh row; the old row keeps its left_at for history.
func (s *PostgresStore) AddParticipant(ctx context.Context, conversationID, userID int64, admin bool) (*models.Participant, error) {
	defer observe(time.Now())
	p := &models.Participant{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO participants (conversation_id, user_id, is_admin)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, conversation_id, joined_at, left_at, is_admin
	`, conversationID, userID, admin).Scan(
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
func (s *PostgresStore) RemoveParticipant(ctx context.Context, conversationID, userID int64) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		UPDATE participants SET left_at = NOW()
		WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
	`, conversationID, userID)
	return err
}

// IsActiveParticipant reports whether the user has an active participant row
// in the conversation.
func (s *PostgresStore) IsActiveParticipant(ctx context.Context, userID, conversationID int64) (bool, error) {
	defer observe(time.Now())
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM participants
			WHERE conversation_id = $1 AND user_id = $2 AND left_at IS NULL
		)
	`, conversationID, userID).Scan(&exists)
	return exists, err
}

// CreateMessage inserts a message and bumps the conversation's updated_at in
// the same transaction, so list-scope streams observe the new activity.
func (s *PostgresStore) CreateMessage(ctx context.Context, conversationID, senderID int64, content string) (*models.Message, error) {
	defer observe(time.Now())
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	m := &models.Message{}
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, conversation_id, sender_id, content, sent_at, is_deleted
	`, conversationID, senderID, content).Scan(
		&m.ID,
		&m.ConversationID,
		&m.SenderID,
		&m.Content,
		&m.SentAt,
		&m.IsDeleted,
	)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE conversations SET updated_at = NOW() WHERE id = $1
	`, conversationID)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRow(ctx, `
		SELECT username, display_name, avatar_url FROM users WHERE id = $1
	`, senderID).Scan(&m.SenderName, &m.SenderDisplayName, &m.SenderAvatarURL)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// ListMessages returns up to limit non-deleted messages of a conversation in
// chronological order. A beforeID > 0 pages backwards through history.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID int64) ([]models.Message, error) {
	defer observe(time.Now())
	before := beforeID
	if before <= 0 {
		before = math.MaxInt64
	}
	rows, err := s.pool.Query(ctx, `
		SELECT * FROM (
			SELECT `+messageColumns+`
			FROM messages m
			JOIN users u ON m.sender_id = u.id
			WHERE m.conversation_id = $1 AND m.is_deleted = FALSE AND m.id < $2
			ORDER BY m.sent_at DESC, m.id DESC
			LIMIT $3
		) page
		ORDER BY sent_at ASC, id ASC
	`, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

// ListMessagesAfter returns the non-deleted messages with id greater than
// afterID, oldest first. This is the message-scope poll query.
func (s *PostgresStore) ListMessagesAfter(ctx context.Context, conversationID, afterID int64) ([]models.Message, error) {
	defer observe(time.Now())
	rows, err := s.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages m
		JOIN users u ON m.sender_id = u.id
		WHERE m.conversation_id = $1 AND m.is_deleted = FALSE AND m.id > $2
		ORDER BY m.sent_at ASC, m.id ASC
	`, conversationID, afterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.Message, error) {
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
func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID, senderID int64) (bool, error) {
	defer observe(time.Now())
	tag, err := s.pool.Exec(ctx, `
		UPDATE messages SET is_deleted = TRUE
		WHERE id = $1 AND sender_id = $2
	`, messageID, senderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
