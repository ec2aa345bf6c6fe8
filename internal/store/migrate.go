package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// pgSchema is the canonical PostgreSQL schema. Statements are idempotent so
// migrations can run on every startup.
const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	display_name TEXT,
	avatar_url TEXT,
	bio TEXT,
	status TEXT NOT NULL DEFAULT 'offline',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversations (
	id BIGSERIAL PRIMARY KEY,
	name TEXT,
	is_group BOOLEAN NOT NULL DEFAULT FALSE,
	created_by BIGINT NOT NULL REFERENCES users(id),
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS participants (
	id BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL REFERENCES users(id),
	conversation_id BIGINT NOT NULL REFERENCES conversations(id),
	joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	left_at TIMESTAMPTZ,
	is_admin BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	conversation_id BIGINT NOT NULL REFERENCES conversations(id),
	sender_id BIGINT NOT NULL REFERENCES users(id),
	content TEXT NOT NULL,
	sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_participants_user_active
	ON participants(user_id) WHERE left_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_participants_conversation_active
	ON participants(conversation_id) WHERE left_at IS NULL;
CREATE INDEX IF NOT EXISTS idx_messages_conversation_id
	ON messages(conversation_id, id);
CREATE INDEX IF NOT EXISTS idx_conversations_updated_at
	ON conversations(updated_at);
`

// RunMigrations applies the schema to the configured PostgreSQL database.
func RunMigrations(databaseURL string) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	_, err = conn.Exec(ctx, pgSchema)
	return err
}
