package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/patter-chat/patter/internal/config"
	"github.com/patter-chat/patter/internal/models"
	"github.com/patter-chat/patter/internal/store"
)

// Seeds a handful of demo accounts and conversations for local development.
// Every account gets the password "password123".
func main() {
	cfg := config.Load()
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger()

	ctx := context.Background()

	var db store.DataStore
	if cfg.DatabaseURL != "" {
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pgStore
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sqliteStore
	}
	defer db.Close()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		logger.Fatal().Err(err).Msg("bcrypt failed")
	}

	seedUsers := []struct {
		username string
		email    string
		display  string
	}{
		{"alice", "alice@example.com", "Alice Chen"},
		{"bob", "bob@example.com", "Bob Martinez"},
		{"carol", "carol@example.com", "Carol Okafor"},
		{"dave", "dave@example.com", "Dave Lindgren"},
	}

	users := make([]*models.User, 0, len(seedUsers))
	for _, su := range seedUsers {
		existing, err := db.GetUserByEmail(ctx, su.email)
		if err != nil {
			logger.Fatal().Err(err).Msg("user lookup failed")
		}
		if existing != nil {
			logger.Info().Str("email", su.email).Msg("user already exists, skipping")
			users = append(users, existing)
			continue
		}

		user, err := db.CreateUser(ctx, su.username, su.email, string(hash))
		if err != nil {
			logger.Fatal().Err(err).Str("username", su.username).Msg("create user failed")
		}
		display := su.display
		if err := db.UpdateUserProfile(ctx, user.ID, user.Username, &display, nil, nil); err != nil {
			logger.Fatal().Err(err).Msg("set display name failed")
		}
		users = append(users, user)
		logger.Info().Str("username", su.username).Int64("id", user.ID).Msg("created user")
	}

	// One group conversation with everyone, one direct conversation.
	groupName := "Weekend Plans"
	group, err := db.CreateConversation(ctx, &groupName, true, users[0].ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("create group conversation failed")
	}
	for i, u := range users {
		if _, err := db.AddParticipant(ctx, group.ID, u.ID, i == 0); err != nil {
			logger.Fatal().Err(err).Msg("add participant failed")
		}
	}

	direct, err := db.CreateConversation(ctx, nil, false, users[0].ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("create direct conversation failed")
	}
	for i, u := range users[:2] {
		if _, err := db.AddParticipant(ctx, direct.ID, u.ID, i == 0); err != nil {
			logger.Fatal().Err(err).Msg("add participant failed")
		}
	}

	groupLines := []struct {
		sender  int
		content string
	}{
		{0, "Anyone up for hiking this weekend?"},
		{1, "I'm in. Saturday morning?"},
		{2, "Saturday works for me too"},
		{3, "Count me in, I'll bring snacks"},
		{0, "Perfect, let's meet at the trailhead at 9"},
	}
	for _, line := range groupLines {
		if _, err := db.CreateMessage(ctx, group.ID, users[line.sender].ID, line.content); err != nil {
			logger.Fatal().Err(err).Msg("seed message failed")
		}
	}

	if _, err := db.CreateMessage(ctx, direct.ID, users[1].ID, "Hey, did you see the group chat?"); err != nil {
		logger.Fatal().Err(err).Msg("seed message failed")
	}
	if _, err := db.CreateMessage(ctx, direct.ID, users[0].ID, "Yeah! Looking forward to it"); err != nil {
		logger.Fatal().Err(err).Msg("seed message failed")
	}

	fmt.Printf("seeded %d users, conversations %d and %d\n", len(users), group.ID, direct.ID)
}
