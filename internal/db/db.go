package db

import (
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens the database connection, tunes the pool and runs migrations.
func Connect(dsn string) (*sqlx.DB, error) {
	database, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(25)
	database.SetConnMaxLifetime(5 * time.Minute)

	if err := runMigrations(database); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return database, nil
}

func runMigrations(database *sqlx.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            photo_url TEXT NOT NULL DEFAULT '',
            is_premium BOOLEAN NOT NULL DEFAULT FALSE,
            last_active TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS connections (
            id BIGSERIAL PRIMARY KEY,
            requester_id BIGINT NOT NULL REFERENCES users(id),
            receiver_id BIGINT NOT NULL REFERENCES users(id),
            status TEXT NOT NULL DEFAULT 'pending',
            message TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            request_expires_at TIMESTAMPTZ NOT NULL,
            chat_expires_at TIMESTAMPTZ,
            CHECK (requester_id <> receiver_id)
        );`,
		// One connection per unordered pair: {A->B} and {B->A} collide.
		`CREATE UNIQUE INDEX IF NOT EXISTS connections_pair_idx
            ON connections (LEAST(requester_id, receiver_id), GREATEST(requester_id, receiver_id));`,
		`CREATE INDEX IF NOT EXISTS connections_receiver_status_idx ON connections (receiver_id, status);`,
		`CREATE INDEX IF NOT EXISTS connections_requester_status_idx ON connections (requester_id, status);`,
		`CREATE INDEX IF NOT EXISTS connections_chat_expires_idx ON connections (chat_expires_at);`,
		`CREATE TABLE IF NOT EXISTS messages (
            id BIGSERIAL PRIMARY KEY,
            connection_id BIGINT NOT NULL REFERENCES connections(id) ON DELETE CASCADE,
            sender_id BIGINT NOT NULL,
            receiver_id BIGINT NOT NULL,
            content TEXT NOT NULL,
            is_media BOOLEAN NOT NULL DEFAULT FALSE,
            media_url TEXT,
            media_type TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMPTZ
        );`,
		`CREATE INDEX IF NOT EXISTS messages_connection_created_idx ON messages (connection_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS messages_receiver_unread_idx ON messages (receiver_id, is_read);`,
		`CREATE TABLE IF NOT EXISTS rooms (
            id BIGSERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            created_by BIGINT NOT NULL REFERENCES users(id),
            max_participants INT NOT NULL DEFAULT 5,
            room_type TEXT NOT NULL,
            tags TEXT[] NOT NULL DEFAULT '{}',
            is_private BOOLEAN NOT NULL DEFAULT FALSE,
            scheduled_for TIMESTAMPTZ,
            duration_minutes INT NOT NULL DEFAULT 60,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (max_participants BETWEEN 2 AND 10)
        );`,
		`CREATE INDEX IF NOT EXISTS rooms_created_by_idx ON rooms (created_by);`,
		`CREATE INDEX IF NOT EXISTS rooms_type_active_idx ON rooms (room_type, is_active);`,
		`CREATE INDEX IF NOT EXISTS rooms_scheduled_idx ON rooms (scheduled_for);`,
		// id breaks ties when two joins land on the same joined_at.
		`CREATE TABLE IF NOT EXISTS room_participants (
            id BIGSERIAL,
            room_id BIGINT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
            user_id BIGINT NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (room_id, user_id)
        );`,
	}

	for _, m := range migrations {
		if _, err := database.Exec(m); err != nil {
			return err
		}
	}
	log.Println("database migrations applied")
	return nil
}
