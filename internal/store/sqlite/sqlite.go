package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/chatrelay/internal/store"
)

// Schema creates the tables read by the adapter. The chat backend owns writes
// to chats and messages; the gateway only advances message status.
const Schema = `
CREATE TABLE IF NOT EXISTS chats (
	id              TEXT PRIMARY KEY,
	type            TEXT NOT NULL DEFAULT 'individual',
	group_name      TEXT,
	group_admin     TEXT,
	last_message_id TEXT,
	created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chat_participants (
	chat_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	PRIMARY KEY (chat_id, user_id),
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE TABLE IF NOT EXISTS messages (
	id          TEXT PRIMARY KEY,
	chat_id     TEXT NOT NULL,
	sender_id   TEXT NOT NULL,
	receiver_id TEXT NOT NULL,
	content     TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT 'text',
	status      TEXT NOT NULL DEFAULT 'sent',
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (chat_id) REFERENCES chats(id)
);

CREATE INDEX IF NOT EXISTS idx_chat_participants_user ON chat_participants(user_id);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);
`

// statusRank mirrors store.MessageStatus.Rank in SQL.
const statusRank = `CASE status WHEN 'sent' THEN 1 WHEN 'delivered' THEN 2 WHEN 'read' THEN 3 ELSE 0 END`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and ensures the schema exists.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, func(db *sql.DB) error {
		_, err := db.Exec(Schema)
		return err
	})
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema and fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; :memory: requires it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== ChatStore implementation ====

// GetChat retrieves a chat with its participants.
func (s *SQLiteStore) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	query := `
		SELECT id, type, COALESCE(group_name, ''), COALESCE(group_admin, ''),
		       COALESCE(last_message_id, ''), created_at, updated_at
		FROM chats
		WHERE id = ?
	`
	var chat store.Chat
	var chatType string
	err := s.db.QueryRowContext(ctx, query, chatID).Scan(
		&chat.ID,
		&chatType,
		&chat.GroupName,
		&chat.GroupAdmin,
		&chat.LastMessageID,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat %s: %w", chatID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query chat: %w", err)
	}
	chat.Type = store.ChatType(chatType)

	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY user_id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		chat.Participants = append(chat.Participants, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}

	return &chat, nil
}

// IsParticipant checks if userID is a participant of chatID.
func (s *SQLiteStore) IsParticipant(ctx context.Context, chatID, userID string) (bool, error) {
	query := `SELECT 1 FROM chat_participants WHERE chat_id = ? AND user_id = ?`
	var one int
	err := s.db.QueryRowContext(ctx, query, chatID, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query participant: %w", err)
	}
	return true, nil
}

// ==== MessageStore implementation ====

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*store.Message, error) {
	query := `
		SELECT id, chat_id, sender_id, receiver_id, content, type, status, created_at, updated_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	var msgType, status string
	err := s.db.QueryRowContext(ctx, query, messageID).Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&msgType,
		&status,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %s: %w", messageID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	msg.Type = store.MessageType(msgType)
	msg.Status = store.MessageStatus(status)

	return &msg, nil
}

// AdvanceStatus moves the message status forward, never backwards.
func (s *SQLiteStore) AdvanceStatus(ctx context.Context, messageID string, status store.MessageStatus) (*store.Message, error) {
	if status.Rank() == 0 {
		return nil, fmt.Errorf("advance status: unknown status %q", status)
	}

	query := `
		UPDATE messages
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND ` + statusRank + ` < ?
	`
	result, err := s.db.ExecContext(ctx, query, string(status), messageID, status.Rank())
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}

	msg, err := s.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return msg, store.ErrStatusRegression
	}
	return msg, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
