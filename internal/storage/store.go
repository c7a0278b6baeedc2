package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const (
	defaultBusyTimeout = 5000
	maxRecentLimit     = 1000
)

// ErrStoreUnavailable wraps every failure that comes back from the database so
// callers can treat persistence as best effort.
var ErrStoreUnavailable = errors.New("history store unavailable")

// Store wraps the SQLite handle that keeps per-room chat history.
type Store struct {
	db *sql.DB
}

// Message is one persisted chat line. The JSON names are the wire shape used
// when history is sent to a joining connection.
type Message struct {
	Room        string `json:"RoomID"`
	SentAt      int64  `json:"Timestamp"`
	Username    string `json:"User"`
	Text        string `json:"Text"`
	DisplayTime string `json:"TimeFormatted"`
}

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "roomchat.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id TEXT NOT NULL,
			sent_at INTEGER NOT NULL,
			username TEXT NOT NULL,
			body TEXT NOT NULL,
			time_formatted TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS messages_room_sent_at ON messages(room_id, sent_at);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AppendMessage persists a single chat message.
func (s *Store) AppendMessage(ctx context.Context, msg Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(room_id, sent_at, username, body, time_formatted) VALUES(?, ?, ?, ?, ?)`,
		msg.Room, msg.SentAt, msg.Username, msg.Text, msg.DisplayTime)
	if err != nil {
		return fmt.Errorf("%w: append message: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// RecentMessages returns the newest limit messages of a room. With ascending set
// the result is ordered oldest first, otherwise newest first.
func (s *Store) RecentMessages(ctx context.Context, room string, limit int, ascending bool) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}
	query := `
		SELECT room_id, sent_at, username, body, time_formatted
		FROM messages
		WHERE room_id = ?
		ORDER BY sent_at DESC, id DESC
		LIMIT ?`
	if ascending {
		query = `
		SELECT room_id, sent_at, username, body, time_formatted FROM (
			SELECT id, room_id, sent_at, username, body, time_formatted
			FROM messages
			WHERE room_id = ?
			ORDER BY sent_at DESC, id DESC
			LIMIT ?
		) ORDER BY sent_at ASC, id ASC`
	}
	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: recent messages: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.Room, &msg.SentAt, &msg.Username, &msg.Text, &msg.DisplayTime); err != nil {
			return nil, fmt.Errorf("%w: scan message: %w", ErrStoreUnavailable, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: recent messages: %w", ErrStoreUnavailable, err)
	}
	return messages, nil
}

// CountMessages reports how many messages a room has persisted.
func (s *Store) CountMessages(ctx context.Context, room string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM messages WHERE room_id = ?`, room)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("%w: count messages: %w", ErrStoreUnavailable, err)
	}
	return count, nil
}
