// ABOUTME: Local SQLite ledger of sent and received messages using modernc.org/sqlite
// ABOUTME: Implements the bridge MessageRecorder interface with automatic schema creation

package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/2389/coven-bridge/internal/bridge"
)

// Entry is one recorded message.
type Entry struct {
	ID        int64
	Direction string
	Text      string
	MessageID string
	At        time.Time
}

// Store persists message history to a local SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the history database at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func Open(path string) (*Store, error) {
	logger := slog.Default().With("component", "history")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("history store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			direction  TEXT NOT NULL,
			content    TEXT NOT NULL,
			message_id TEXT,
			created_at DATETIME NOT NULL,

			CHECK (direction IN ('outbound', 'inbound'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_created
			ON messages(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record saves one message. Implements the bridge.MessageRecorder interface.
func (s *Store) Record(ctx context.Context, rec bridge.Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (direction, content, message_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		rec.Direction, rec.Text, rec.MessageID, rec.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, direction, content, COALESCE(message_id, ''), created_at
		 FROM messages
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Direction, &e.Text, &e.MessageID, &e.At); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
