// Package audit keeps a permanent record of every remote-control command
// the bot executes: who sent it, what it asked for, and how it came out.
// The trail is the answer to "why is the TV offline" a week later.
package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one executed command.
type Entry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ChatID    string    `json:"chat_id"`
	Command   string    `json:"command"`
	Args      string    `json:"args,omitempty"`
	OK        bool      `json:"ok"`
	Message   string    `json:"message,omitempty"`
}

// Store provides persistent storage for command audit entries.
type Store struct {
	mu            sync.RWMutex
	db            *sql.DB
	retentionDays int
}

// NewStore opens (creating if needed) the audit database at the given path.
func NewStore(dbPath string, retentionDays int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS command_audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp DATETIME NOT NULL,
			chat_id TEXT NOT NULL,
			command TEXT NOT NULL,
			args TEXT,
			ok INTEGER DEFAULT 0,
			message TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_command_audit_timestamp ON command_audit(timestamp);
		CREATE INDEX IF NOT EXISTS idx_command_audit_command ON command_audit(command);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}

	if retentionDays <= 0 {
		retentionDays = 90
	}

	return &Store{
		db:            db,
		retentionDays: retentionDays,
	}, nil
}

// Write persists an audit entry. A zero timestamp is filled with the current
// time.
func (s *Store) Write(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO command_audit (timestamp, chat_id, command, args, ok, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Timestamp, e.ChatID, e.Command, e.Args, e.OK, e.Message)

	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Query returns entries matching the given criteria, newest first.
func (s *Store) Query(start, end time.Time, command string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, timestamp, chat_id, command, args, ok, message
		FROM command_audit WHERE timestamp >= ? AND timestamp <= ?`
	args := []any{start, end}

	if command != "" {
		query += " AND command = ?"
		args = append(args, command)
	}

	query += " ORDER BY timestamp DESC, id DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var cmdArgs sql.NullString
		var message sql.NullString

		err := rows.Scan(&e.ID, &e.Timestamp, &e.ChatID, &e.Command, &cmdArgs, &e.OK, &message)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		if cmdArgs.Valid {
			e.Args = cmdArgs.String
		}
		if message.Valid {
			e.Message = message.String
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Recent returns the newest entries, up to limit.
func (s *Store) Recent(limit int) ([]Entry, error) {
	return s.Query(time.Time{}, time.Now().Add(time.Hour), "", limit)
}

// Prune removes entries older than the retention period.
func (s *Store) Prune() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	result, err := s.db.Exec("DELETE FROM command_audit WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit entries: %w", err)
	}

	return result.RowsAffected()
}

// Count returns the total number of entries in the store.
func (s *Store) Count() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM command_audit").Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
