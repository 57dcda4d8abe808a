package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/loglens/loglens/pkg/models"
)

// SQLiteStore stores chat entries in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the
// schema exists. Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite serializes writers; a single connection also keeps ":memory:"
	// databases from splitting per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS chat_logs(
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL,
		mode TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create chat_logs: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS chat_logs_created_at ON chat_logs(created_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create chat_logs index: %w", err)
	}

	log.Info().Str("path", path).Msg("chat log store opened")
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AppendChat(ctx context.Context, entry *models.ChatLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_logs(id, prompt, response, mode, error, created_at) VALUES(?,?,?,?,?,?)`,
		entry.ID, entry.Prompt, entry.Response, string(entry.Mode), entry.Error, entry.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("store: insert chat log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentChats(ctx context.Context, limit int) ([]models.ChatLogEntry, error) {
	return s.query(ctx,
		`SELECT id, prompt, response, mode, error, created_at FROM chat_logs ORDER BY seq DESC LIMIT ?`,
		normalizeLimit(limit))
}

func (s *SQLiteStore) ChatsBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ChatLogEntry, error) {
	return s.query(ctx,
		`SELECT id, prompt, response, mode, error, created_at FROM chat_logs WHERE created_at < ? ORDER BY seq ASC LIMIT ?`,
		cutoff.UnixNano(), normalizeLimit(limit))
}

// deleteBatch bounds the number of bound parameters per statement.
const deleteBatch = 500

func (s *SQLiteStore) DeleteChats(ctx context.Context, ids []string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin delete: %w", err)
	}
	defer tx.Rollback()

	total := 0
	for start := 0; start < len(ids); start += deleteBatch {
		end := min(start+deleteBatch, len(ids))
		batch := ids[start:end]
		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(batch)), ",")
		res, err := tx.ExecContext(ctx, `DELETE FROM chat_logs WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return 0, fmt.Errorf("store: delete chat logs: %w", err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit delete: %w", err)
	}
	return total, nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]models.ChatLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query chat logs: %w", err)
	}
	defer rows.Close()

	entries := []models.ChatLogEntry{}
	for rows.Next() {
		var (
			e    models.ChatLogEntry
			mode string
			ts   int64
		)
		if err := rows.Scan(&e.ID, &e.Prompt, &e.Response, &mode, &e.Error, &ts); err != nil {
			return nil, fmt.Errorf("store: scan chat log: %w", err)
		}
		e.Mode = models.ProviderMode(mode)
		e.CreatedAt = time.Unix(0, ts).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate chat logs: %w", err)
	}
	return entries, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
