// Package history persists completed chat exchanges to SQLite, keyed by
// request id and the request's user field. Writes are asynchronous so the
// response path never blocks on disk.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Exchange is one completed chat completion.
type Exchange struct {
	// RequestID is the gateway request id of the exchange.
	RequestID string

	// User is the request's user field, possibly empty.
	User string

	// Model is the requested model id.
	Model string

	// ServerID identifies the downstream server that answered.
	ServerID string

	// RequestBody is the final request JSON sent downstream.
	RequestBody string

	// ResponseBody is the body returned to the client. Empty for streamed
	// responses, which are relayed without buffering.
	ResponseBody string

	// ToolCalled names the MCP tool invoked during the exchange, if any.
	ToolCalled string

	// CreatedAt is when the exchange completed.
	CreatedAt time.Time
}

// Store is the SQLite-backed chat-history table.
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the history database at path.
func NewStore(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chat_history (
		request_id    TEXT PRIMARY KEY,
		user          TEXT NOT NULL DEFAULT '',
		model         TEXT NOT NULL DEFAULT '',
		server_id     TEXT NOT NULL DEFAULT '',
		request_body  TEXT NOT NULL,
		response_body TEXT NOT NULL DEFAULT '',
		tool_called   TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user);
	CREATE INDEX IF NOT EXISTS idx_chat_history_created ON chat_history(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save inserts or replaces one exchange.
func (s *Store) Save(ctx context.Context, e *Exchange) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO chat_history
		(request_id, user, model, server_id, request_body, response_body, tool_called, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.User, e.Model, e.ServerID,
		e.RequestBody, e.ResponseBody, e.ToolCalled, createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save chat history: %w", err)
	}
	return nil
}

// ByUser returns the most recent exchanges for a user, newest first.
func (s *Store) ByUser(ctx context.Context, user string, limit int) ([]Exchange, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, user, model, server_id, request_body, response_body, tool_called, created_at
		FROM chat_history WHERE user = ?
		ORDER BY created_at DESC LIMIT ?`, user, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var e Exchange
		var createdAt int64
		if err := rows.Scan(&e.RequestID, &e.User, &e.Model, &e.ServerID,
			&e.RequestBody, &e.ResponseBody, &e.ToolCalled, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat history row: %w", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
