// Package cache is the SQLite-backed offline mirror. It stores whole
// collections as JSON blobs under well-known keys, which keeps reads and
// writes atomic per collection and makes a corrupt blob recoverable by
// simply starting over with an empty one.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nimbleworks/chatrelay/internal/domain"
)

const (
	keyConversations = "offline_conversations"
	keyConfigLogs    = "chatConfigurationLogs"

	messagesKeyPrefix = "offline_messages_"

	// Older configuration log entries are dropped past this count.
	maxConfigLogs = 100
)

func messagesKey(sessionID string) string {
	return messagesKeyPrefix + sessionID
}

// Cache is the SQLite offline store.
type Cache struct {
	db *sql.DB
}

// New opens (or creates) the cache database at dsn.
func New(dsn string) (*Cache, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS pending_operations (
			local_id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			session_id TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS id_correlations (
			local_id TEXT PRIMARY KEY,
			remote_id TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := c.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

func (c *Cache) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (c *Cache) put(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value) VALUES (?, ?)`, key, value)
	return err
}

// decode unmarshals a cached collection into out. A corrupt payload is
// logged and treated as absent so the caller falls back to an empty
// collection instead of failing.
func decode(key, raw string, out interface{}) bool {
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		log.Printf("WARN: discarding corrupt cache entry %s: %v", key, err)
		return false
	}
	return true
}

// ListConversations returns all cached sessions, most recent first.
func (c *Cache) ListConversations(ctx context.Context) ([]domain.Session, error) {
	raw, ok, err := c.get(ctx, keyConversations)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Session{}, nil
	}
	var sessions []domain.Session
	if !decode(keyConversations, raw, &sessions) {
		return []domain.Session{}, nil
	}
	return sessions, nil
}

// SaveConversations replaces the cached session list.
func (c *Cache) SaveConversations(ctx context.Context, sessions []domain.Session) error {
	payload, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal conversations: %w", err)
	}
	return c.put(ctx, keyConversations, string(payload))
}

// ListMessages returns the cached messages for a session, oldest first.
func (c *Cache) ListMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	key := messagesKey(sessionID)
	raw, ok, err := c.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Message{}, nil
	}
	var messages []domain.Message
	if !decode(key, raw, &messages) {
		return []domain.Message{}, nil
	}
	return messages, nil
}

// SaveMessages replaces a session's cached message list.
func (c *Cache) SaveMessages(ctx context.Context, sessionID string, messages []domain.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	return c.put(ctx, messagesKey(sessionID), string(payload))
}

// DeleteConversation removes a session and its message blob from the cache.
func (c *Cache) DeleteConversation(ctx context.Context, sessionID string) error {
	sessions, err := c.ListConversations(ctx)
	if err != nil {
		return err
	}
	kept := sessions[:0]
	for _, s := range sessions {
		if s.SessionID != sessionID {
			kept = append(kept, s)
		}
	}
	if err := c.SaveConversations(ctx, kept); err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, messagesKey(sessionID))
	return err
}

// RenameMessagesKey moves a session's cached messages from a locally minted
// id to its server-assigned id.
func (c *Cache) RenameMessagesKey(ctx context.Context, oldSessionID, newSessionID string) error {
	messages, err := c.ListMessages(ctx, oldSessionID)
	if err != nil {
		return err
	}
	for i := range messages {
		messages[i].SessionID = newSessionID
	}
	if err := c.SaveMessages(ctx, newSessionID, messages); err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, messagesKey(oldSessionID))
	return err
}

// AppendConfigLog records one send's resolved configuration, keeping only
// the most recent entries.
func (c *Cache) AppendConfigLog(ctx context.Context, entry domain.ConfigLogEntry) error {
	logs, err := c.ConfigLogs(ctx)
	if err != nil {
		return err
	}
	logs = append(logs, entry)
	if len(logs) > maxConfigLogs {
		logs = logs[len(logs)-maxConfigLogs:]
	}
	payload, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("failed to marshal config logs: %w", err)
	}
	return c.put(ctx, keyConfigLogs, string(payload))
}

// ConfigLogs returns the retained configuration log entries, oldest first.
func (c *Cache) ConfigLogs(ctx context.Context) ([]domain.ConfigLogEntry, error) {
	raw, ok, err := c.get(ctx, keyConfigLogs)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.ConfigLogEntry{}, nil
	}
	var logs []domain.ConfigLogEntry
	if !decode(keyConfigLogs, raw, &logs) {
		return []domain.ConfigLogEntry{}, nil
	}
	return logs, nil
}

// EnqueuePending records a locally created entity awaiting remote creation.
// Re-enqueueing the same local id is harmless.
func (c *Cache) EnqueuePending(ctx context.Context, op domain.PendingOperation) error {
	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pending_operations (local_id, kind, session_id, created_at) VALUES (?, ?, ?, ?)`,
		op.LocalID, op.Kind, op.SessionID, createdAt)
	return err
}

// PendingOperations returns queued operations with conversations ahead of
// messages, then in creation order. Messages depend on their conversation
// existing remotely; nothing depends on a message.
func (c *Cache) PendingOperations(ctx context.Context) ([]domain.PendingOperation, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT local_id, kind, session_id, created_at FROM pending_operations
		 ORDER BY CASE kind WHEN 'conversation' THEN 0 ELSE 1 END, created_at ASC, local_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ops []domain.PendingOperation
	for rows.Next() {
		var op domain.PendingOperation
		var sessionID sql.NullString
		if err := rows.Scan(&op.LocalID, &op.Kind, &sessionID, &op.CreatedAt); err != nil {
			return nil, err
		}
		if sessionID.Valid {
			op.SessionID = sessionID.String
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// MarkSynced removes a pending operation and records the local to remote id
// correlation so later queue entries can be rewritten.
func (c *Cache) MarkSynced(ctx context.Context, localID, remoteID string) error {
	if _, err := c.db.ExecContext(ctx,
		`DELETE FROM pending_operations WHERE local_id = ?`, localID); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO id_correlations (local_id, remote_id) VALUES (?, ?)`,
		localID, remoteID)
	return err
}

// DropPending removes a pending operation without recording a correlation,
// for entities deleted before they ever reached the remote store.
func (c *Cache) DropPending(ctx context.Context, localID string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM pending_operations WHERE local_id = ?`, localID)
	return err
}

// RemoteID resolves a locally minted id to its server-assigned id. Returns
// the input unchanged if no correlation exists.
func (c *Cache) RemoteID(ctx context.Context, localID string) (string, error) {
	var remoteID string
	err := c.db.QueryRowContext(ctx,
		`SELECT remote_id FROM id_correlations WHERE local_id = ?`, localID).Scan(&remoteID)
	if err == sql.ErrNoRows {
		return localID, nil
	}
	if err != nil {
		return "", err
	}
	return remoteID, nil
}
