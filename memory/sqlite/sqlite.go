// Package sqlite implements tenun.MemoryBackend on pure-Go SQLite, for
// deployments that need conversations to survive restarts.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tenun "github.com/antaredja/tenun"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// Backend implements tenun.MemoryBackend backed by a local SQLite file.
// All goroutines serialize through a single connection, so read-modify-write
// operations like AppendMessage are atomic without extra locking.
type Backend struct {
	db          *sql.DB
	maxSessions int
	now         func() time.Time
	logger      *slog.Logger
}

var _ tenun.MemoryBackend = (*Backend)(nil)

// New creates a backend at the file given by cfg["path"] (default
// "tenun_memory.db"). cfg key "max_sessions" caps capacity.
func New(cfg tenun.Config, opts ...Option) (*Backend, error) {
	path := cfg.String("path", "tenun_memory.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	b := &Backend{
		db:          db,
		maxSessions: cfg.Int("max_sessions", 0),
		now:         time.Now,
		logger:      tenun.NopLogger(),
	}
	for _, o := range opts {
		o(b)
	}
	b.logger.Debug("sqlite: memory backend opened", "path", path)
	return b, nil
}

// Init creates the session tables.
func (b *Backend) Init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			agent_type TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			last_active INTEGER NOT NULL,
			message_count INTEGER NOT NULL DEFAULT 0,
			metadata TEXT,
			seq INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS session_messages (
			session_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			metadata TEXT,
			PRIMARY KEY (session_id, idx)
		)`,
	}
	for _, ddl := range tables {
		if _, err := b.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	_, _ = b.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active)`)
	return nil
}

// SaveSession replaces the session's messages in one transaction, then
// evicts over-capacity sessions. agentType and userID update the stored
// row only when non-empty; metadata is replaced only when non-nil.
func (b *Backend) SaveSession(ctx context.Context, sessionID string, messages []tenun.ChatMessage, agentType, userID string, metadata map[string]any) error {
	if sessionID == "" {
		return fmt.Errorf("save session: empty session id")
	}

	now := b.now().UnixNano()
	var metaJSON *string
	if metadata != nil {
		data, _ := json.Marshal(metadata)
		v := string(data)
		metaJSON = &v
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_type, user_id, created_at, last_active, message_count, metadata, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sessions))
		ON CONFLICT(id) DO UPDATE SET
			agent_type = CASE WHEN excluded.agent_type <> '' THEN excluded.agent_type ELSE sessions.agent_type END,
			user_id = CASE WHEN excluded.user_id <> '' THEN excluded.user_id ELSE sessions.user_id END,
			last_active = excluded.last_active,
			message_count = excluded.message_count,
			metadata = COALESCE(excluded.metadata, sessions.metadata)`,
		sessionID, agentType, userID, now, now, len(messages), metaJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, msg := range messages {
		if err := insertMessage(ctx, tx, sessionID, i, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return b.evict(ctx)
}

// LoadSession returns the session's messages in insertion order.
func (b *Backend) LoadSession(ctx context.Context, sessionID string) ([]tenun.ChatMessage, bool, error) {
	var exists int
	err := b.db.QueryRowContext(ctx, `SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load session: %w", err)
	}

	msgs, err := b.queryMessages(ctx,
		`SELECT role, content, timestamp, metadata FROM session_messages
		 WHERE session_id = ? ORDER BY idx`, sessionID)
	if err != nil {
		return nil, false, err
	}
	if msgs == nil {
		msgs = []tenun.ChatMessage{}
	}
	return msgs, true, nil
}

// GetSessionInfo returns session metadata without messages.
func (b *Backend) GetSessionInfo(ctx context.Context, sessionID string) (tenun.Session, bool, error) {
	row := b.db.QueryRowContext(ctx,
		`SELECT id, agent_type, user_id, created_at, last_active, message_count, metadata
		 FROM sessions WHERE id = ?`, sessionID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return tenun.Session{}, false, nil
	}
	if err != nil {
		return tenun.Session{}, false, fmt.Errorf("get session info: %w", err)
	}
	return s, true, nil
}

// AppendMessage appends one message, creating the session under agentType
// when absent. Atomic through the single shared connection.
func (b *Backend) AppendMessage(ctx context.Context, sessionID string, msg tenun.ChatMessage, agentType string) error {
	if sessionID == "" {
		return fmt.Errorf("append message: empty session id")
	}

	now := b.now().UnixNano()
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, agent_type, user_id, created_at, last_active, message_count, metadata, seq)
		VALUES (?, ?, '', ?, ?, 1, NULL, (SELECT COALESCE(MAX(seq), 0) + 1 FROM sessions))
		ON CONFLICT(id) DO UPDATE SET
			last_active = excluded.last_active,
			message_count = sessions.message_count + 1`,
		sessionID, agentType, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(idx), -1) + 1 FROM session_messages WHERE session_id = ?`, sessionID,
	).Scan(&next); err != nil {
		return fmt.Errorf("next index: %w", err)
	}
	if err := insertMessage(ctx, tx, sessionID, next, msg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return b.evict(ctx)
}

// GetRecentMessages returns the last n messages in original order.
func (b *Backend) GetRecentMessages(ctx context.Context, sessionID string, n int) ([]tenun.ChatMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	msgs, err := b.queryMessages(ctx,
		`SELECT role, content, timestamp, metadata FROM (
			SELECT * FROM session_messages WHERE session_id = ? ORDER BY idx DESC LIMIT ?
		 ) ORDER BY idx`, sessionID, n)
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteSession removes a session and its messages. Missing ids succeed.
func (b *Backend) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, sessionID); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListSessions filters, sorts most recently active first (insertion
// sequence breaks ties), then pages.
func (b *Backend) ListSessions(ctx context.Context, filter tenun.SessionFilter) ([]tenun.Session, error) {
	query := `SELECT id, agent_type, user_id, created_at, last_active, message_count, metadata
		 FROM sessions WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.AgentType != "" {
		query += ` AND agent_type = ?`
		args = append(args, filter.AgentType)
	}
	query += ` ORDER BY last_active DESC, seq DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []tenun.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// CountSessions returns the number of sessions matching the filter's
// UserID and AgentType. Limit and Offset are ignored.
func (b *Backend) CountSessions(ctx context.Context, filter tenun.SessionFilter) (int, error) {
	query := `SELECT COUNT(*) FROM sessions WHERE 1=1`
	var args []any
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.AgentType != "" {
		query += ` AND agent_type = ?`
		args = append(args, filter.AgentType)
	}

	var n int
	if err := b.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// CleanupExpiredSessions removes sessions whose last activity is older than
// now-maxAge and returns how many were removed.
func (b *Backend) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := b.now().Add(-maxAge).UnixNano()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`DELETE FROM session_messages WHERE session_id IN (SELECT id FROM sessions WHERE last_active < ?)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE last_active < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		b.logger.Debug("expired sessions removed", "count", n)
	}
	return int(n), nil
}

// Close closes the underlying database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// evict removes the least recently active sessions while over capacity.
// The victim set is snapshotted once and both tables are cleared in one
// transaction, so a concurrent save between the deletes cannot leave a
// session row without its messages (or the reverse).
func (b *Backend) evict(ctx context.Context) error {
	if b.maxSessions <= 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM sessions ORDER BY last_active DESC, seq DESC LIMIT -1 OFFSET ?`, b.maxSessions)
	if err != nil {
		return fmt.Errorf("select evictable: %w", err)
	}
	var victims []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan evictable: %w", err)
		}
		victims = append(victims, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate evictable: %w", err)
	}
	if len(victims) == 0 {
		return nil
	}

	placeholders := make([]string, len(victims))
	args := make([]any, len(victims))
	for i, id := range victims {
		placeholders[i] = "?"
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("evict messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id IN (`+in+`)`, args...); err != nil {
		return fmt.Errorf("evict sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit evict: %w", err)
	}

	b.logger.DebugContext(ctx, "sessions evicted", "count", len(victims))
	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, sessionID string, idx int, msg tenun.ChatMessage) error {
	var metaJSON *string
	if len(msg.Metadata) > 0 {
		data, _ := json.Marshal(msg.Metadata)
		v := string(data)
		metaJSON = &v
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO session_messages (session_id, idx, role, content, timestamp, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, idx, msg.Role, msg.Content, msg.Timestamp.UnixNano(), metaJSON,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (b *Backend) queryMessages(ctx context.Context, query string, args ...any) ([]tenun.ChatMessage, error) {
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []tenun.ChatMessage
	for rows.Next() {
		var m tenun.ChatMessage
		var ts int64
		var metaJSON sql.NullString
		if err := rows.Scan(&m.Role, &m.Content, &ts, &metaJSON); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp = time.Unix(0, ts)
		if metaJSON.Valid {
			_ = json.Unmarshal([]byte(metaJSON.String), &m.Metadata)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (tenun.Session, error) {
	var s tenun.Session
	var createdAt, lastActive int64
	var metaJSON sql.NullString
	err := row.Scan(&s.ID, &s.AgentType, &s.UserID, &createdAt, &lastActive, &s.MessageCount, &metaJSON)
	if err != nil {
		return tenun.Session{}, err
	}
	s.CreatedAt = time.Unix(0, createdAt)
	s.LastActive = time.Unix(0, lastActive)
	if metaJSON.Valid {
		_ = json.Unmarshal([]byte(metaJSON.String), &s.Metadata)
	}
	return s, nil
}
