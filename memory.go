package tenun

import (
	"context"
	"time"
)

// SessionFilter narrows and pages ListSessions results.
type SessionFilter struct {
	UserID    string
	AgentType string
	Limit     int // 0 means no limit
	Offset    int
}

// MemoryBackend abstracts conversation persistence. Implementations must be
// safe for concurrent use; every read-modify-write (notably AppendMessage)
// must be atomic with respect to other mutations of the same session.
type MemoryBackend interface {
	// SaveSession replaces the full message list of a session. agentType and
	// userID are applied only when non-empty; metadata is replaced wholesale
	// when non-nil and left untouched when nil, never merged. An empty
	// session id is an error. Saving may evict the least recently active
	// sessions when a capacity limit is configured.
	SaveSession(ctx context.Context, sessionID string, messages []ChatMessage, agentType, userID string, metadata map[string]any) error

	// LoadSession returns the messages of a session. The bool distinguishes
	// an absent session (false) from an existing session with no messages.
	LoadSession(ctx context.Context, sessionID string) ([]ChatMessage, bool, error)

	// GetSessionInfo returns session metadata without loading messages.
	GetSessionInfo(ctx context.Context, sessionID string) (Session, bool, error)

	// AppendMessage atomically appends one message to a session, creating
	// the session under agentType if it does not exist.
	AppendMessage(ctx context.Context, sessionID string, msg ChatMessage, agentType string) error

	// GetRecentMessages returns the last n messages in original order.
	GetRecentMessages(ctx context.Context, sessionID string, n int) ([]ChatMessage, error)

	// DeleteSession removes a session. Deleting a missing session is a
	// success; the bool is true either way unless an error occurred.
	DeleteSession(ctx context.Context, sessionID string) (bool, error)

	// ListSessions returns sessions sorted by last activity, most recent
	// first, after filtering and before paging.
	ListSessions(ctx context.Context, filter SessionFilter) ([]Session, error)

	// CountSessions returns the cardinality of ListSessions for the same
	// filter. Limit and Offset are ignored.
	CountSessions(ctx context.Context, filter SessionFilter) (int, error)

	// CleanupExpiredSessions removes sessions whose last activity is older
	// than maxAge and returns how many were removed.
	CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error)

	Close() error
}
