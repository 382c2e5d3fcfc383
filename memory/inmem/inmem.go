// Package inmem implements tenun.MemoryBackend entirely in process memory.
// It is the default backend: zero setup, fast, and lost on restart.
package inmem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	tenun "github.com/antaredja/tenun"
)

// Option configures a Backend.
type Option func(*Backend)

// WithMaxSessions caps the number of live sessions. When a save pushes the
// count over the cap, the least recently active sessions are evicted.
// Zero or negative means unlimited.
func WithMaxSessions(n int) Option {
	return func(b *Backend) { b.maxSessions = n }
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithClock overrides the time source. Used by tests to make eviction and
// expiry deterministic.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

type record struct {
	messages []tenun.ChatMessage
	info     tenun.Session
	seq      uint64 // insertion order, tiebreak for equal LastActive
}

// Backend holds sessions in two co-indexed views inside one record map.
// A single mutex guards every read-modify-write, so message order within a
// session is the insertion order under the critical section.
type Backend struct {
	mu          sync.Mutex
	sessions    map[string]*record
	nextSeq     uint64
	maxSessions int
	now         func() time.Time
	logger      *slog.Logger
}

var _ tenun.MemoryBackend = (*Backend)(nil)

// New creates an in-memory backend. cfg key "max_sessions" caps capacity.
func New(cfg tenun.Config, opts ...Option) *Backend {
	b := &Backend{
		sessions:    make(map[string]*record),
		maxSessions: cfg.Int("max_sessions", 0),
		now:         time.Now,
		logger:      tenun.NopLogger(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// SaveSession replaces the session's messages. agentType and userID update
// the session only when non-empty; metadata is replaced wholesale when
// non-nil and kept as-is when nil. Triggers capacity eviction.
func (b *Backend) SaveSession(ctx context.Context, sessionID string, messages []tenun.ChatMessage, agentType, userID string, metadata map[string]any) error {
	if sessionID == "" {
		return fmt.Errorf("save session: empty session id")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	rec, ok := b.sessions[sessionID]
	if !ok {
		b.nextSeq++
		rec = &record{
			info: tenun.Session{ID: sessionID, CreatedAt: now},
			seq:  b.nextSeq,
		}
		b.sessions[sessionID] = rec
	}

	rec.messages = append([]tenun.ChatMessage(nil), messages...)
	rec.info.LastActive = now
	rec.info.MessageCount = len(messages)
	if agentType != "" {
		rec.info.AgentType = agentType
	}
	if userID != "" {
		rec.info.UserID = userID
	}
	if metadata != nil {
		rec.info.Metadata = metadata
	}

	b.evictLocked(ctx)
	return nil
}

// LoadSession returns the session's messages as a copy. The bool is false
// when the session does not exist; an existing session with no messages
// returns an empty, non-nil slice.
func (b *Backend) LoadSession(ctx context.Context, sessionID string) ([]tenun.ChatMessage, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.sessions[sessionID]
	if !ok {
		return nil, false, nil
	}
	out := make([]tenun.ChatMessage, len(rec.messages))
	copy(out, rec.messages)
	return out, true, nil
}

// GetSessionInfo returns session metadata without messages. Reads do not
// refresh recency.
func (b *Backend) GetSessionInfo(ctx context.Context, sessionID string) (tenun.Session, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.sessions[sessionID]
	if !ok {
		return tenun.Session{}, false, nil
	}
	return rec.info, true, nil
}

// AppendMessage appends one message, creating the session under agentType
// when absent. The load-append-store happens entirely under the lock, so
// concurrent appenders interleave whole messages and never lose one.
func (b *Backend) AppendMessage(ctx context.Context, sessionID string, msg tenun.ChatMessage, agentType string) error {
	if sessionID == "" {
		return fmt.Errorf("append message: empty session id")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	rec, ok := b.sessions[sessionID]
	if !ok {
		b.nextSeq++
		rec = &record{
			info: tenun.Session{ID: sessionID, AgentType: agentType, CreatedAt: now},
			seq:  b.nextSeq,
		}
		b.sessions[sessionID] = rec
	}

	rec.messages = append(rec.messages, msg)
	rec.info.LastActive = now
	rec.info.MessageCount = len(rec.messages)

	b.evictLocked(ctx)
	return nil
}

// GetRecentMessages returns the last n messages in original order.
func (b *Backend) GetRecentMessages(ctx context.Context, sessionID string, n int) ([]tenun.ChatMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.sessions[sessionID]
	if !ok || n <= 0 {
		return nil, nil
	}
	msgs := rec.messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]tenun.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// DeleteSession removes a session. Deleting a missing session succeeds.
func (b *Backend) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.sessions, sessionID)
	return true, nil
}

// ListSessions filters, sorts most recently active first, then pages.
// Sessions with equal LastActive order by insertion sequence, newest first,
// so paging is stable.
func (b *Backend) ListSessions(ctx context.Context, filter tenun.SessionFilter) ([]tenun.Session, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	type entry struct {
		info tenun.Session
		seq  uint64
	}
	var entries []entry
	for _, rec := range b.sessions {
		if filter.UserID != "" && rec.info.UserID != filter.UserID {
			continue
		}
		if filter.AgentType != "" && rec.info.AgentType != filter.AgentType {
			continue
		}
		entries = append(entries, entry{info: rec.info, seq: rec.seq})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].info.LastActive.Equal(entries[j].info.LastActive) {
			return entries[i].info.LastActive.After(entries[j].info.LastActive)
		}
		return entries[i].seq > entries[j].seq
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return []tenun.Session{}, nil
		}
		entries = entries[filter.Offset:]
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	out := make([]tenun.Session, len(entries))
	for i, e := range entries {
		out[i] = e.info
	}
	return out, nil
}

// CountSessions returns the number of sessions matching the filter's
// UserID and AgentType. Limit and Offset are ignored.
func (b *Backend) CountSessions(ctx context.Context, filter tenun.SessionFilter) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, rec := range b.sessions {
		if filter.UserID != "" && rec.info.UserID != filter.UserID {
			continue
		}
		if filter.AgentType != "" && rec.info.AgentType != filter.AgentType {
			continue
		}
		n++
	}
	return n, nil
}

// CleanupExpiredSessions removes sessions whose last activity is strictly
// older than now-maxAge and returns how many were removed.
func (b *Backend) CleanupExpiredSessions(ctx context.Context, maxAge time.Duration) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-maxAge)
	removed := 0
	for id, rec := range b.sessions {
		if rec.info.LastActive.Before(cutoff) {
			delete(b.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		b.logger.Debug("expired sessions removed", "count", removed)
	}
	return removed, nil
}

func (b *Backend) Close() error { return nil }

// evictLocked removes the least recently active sessions while over
// capacity. Caller must hold b.mu.
func (b *Backend) evictLocked(ctx context.Context) {
	if b.maxSessions <= 0 || len(b.sessions) <= b.maxSessions {
		return
	}

	type entry struct {
		id         string
		lastActive time.Time
		seq        uint64
	}
	entries := make([]entry, 0, len(b.sessions))
	for id, rec := range b.sessions {
		entries = append(entries, entry{id: id, lastActive: rec.info.LastActive, seq: rec.seq})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].lastActive.Equal(entries[j].lastActive) {
			return entries[i].lastActive.Before(entries[j].lastActive)
		}
		return entries[i].seq < entries[j].seq
	})

	excess := len(b.sessions) - b.maxSessions
	for _, e := range entries[:excess] {
		delete(b.sessions, e.id)
		b.logger.DebugContext(ctx, "session evicted", "session_id", e.id)
	}
}
