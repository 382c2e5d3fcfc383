package inmem

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	tenun "github.com/antaredja/tenun"
)

// fakeClock returns a controllable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLoadSessionAbsentVsEmpty(t *testing.T) {
	b := New(tenun.Config{})
	ctx := context.Background()

	_, ok, err := b.LoadSession(ctx, "missing")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if ok {
		t.Fatal("expected missing session to report ok=false")
	}

	if err := b.SaveSession(ctx, "empty", nil, "general", "", nil); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	msgs, ok, err := b.LoadSession(ctx, "empty")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if !ok {
		t.Fatal("expected saved session to report ok=true")
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func TestSaveSessionEmptyID(t *testing.T) {
	b := New(tenun.Config{})
	if err := b.SaveSession(context.Background(), "", nil, "", "", nil); err == nil {
		t.Fatal("expected error for empty session id")
	}
}

func TestSaveSessionReplacesMetadata(t *testing.T) {
	b := New(tenun.Config{})
	ctx := context.Background()

	err := b.SaveSession(ctx, "s1", nil, "general", "u1", map[string]any{"topic": "go", "lang": "en"})
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	err = b.SaveSession(ctx, "s1", nil, "", "", map[string]any{"topic": "rust"})
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	info, ok, err := b.GetSessionInfo(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("GetSessionInfo: ok=%v err=%v", ok, err)
	}
	if _, present := info.Metadata["lang"]; present {
		t.Fatal("metadata should be replaced, not merged")
	}
	if info.Metadata["topic"] != "rust" {
		t.Fatalf("topic = %v, want rust", info.Metadata["topic"])
	}
	// Identity fields survive a metadata-only update.
	if info.UserID != "u1" || info.AgentType != "general" {
		t.Fatalf("identity fields wiped: %+v", info)
	}

	// A nil-metadata save keeps the stored metadata untouched.
	if err := b.SaveSession(ctx, "s1", nil, "", "", nil); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	info, _, _ = b.GetSessionInfo(ctx, "s1")
	if info.Metadata["topic"] != "rust" {
		t.Fatalf("metadata wiped by nil-metadata save: %v", info.Metadata)
	}
	if info.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", info.UserID)
	}
}

func TestDeleteSessionIdempotent(t *testing.T) {
	b := New(tenun.Config{})
	ctx := context.Background()

	if err := b.SaveSession(ctx, "s1", nil, "general", "", nil); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	for i := 0; i < 2; i++ {
		ok, err := b.DeleteSession(ctx, "s1")
		if err != nil {
			t.Fatalf("DeleteSession #%d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("DeleteSession #%d: expected success", i+1)
		}
	}
	ok, err := b.DeleteSession(ctx, "never-existed")
	if err != nil || !ok {
		t.Fatalf("deleting a missing session should succeed, ok=%v err=%v", ok, err)
	}
}

func TestEvictionAtCapacity(t *testing.T) {
	clock := newFakeClock()
	b := New(tenun.Config{"max_sessions": 3}, WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("s%d", i)
		if err := b.SaveSession(ctx, id, nil, "general", "", nil); err != nil {
			t.Fatalf("SaveSession %s: %v", id, err)
		}
		clock.Advance(time.Second)
	}

	n, err := b.CountSessions(ctx, tenun.SessionFilter{})
	if err != nil {
		t.Fatalf("CountSessions: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 sessions after eviction, got %d", n)
	}

	// s1 and s2 were least recently active and must be gone.
	for _, id := range []string{"s1", "s2"} {
		if _, ok, _ := b.LoadSession(ctx, id); ok {
			t.Fatalf("session %s should have been evicted", id)
		}
	}
	for _, id := range []string{"s3", "s4", "s5"} {
		if _, ok, _ := b.LoadSession(ctx, id); !ok {
			t.Fatalf("session %s should have survived", id)
		}
	}
}

func TestEvictionIgnoresReads(t *testing.T) {
	clock := newFakeClock()
	b := New(tenun.Config{"max_sessions": 2}, WithClock(clock.Now))
	ctx := context.Background()

	if err := b.SaveSession(ctx, "old", nil, "general", "", nil); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)
	if err := b.SaveSession(ctx, "mid", nil, "general", "", nil); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Second)

	// Reading "old" must not refresh its recency.
	if _, _, err := b.LoadSession(ctx, "old"); err != nil {
		t.Fatal(err)
	}

	if err := b.SaveSession(ctx, "new", nil, "general", "", nil); err != nil {
		t.Fatal(err)
	}

	if _, ok, _ := b.LoadSession(ctx, "old"); ok {
		t.Fatal("oldest write should be evicted even after a recent read")
	}
	if _, ok, _ := b.LoadSession(ctx, "mid"); !ok {
		t.Fatal("mid should have survived")
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	clock := newFakeClock()
	b := New(tenun.Config{}, WithClock(clock.Now))
	ctx := context.Background()

	if err := b.SaveSession(ctx, "stale", nil, "general", "", nil); err != nil {
		t.Fatal(err)
	}
	clock.Advance(2 * time.Hour)
	if err := b.SaveSession(ctx, "fresh", nil, "general", "", nil); err != nil {
		t.Fatal(err)
	}

	removed, err := b.CleanupExpiredSessions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok, _ := b.LoadSession(ctx, "stale"); ok {
		t.Fatal("stale session should be gone")
	}
	if _, ok, _ := b.LoadSession(ctx, "fresh"); !ok {
		t.Fatal("fresh session should remain")
	}
}

func TestListSessionsOrderAndPaging(t *testing.T) {
	clock := newFakeClock()
	b := New(tenun.Config{}, WithClock(clock.Now))
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		id := fmt.Sprintf("s%d", i)
		if err := b.SaveSession(ctx, id, nil, "general", "u1", nil); err != nil {
			t.Fatal(err)
		}
		clock.Advance(time.Minute)
	}

	sessions, err := b.ListSessions(ctx, tenun.SessionFilter{AgentType: "general"})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	want := []string{"s4", "s3", "s2", "s1"}
	if len(sessions) != len(want) {
		t.Fatalf("got %d sessions, want %d", len(sessions), len(want))
	}
	for i, s := range sessions {
		if s.ID != want[i] {
			t.Fatalf("sessions[%d] = %s, want %s", i, s.ID, want[i])
		}
	}

	page, err := b.ListSessions(ctx, tenun.SessionFilter{AgentType: "general", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != "s3" || page[1].ID != "s2" {
		t.Fatalf("unexpected page: %+v", page)
	}

	none, err := b.ListSessions(ctx, tenun.SessionFilter{AgentType: "research_agent"})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no research sessions, got %d", len(none))
	}
}

func TestCountSessionsFiltered(t *testing.T) {
	b := New(tenun.Config{})
	ctx := context.Background()

	save := func(id, agentType, userID string) {
		t.Helper()
		if err := b.SaveSession(ctx, id, nil, agentType, userID, nil); err != nil {
			t.Fatal(err)
		}
	}
	save("a1", "general", "u1")
	save("a2", "general", "u2")
	save("a3", "research_agent", "u1")

	cases := []struct {
		filter tenun.SessionFilter
		want   int
	}{
		{tenun.SessionFilter{}, 3},
		{tenun.SessionFilter{AgentType: "general"}, 2},
		{tenun.SessionFilter{UserID: "u1"}, 2},
		{tenun.SessionFilter{AgentType: "general", UserID: "u1"}, 1},
		{tenun.SessionFilter{AgentType: "document_qa"}, 0},
	}
	for _, c := range cases {
		n, err := b.CountSessions(ctx, c.filter)
		if err != nil {
			t.Fatalf("CountSessions(%+v): %v", c.filter, err)
		}
		if n != c.want {
			t.Fatalf("CountSessions(%+v) = %d, want %d", c.filter, n, c.want)
		}
	}
}

func TestListSessionsStableForEqualTimestamps(t *testing.T) {
	clock := newFakeClock()
	b := New(tenun.Config{}, WithClock(clock.Now))
	ctx := context.Background()

	// All sessions share one LastActive; insertion order breaks the tie.
	for i := 1; i <= 3; i++ {
		if err := b.SaveSession(ctx, fmt.Sprintf("s%d", i), nil, "general", "", nil); err != nil {
			t.Fatal(err)
		}
	}

	first, err := b.ListSessions(ctx, tenun.SessionFilter{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := b.ListSessions(ctx, tenun.SessionFilter{})
		if err != nil {
			t.Fatal(err)
		}
		for j := range first {
			if again[j].ID != first[j].ID {
				t.Fatalf("ordering changed between calls: %v vs %v", again[j].ID, first[j].ID)
			}
		}
	}
	if first[0].ID != "s3" {
		t.Fatalf("newest insertion should sort first, got %s", first[0].ID)
	}
}

func TestGetRecentMessages(t *testing.T) {
	b := New(tenun.Config{})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		msg := tenun.UserMessage(fmt.Sprintf("m%d", i))
		if err := b.AppendMessage(ctx, "s1", msg, "general"); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := b.GetRecentMessages(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("GetRecentMessages: %v", err)
	}
	if len(recent) != 2 || recent[0].Content != "m4" || recent[1].Content != "m5" {
		t.Fatalf("unexpected recent messages: %+v", recent)
	}

	all, err := b.GetRecentMessages(ctx, "s1", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 {
		t.Fatalf("expected all 5 messages, got %d", len(all))
	}
}

func TestAppendCreatesSessionWithAgentType(t *testing.T) {
	b := New(tenun.Config{})
	ctx := context.Background()

	if err := b.AppendMessage(ctx, "s1", tenun.UserMessage("hi"), "document_qa"); err != nil {
		t.Fatal(err)
	}
	info, ok, err := b.GetSessionInfo(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("GetSessionInfo: ok=%v err=%v", ok, err)
	}
	if info.AgentType != "document_qa" {
		t.Fatalf("AgentType = %q, want document_qa", info.AgentType)
	}
	if info.MessageCount != 1 {
		t.Fatalf("MessageCount = %d, want 1", info.MessageCount)
	}
}

func TestConcurrentAppendLosesNothing(t *testing.T) {
	b := New(tenun.Config{})
	ctx := context.Background()

	const goroutines = 20
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				msg := tenun.UserMessage(fmt.Sprintf("g%d-m%d", g, i))
				if err := b.AppendMessage(ctx, "shared", msg, "general"); err != nil {
					t.Errorf("AppendMessage: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	msgs, ok, err := b.LoadSession(ctx, "shared")
	if err != nil || !ok {
		t.Fatalf("LoadSession: ok=%v err=%v", ok, err)
	}
	if len(msgs) != goroutines*perGoroutine {
		t.Fatalf("got %d messages, want %d", len(msgs), goroutines*perGoroutine)
	}

	// Per-goroutine order must be preserved even though goroutines interleave.
	next := make(map[int]int)
	for _, m := range msgs {
		var g, i int
		if _, err := fmt.Sscanf(m.Content, "g%d-m%d", &g, &i); err != nil {
			t.Fatalf("unexpected content %q", m.Content)
		}
		if i != next[g] {
			t.Fatalf("goroutine %d message out of order: got m%d, want m%d", g, i, next[g])
		}
		next[g]++
	}
}
