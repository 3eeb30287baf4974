package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) *RedisBackend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, "test:", 0)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestRedisBackendSaveAndLoadSession(t *testing.T) {
	backend := setupMiniredis(t)
	ctx := context.Background()

	meta := &SessionMetadata{ID: "s1", AgentName: "triage", UserID: "u1", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := backend.SaveSession(ctx, meta); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	loaded, err := backend.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.AgentName != "triage" || loaded.UserID != "u1" {
		t.Fatalf("unexpected metadata: %+v", loaded)
	}
}

func TestRedisBackendLoadSessionNotFound(t *testing.T) {
	backend := setupMiniredis(t)
	if _, err := backend.LoadSession(context.Background(), "nope"); err != ErrSessionNotFound {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestRedisBackendAppendAndLoadEntriesPreserveOrder(t *testing.T) {
	backend := setupMiniredis(t)
	ctx := context.Background()
	sessionID := "s-entries"

	if err := backend.SaveSession(ctx, &SessionMetadata{ID: sessionID, AgentName: "a", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		entry := &SessionEntry{ID: "e" + string(rune('a'+i)), Timestamp: time.Now().UTC(), Type: EntryTypeEnvelope}
		if err := backend.AppendEntry(ctx, sessionID, entry); err != nil {
			t.Fatalf("AppendEntry: %v", err)
		}
	}

	entries, err := backend.LoadEntries(ctx, sessionID)
	if err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if len(entries) != 3 || entries[0].ID != "ea" || entries[2].ID != "ec" {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestRedisBackendListSessionsByUser(t *testing.T) {
	backend := setupMiniredis(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, u := range []string{"u1", "u1", "u2"} {
		id := "s" + string(rune('a'+i))
		if err := backend.SaveSession(ctx, &SessionMetadata{ID: id, AgentName: "a", UserID: u, CreatedAt: now, UpdatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}
	sessions, err := backend.ListSessions(ctx, "a", ListOptions{UserID: "u1"})
	if err != nil || len(sessions) != 2 {
		t.Fatalf("want 2 sessions for u1, got %d err=%v", len(sessions), err)
	}
}

func TestRedisBackendSaveAndLoadCheckpoint(t *testing.T) {
	backend := setupMiniredis(t)
	ctx := context.Background()

	cp := &Checkpoint{ID: "cp1", SessionID: "s1", Timestamp: time.Now().UTC(), EntryID: "e1", Checksum: "abc"}
	if err := backend.SaveCheckpoint(ctx, cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	loaded, err := backend.LoadCheckpoint(ctx, "cp1")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded.SessionID != "s1" || loaded.EntryID != "e1" {
		t.Fatalf("unexpected checkpoint: %+v", loaded)
	}
}

func TestRedisBackendTTLExpiresSession(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, "test:", time.Hour)
	defer func() { _ = backend.Close() }()
	ctx := context.Background()

	meta := &SessionMetadata{ID: "s-ttl", AgentName: "a", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := backend.SaveSession(ctx, meta); err != nil {
		t.Fatal(err)
	}
	mr.FastForward(2 * time.Hour)

	if _, err := backend.LoadSession(ctx, "s-ttl"); err != ErrSessionNotFound {
		t.Fatalf("want session expired, got %v", err)
	}
}

func TestRedisBackendCloseRejectsFurtherOperations(t *testing.T) {
	backend := setupMiniredis(t)
	if err := backend.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := backend.LoadSession(context.Background(), "s1"); err != ErrStorageClosed {
		t.Fatalf("want ErrStorageClosed, got %v", err)
	}
}

func TestRedisBackendPing(t *testing.T) {
	backend := setupMiniredis(t)
	if err := backend.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
