package session

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBackendSaveAndLoadSession(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()

	meta := &SessionMetadata{ID: "s1", AgentName: "triage", UserID: "u1", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := b.SaveSession(ctx, meta); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	loaded, err := b.LoadSession(ctx, "s1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if loaded.AgentName != "triage" || loaded.UserID != "u1" {
		t.Fatalf("unexpected metadata: %+v", loaded)
	}
}

func TestMemoryBackendLoadSessionNotFound(t *testing.T) {
	b := NewMemoryBackend()
	if _, err := b.LoadSession(context.Background(), "nope"); err != ErrSessionNotFound {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryBackendDeleteSessionClearsEntriesAndCheckpoints(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	meta := &SessionMetadata{ID: "s1", AgentName: "a", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if err := b.SaveSession(ctx, meta); err != nil {
		t.Fatal(err)
	}
	if err := b.AppendEntry(ctx, "s1", &SessionEntry{ID: "e1", Timestamp: time.Now().UTC(), Type: EntryTypeEnvelope}); err != nil {
		t.Fatal(err)
	}
	if err := b.SaveCheckpoint(ctx, &Checkpoint{ID: "cp1", SessionID: "s1", Timestamp: time.Now().UTC()}); err != nil {
		t.Fatal(err)
	}

	if err := b.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := b.LoadSession(ctx, "s1"); err != ErrSessionNotFound {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
	entries, err := b.LoadEntries(ctx, "s1")
	if err != nil || len(entries) != 0 {
		t.Fatalf("want no entries after delete, got %v err=%v", entries, err)
	}
	if _, err := b.LoadCheckpoint(ctx, "cp1"); err != ErrCheckpointNotFound {
		t.Fatalf("want checkpoint gone after delete, got %v", err)
	}
}

func TestMemoryBackendListSessionsFiltersByUserAndPaginates(t *testing.T) {
	b := NewMemoryBackend()
	ctx := context.Background()
	now := time.Now().UTC()

	for i, u := range []string{"u1", "u1", "u2"} {
		id := "s" + string(rune('a'+i))
		if err := b.SaveSession(ctx, &SessionMetadata{ID: id, AgentName: "a", UserID: u, CreatedAt: now, UpdatedAt: now}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := b.ListSessions(ctx, "a", ListOptions{})
	if err != nil || len(all) != 3 {
		t.Fatalf("want 3 sessions, got %d err=%v", len(all), err)
	}

	u1Only, err := b.ListSessions(ctx, "a", ListOptions{UserID: "u1"})
	if err != nil || len(u1Only) != 2 {
		t.Fatalf("want 2 sessions for u1, got %d err=%v", len(u1Only), err)
	}

	limited, err := b.ListSessions(ctx, "a", ListOptions{Limit: 1})
	if err != nil || len(limited) != 1 {
		t.Fatalf("want 1 session with limit, got %d err=%v", len(limited), err)
	}
}

func TestMemoryBackendAppendEntryRequiresExistingSession(t *testing.T) {
	b := NewMemoryBackend()
	err := b.AppendEntry(context.Background(), "nope", &SessionEntry{ID: "e1"})
	if err != ErrSessionNotFound {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestMemoryBackendClosedRejectsOperations(t *testing.T) {
	b := NewMemoryBackend()
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := b.LoadSession(context.Background(), "s1"); err != ErrStorageClosed {
		t.Fatalf("want ErrStorageClosed, got %v", err)
	}
}
