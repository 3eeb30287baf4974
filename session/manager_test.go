package session

import (
	"context"
	"testing"
)

func TestManagerGetOrCreateResumesExistingUserSession(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(NewMemoryBackend())

	first, err := mgr.GetOrCreate(ctx, "triage", "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	second, err := mgr.GetOrCreate(ctx, "triage", "u1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if first.ID() != second.ID() {
		t.Fatalf("want the same session resumed for u1, got %s and %s", first.ID(), second.ID())
	}
}

func TestManagerGetOrCreateWithoutUserIDAlwaysCreates(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(NewMemoryBackend())

	first, err := mgr.GetOrCreate(ctx, "triage", "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := mgr.GetOrCreate(ctx, "triage", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID() == second.ID() {
		t.Fatal("want a distinct session each time userID is empty")
	}
}

func TestManagerGetReturnsSessionNotFound(t *testing.T) {
	mgr := NewManager(NewMemoryBackend())
	if _, err := mgr.Get(context.Background(), "missing"); err != ErrSessionNotFound {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestManagerDeleteRemovesSession(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(NewMemoryBackend())

	sess, err := mgr.Create(ctx, "triage", CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := mgr.Delete(ctx, sess.ID()); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := mgr.Get(ctx, sess.ID()); err != ErrSessionNotFound {
		t.Fatalf("want ErrSessionNotFound after delete, got %v", err)
	}
}

func TestManagerCloseClosesBackend(t *testing.T) {
	backend := NewMemoryBackend()
	mgr := NewManager(backend)
	if _, err := mgr.Create(context.Background(), "triage", CreateOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := backend.LoadSession(context.Background(), "anything"); err != ErrStorageClosed {
		t.Fatalf("want backend closed, got %v", err)
	}
}
