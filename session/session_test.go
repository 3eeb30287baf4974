package session

import (
	"context"
	"testing"

	"github.com/aixgo-dev/agentrt/envelope"
)

func TestSessionAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(NewMemoryBackend())

	sess, err := mgr.Create(ctx, "triage", CreateOptions{UserID: "u1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := sess.Append(ctx, envelope.New([]byte("hello"))); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := sess.Append(ctx, envelope.New([]byte("world"))); err != nil {
		t.Fatalf("Append: %v", err)
	}

	history, err := sess.History(ctx)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || string(history[0].Payload) != "hello" || string(history[1].Payload) != "world" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestSessionCheckpointAndRestore(t *testing.T) {
	ctx := context.Background()
	mgr := NewManager(NewMemoryBackend())

	sess, err := mgr.Create(ctx, "triage", CreateOptions{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := sess.Append(ctx, envelope.New([]byte("one"))); err != nil {
		t.Fatal(err)
	}
	cp, err := sess.Checkpoint(ctx)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := sess.Append(ctx, envelope.New([]byte("two"))); err != nil {
		t.Fatal(err)
	}

	history, err := sess.History(ctx)
	if err != nil || len(history) != 2 {
		t.Fatalf("want 2 entries before restore, got %d err=%v", len(history), err)
	}

	if err := sess.Restore(ctx, cp.ID); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	history, err = sess.History(ctx)
	if err != nil {
		t.Fatalf("History after restore: %v", err)
	}
	if len(history) != 1 || string(history[0].Payload) != "one" {
		t.Fatalf("want history truncated to [one], got %+v", history)
	}
}

func TestSessionRestoreRejectsForeignCheckpoint(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	mgr := NewManager(backend)

	a, err := mgr.Create(ctx, "triage", CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := mgr.Create(ctx, "triage", CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	cp, err := a.Checkpoint(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Restore(ctx, cp.ID); err == nil {
		t.Fatal("expected error restoring a checkpoint that belongs to a different session")
	}
}
