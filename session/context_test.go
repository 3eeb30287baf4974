package session

import (
	"context"
	"testing"
)

func TestContextWithSessionRoundTrips(t *testing.T) {
	mgr := NewManager(NewMemoryBackend())
	sess, err := mgr.Create(context.Background(), "triage", CreateOptions{})
	if err != nil {
		t.Fatal(err)
	}

	ctx := ContextWithSession(context.Background(), sess)
	got, ok := FromContext(ctx)
	if !ok || got.ID() != sess.ID() {
		t.Fatalf("FromContext: got=%v ok=%v", got, ok)
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("expected no session in a bare context")
	}
}

func TestMustFromContextPanicsWhenMissing(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustFromContext to panic")
		}
	}()
	MustFromContext(context.Background())
}
