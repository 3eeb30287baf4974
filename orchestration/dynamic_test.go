package orchestration

import (
	"context"
	"testing"
)

func TestStaticToolCallerHandsOffOnKeywordMatch(t *testing.T) {
	caller := newStaticToolCaller(map[string]string{"refund": "billing"}, []byte("how can I help?"))

	reply, handoffTo, args, err := caller.Call(context.Background(), []byte("I need a refund please"), []string{"billing", "support"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if handoffTo != "billing" {
		t.Fatalf("want handoff to billing, got %q", handoffTo)
	}
	if reply != nil {
		t.Fatalf("want nil reply on handoff, got %q", reply)
	}
	if string(args) != "I need a refund please" {
		t.Fatalf("want args to carry the conversation, got %q", args)
	}
}

func TestStaticToolCallerFallsBackWithoutMatch(t *testing.T) {
	caller := newStaticToolCaller(map[string]string{"refund": "billing"}, []byte("how can I help?"))

	reply, handoffTo, _, err := caller.Call(context.Background(), []byte("what's the weather"), []string{"billing", "support"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if handoffTo != "" {
		t.Fatalf("want no handoff, got %q", handoffTo)
	}
	if string(reply) != "how can I help?" {
		t.Fatalf("want fallback reply, got %q", reply)
	}
}
