package orchestration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/runtime"
	"github.com/aixgo-dev/agentrt/transport/local"
)

type constAgent struct {
	agent.BaseAgent
	value string
}

func (c *constAgent) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	return agent.Reply{Kind: agent.SingleReply, Envelope: envelope.New([]byte(c.value))}, nil
}

func TestParallelConcatenateAllOrdersByBranchName(t *testing.T) {
	tp := local.New()
	rt := runtime.New(tp)
	ctx := context.Background()

	for name, val := range map[string]string{"one": "1", "two": "2", "three": "3"} {
		v := val
		if err := rt.Register(ctx, runtime.AgentSpec{Name: name, New: func() agent.Agent { return &constAgent{value: v} }}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := rt.Register(ctx, runtime.AgentSpec{Name: "concat", New: func() agent.Agent { return &ConcatenateAll{} }}); err != nil {
		t.Fatalf("register concat: %v", err)
	}
	if err := rt.Register(ctx, runtime.AgentSpec{Name: "fanout", New: func() agent.Agent {
		return NewParallel([]string{"one", "two", "three"}, "concat", 0)
	}}); err != nil {
		t.Fatalf("register fanout: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := rt.Channel(reqCtx, envelope.Address{Name: "fanout"}, envelope.New([]byte("go")), 0)
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	want := "[one]: 1\n[three]: 3\n[two]: 2"
	if string(got.Payload) != want {
		t.Fatalf("want %q, got %q", want, string(got.Payload))
	}
}

func TestFirstSuccessSkipsFailedBranches(t *testing.T) {
	set := BranchSet{Results: []BranchResult{
		{Name: "a", Err: "boom"},
		{Name: "b", Payload: []byte("ok")},
	}}
	payload, _ := json.Marshal(set)
	reply, err := (FirstSuccess{}).Receive(context.Background(), envelope.New(payload))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(reply.Envelope.Payload) != "ok" {
		t.Fatalf("want ok, got %q", string(reply.Envelope.Payload))
	}
}

func TestMajorityVotePicksMostCommonPayload(t *testing.T) {
	set := BranchSet{Results: []BranchResult{
		{Name: "a", Payload: []byte("x")},
		{Name: "b", Payload: []byte("x")},
		{Name: "c", Payload: []byte("y")},
	}}
	payload, _ := json.Marshal(set)
	reply, err := (MajorityVote{}).Receive(context.Background(), envelope.New(payload))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(reply.Envelope.Payload) != "x" {
		t.Fatalf("want x, got %q", string(reply.Envelope.Payload))
	}
}
