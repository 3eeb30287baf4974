package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/runtime"
	"github.com/aixgo-dev/agentrt/transport/local"
)

// stepAgent appends its suffix byte to the payload, as a stand-in
// step for the literal ABC pipeline scenario.
type stepAgent struct {
	agent.BaseAgent
	suffix byte
}

func (s *stepAgent) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	out := append(append([]byte{}, env.Payload...), s.suffix)
	return agent.Reply{Kind: agent.SingleReply, Envelope: envelope.New(out)}, nil
}

func TestSequentialPipelineChainsThreeSteps(t *testing.T) {
	tp := local.New()
	rt := runtime.New(tp)
	ctx := context.Background()

	if err := rt.Register(ctx, runtime.AgentSpec{Name: "a", New: func() agent.Agent { return &stepAgent{suffix: 'A'} }}); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if err := rt.Register(ctx, runtime.AgentSpec{Name: "b", New: func() agent.Agent { return &stepAgent{suffix: 'B'} }}); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if err := rt.Register(ctx, runtime.AgentSpec{Name: "c", New: func() agent.Agent { return &stepAgent{suffix: 'C'} }}); err != nil {
		t.Fatalf("register c: %v", err)
	}
	if err := rt.Register(ctx, runtime.AgentSpec{Name: "pipeline", New: func() agent.Agent { return NewSequential("a", "b", "c") }}); err != nil {
		t.Fatalf("register pipeline: %v", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	got, err := rt.Channel(reqCtx, envelope.Address{Name: "pipeline"}, envelope.New([]byte("x")), 0)
	if err != nil {
		t.Fatalf("Channel: %v", err)
	}
	if string(got.Payload) != "xABC" {
		t.Fatalf("want xABC, got %q", string(got.Payload))
	}
}
