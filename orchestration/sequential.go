// Package orchestration implements the composite agents SPEC_FULL.md
// §4.6 calls for: sequential pipelines, fan-out/aggregate parallel
// groups, and dynamic triage/handoff.
//
// Grounded on internal/supervisor/patterns/{sequential,parallel,
// classifier}.go for the strategies themselves, and on original_source/
// coagent/agents/sequential.py for the reply-rewiring construction
// (see envelope.SetReplyToEnvelope) that keeps a sequential pipeline's
// orchestrator agent out of the data path after the first hop.
package orchestration

import (
	"context"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/envelope"
)

// Sequential composes an ordered list of agent names into a pipeline.
// Each instance is keyed the same way the orchestrator itself is
// (same address id), so concurrent sessions get independent chains.
type Sequential struct {
	agent.BaseAgent

	steps []string
}

// NewSequential builds a pipeline over steps, in order.
func NewSequential(steps ...string) *Sequential {
	return &Sequential{steps: steps}
}

// Started rewires every interior hop's default reply target to its
// successor, once, before any envelope arrives.
func (s *Sequential) Started(ctx context.Context) error {
	if len(s.steps) < 2 {
		return nil
	}
	h := agent.MustHandleFromContext(ctx)
	self := h.Self()

	for i := 0; i < len(s.steps)-1; i++ {
		addr := envelope.Address{Name: s.steps[i], Id: self.Id}
		next := envelope.Address{Name: s.steps[i+1], Id: self.Id}
		if err := h.Publish(ctx, addr, envelope.SetReplyToEnvelope(next)); err != nil {
			return err
		}
	}
	return nil
}

// Receive rewires the last step's default reply to whoever asked for
// a reply to this message, then forwards the message to the first
// step. The orchestrator itself never replies to this message
// directly — the chain's last step does, once it completes.
func (s *Sequential) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	if len(s.steps) == 0 {
		return agent.Reply{}, nil
	}
	h := agent.MustHandleFromContext(ctx)
	self := h.Self()

	lastAddr := envelope.Address{Name: s.steps[len(s.steps)-1], Id: self.Id}
	if replyTo, ok := env.Header.ReplyTo(); ok {
		if err := h.Publish(ctx, lastAddr, envelope.SetReplyToEnvelope(replyTo)); err != nil {
			return agent.Reply{}, err
		}
	}

	// The reply address is now handled by the chain's own rewiring;
	// clearing it here stops the first step from also trying to reply
	// straight back to this message's sender.
	forward := env.WithHeader(envelope.HeaderReplyTo, "")
	firstAddr := envelope.Address{Name: s.steps[0], Id: self.Id}
	if err := h.Publish(ctx, firstAddr, forward); err != nil {
		return agent.Reply{}, err
	}
	return agent.Reply{Kind: agent.NoReply}, nil
}
