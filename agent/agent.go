// Package agent defines the Agent contract: a stateful, addressable
// message receiver with a three-hook lifecycle, per SPEC_FULL.md
// §4.4 and §6.
//
// Grounded on agent/agent.go's minimal public interface, generalized
// from Execute/Start/Stop to the spec's started/receive/stopped hooks.
package agent

import (
	"context"

	"github.com/aixgo-dev/agentrt/envelope"
)

// State is a lifecycle state of an agent instance.
type State int

const (
	Starting State = iota
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ReplyKind distinguishes what Receive produced.
type ReplyKind int

const (
	NoReply ReplyKind = iota
	SingleReply
	StreamReply
)

// Reply carries Receive's response. For SingleReply, Envelope holds
// the one reply. For StreamReply, Stream yields envelopes until one
// is terminal; the agent is responsible for producing a terminal
// envelope itself (the runtime does not synthesize one).
type Reply struct {
	Kind     ReplyKind
	Envelope envelope.Envelope
	Stream   <-chan envelope.Envelope
}

// Agent is the contract every agent implementation satisfies.
// Implementations are constructed fresh per instance by an
// AgentSpec's constructor closure (see package runtime); Agent itself
// carries no addressing — the runtime tracks which (name, id) an
// instance belongs to.
type Agent interface {
	// Started is called once, after the instance is registered in the
	// runtime's live table and before any envelope is delivered to it.
	Started(ctx context.Context) error

	// Receive is called once per inbound envelope, strictly serially:
	// the runtime never invokes Receive again before the previous call
	// returns. Implementations need no internal locking against
	// concurrent Receive calls.
	Receive(ctx context.Context, env envelope.Envelope) (Reply, error)

	// Stopped is called once, before the instance is removed from the
	// live table, whether deactivation was reaper-initiated or
	// explicit. It should release any resources Started acquired.
	Stopped(ctx context.Context) error
}

// Handle is the lookup capability an agent instance is given to
// address its peers, per SPEC_FULL.md §9: a handle, not an owning
// reference back into the runtime, breaking the cyclic-reference
// concern the design notes call out. Implemented by package runtime's
// per-instance handle, which it places in each instance's context.
type Handle interface {
	// Channel performs a request/reply round-trip to dest, returning
	// the first reply or a streaming reader depending on stream.
	Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, stream bool) (Reply, error)

	// Publish fires env at dest without awaiting a reply.
	Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope) error

	// Self returns the address of the calling instance.
	Self() envelope.Address
}

// handleKey is the context key used to thread a Handle through to an
// agent's constructor and hooks, mirroring internal/agent/types.go's
// RuntimeKey/RuntimeFromContext pattern.
type handleKey struct{}

// ContextWithHandle returns a context carrying h, retrievable with
// HandleFromContext.
func ContextWithHandle(ctx context.Context, h Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// HandleFromContext retrieves the Handle stashed by ContextWithHandle.
func HandleFromContext(ctx context.Context) (Handle, bool) {
	h, ok := ctx.Value(handleKey{}).(Handle)
	return h, ok
}

// MustHandleFromContext panics if ctx carries no Handle. Agent
// implementations run exclusively inside the runtime's driver tasks,
// which always install one; this should never fire outside a test
// that forgot to.
func MustHandleFromContext(ctx context.Context) Handle {
	h, ok := HandleFromContext(ctx)
	if !ok {
		panic("agent: no Handle in context")
	}
	return h
}
