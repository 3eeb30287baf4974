package orchestration

import (
	"context"
	"strings"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/discovery"
	"github.com/aixgo-dev/agentrt/envelope"
)

// ToolCaller is the seam a Dynamic triage agent is parameterized by,
// since the model client itself is out of scope. Given the
// conversation so far and the current candidate set, it returns
// either a direct reply or the name of a candidate to hand off to
// plus the arguments to hand off with.
type ToolCaller interface {
	Call(ctx context.Context, conversation []byte, candidates []string) (reply []byte, handoffTo string, handoffArgs []byte, err error)
}

// Dynamic is a chat-like triage agent: it queries discovery for a
// namespace prefix on start, exposes the candidates to its ToolCaller
// as tools, and forwards messages to whichever candidate it or the
// candidate itself hands off to. Grounded on internal/supervisor/
// patterns/classifier.go's route-by-classification shape, generalized
// from a one-shot classify-then-execute call to a persistent,
// session-scoped handoff relationship.
type Dynamic struct {
	agent.BaseAgent

	namespace        string
	caller           ToolCaller
	aggregateTimeout time.Duration

	candidates []string
	current    string
}

// NewDynamic builds a triage agent over namespace, delegating
// candidate selection to caller.
func NewDynamic(namespace string, caller ToolCaller, aggregateTimeout time.Duration) *Dynamic {
	if aggregateTimeout == 0 {
		aggregateTimeout = 2 * time.Second
	}
	return &Dynamic{namespace: namespace, caller: caller, aggregateTimeout: aggregateTimeout}
}

func (d *Dynamic) Started(ctx context.Context) error {
	h := agent.MustHandleFromContext(ctx)
	result, err := discovery.Ask(ctx, h, discovery.Query{Namespace: d.namespace}, d.aggregateTimeout, 0)
	if err != nil {
		return err
	}
	for _, e := range result.Entries {
		d.candidates = append(d.candidates, e.Name)
	}
	return nil
}

// handoffType marks an envelope a candidate sends back to hand a
// session back to triage, per SPEC_FULL.md §4.6.
const handoffType = "_orchestration.handoff"

func (d *Dynamic) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	h := agent.MustHandleFromContext(ctx)

	if env.Header[envelope.HeaderType] == handoffType {
		d.current = ""
	}

	if d.current != "" {
		dest := envelope.Address{Name: d.current}
		if sid := env.Header[envelope.HeaderSessionID]; sid != "" {
			dest.Id = sid
		}
		reply, err := h.Channel(ctx, dest, env, false)
		if err != nil {
			return agent.Reply{}, err
		}
		return agent.Reply{Kind: agent.SingleReply, Envelope: reply.Envelope}, nil
	}

	reply, handoffTo, handoffArgs, err := d.caller.Call(ctx, env.Payload, d.candidates)
	if err != nil {
		return agent.Reply{}, err
	}
	if handoffTo == "" {
		return agent.Reply{Kind: agent.SingleReply, Envelope: envelope.New(reply)}, nil
	}

	d.current = handoffTo
	dest := envelope.Address{Name: handoffTo}
	if sid := env.Header[envelope.HeaderSessionID]; sid != "" {
		dest.Id = sid
	}
	handoffEnv := envelope.New(handoffArgs)
	if sid := env.Header[envelope.HeaderSessionID]; sid != "" {
		handoffEnv = handoffEnv.WithHeader(envelope.HeaderSessionID, sid)
	}
	got, err := h.Channel(ctx, dest, handoffEnv, false)
	if err != nil {
		return agent.Reply{}, err
	}
	return agent.Reply{Kind: agent.SingleReply, Envelope: got.Envelope}, nil
}

// staticToolCaller is a ToolCaller test double: when a configured
// keyword occurs in the lower-cased conversation payload and the
// candidate mapped to it is one of the offered candidates, it hands
// off to that candidate with the conversation as arguments; otherwise
// it replies directly with a fixed fallback message. When several
// keywords match, which one wins is not defined (map iteration order).
type staticToolCaller struct {
	keywordToCandidate map[string]string
	fallback           []byte
}

func newStaticToolCaller(keywordToCandidate map[string]string, fallback []byte) *staticToolCaller {
	return &staticToolCaller{keywordToCandidate: keywordToCandidate, fallback: fallback}
}

func (s *staticToolCaller) Call(ctx context.Context, conversation []byte, candidates []string) ([]byte, string, []byte, error) {
	text := strings.ToLower(string(conversation))
	for keyword, candidate := range s.keywordToCandidate {
		if strings.Contains(text, keyword) {
			for _, c := range candidates {
				if c == candidate {
					return nil, candidate, conversation, nil
				}
			}
		}
	}
	return s.fallback, "", nil, nil
}
