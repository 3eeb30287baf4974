package orchestration

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/envelope"
)

// BranchResult tags one branch's outcome for the aggregator, mirroring
// internal/supervisor/patterns.ExecutionResult trimmed to what an
// aggregator agent (rather than a Go caller) needs to decide with.
type BranchResult struct {
	Name    string `json:"name"`
	Payload []byte `json:"payload,omitempty"`
	Err     string `json:"err,omitempty"`
}

// BranchSet is the payload an aggregator agent receives: every
// branch's tagged outcome, in no particular order.
type BranchSet struct {
	Results []BranchResult `json:"results"`
}

// Parallel fans an envelope out to a fixed set of branches
// concurrently, then hands their tagged results to a separately
// registered aggregator agent and returns the aggregator's reply as
// its own. Grounded on internal/supervisor/patterns/parallel.go's
// goroutine-per-branch fan-out, generalized from a Go-level
// AggregationStrategy enum to an ordinary addressable agent.
type Parallel struct {
	agent.BaseAgent

	branches   []string
	aggregator string
	deadline   time.Duration
}

// NewParallel builds a fan-out over branches, collecting into
// aggregator. deadline of 0 means no overall deadline beyond ctx's
// own.
func NewParallel(branches []string, aggregator string, deadline time.Duration) *Parallel {
	return &Parallel{branches: branches, aggregator: aggregator, deadline: deadline}
}

func (p *Parallel) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	if len(p.branches) == 0 {
		return agent.Reply{}, nil
	}
	h := agent.MustHandleFromContext(ctx)

	branchCtx := ctx
	if p.deadline > 0 {
		var cancel context.CancelFunc
		branchCtx, cancel = context.WithTimeout(ctx, p.deadline)
		defer cancel()
	}

	results := make([]BranchResult, len(p.branches))
	g, gctx := errgroup.WithContext(branchCtx)
	for i, name := range p.branches {
		i, name := i, name
		g.Go(func() error {
			dest := envelope.Address{Name: name}
			branchReq := env.WithHeader(envelope.HeaderReplyTo, "")
			reply, err := h.Channel(gctx, dest, branchReq, false)
			if err != nil {
				results[i] = BranchResult{Name: name, Err: err.Error()}
				return nil
			}
			if kind, isErr := reply.Envelope.IsError(); isErr {
				results[i] = BranchResult{Name: name, Err: kind + ": " + string(reply.Envelope.Payload)}
				return nil
			}
			results[i] = BranchResult{Name: name, Payload: reply.Envelope.Payload}
			return nil
		})
	}
	// Every branch reports its own failure into results rather than
	// returning an error, so this never fails — a failing branch must
	// not cancel its still-running siblings.
	_ = g.Wait()

	payload, err := json.Marshal(BranchSet{Results: results})
	if err != nil {
		return agent.Reply{}, err
	}

	aggReply, err := h.Channel(ctx, envelope.Address{Name: p.aggregator}, envelope.New(payload), false)
	if err != nil {
		return agent.Reply{}, err
	}
	return agent.Reply{Kind: agent.SingleReply, Envelope: aggReply.Envelope}, nil
}

// FirstSuccess is a ready-made aggregator: it replies with the first
// branch (by input order) that succeeded, or an error envelope if
// every branch failed. Grounded on patterns.AggregateAny.
type FirstSuccess struct{ agent.BaseAgent }

func (FirstSuccess) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	var set BranchSet
	if err := json.Unmarshal(env.Payload, &set); err != nil {
		return agent.Reply{}, err
	}
	for _, r := range set.Results {
		if r.Err == "" {
			return agent.Reply{Kind: agent.SingleReply, Envelope: envelope.New(r.Payload)}, nil
		}
	}
	return agent.Reply{Kind: agent.SingleReply, Envelope: envelope.ErrorEnvelope("AllBranchesFailed", "every parallel branch failed")}, nil
}

// MajorityVote is a ready-made aggregator: it replies with the
// payload that a majority (or, absent a majority, a plurality) of
// successful branches agreed on byte-for-byte. Grounded on
// patterns.AggregateMajority.
type MajorityVote struct{ agent.BaseAgent }

func (MajorityVote) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	var set BranchSet
	if err := json.Unmarshal(env.Payload, &set); err != nil {
		return agent.Reply{}, err
	}

	counts := make(map[string]int)
	var order []string
	for _, r := range set.Results {
		if r.Err != "" {
			continue
		}
		key := string(r.Payload)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
	}
	if len(order) == 0 {
		return agent.Reply{Kind: agent.SingleReply, Envelope: envelope.ErrorEnvelope("AllBranchesFailed", "every parallel branch failed")}, nil
	}

	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return agent.Reply{Kind: agent.SingleReply, Envelope: envelope.New([]byte(order[0]))}, nil
}

// ConcatenateAll is a ready-made aggregator: it replies with every
// successful branch's payload, tagged by name and newline-joined.
// Grounded on patterns.AggregateOutputs.
type ConcatenateAll struct{ agent.BaseAgent }

func (ConcatenateAll) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	var set BranchSet
	if err := json.Unmarshal(env.Payload, &set); err != nil {
		return agent.Reply{}, err
	}

	names := make([]string, 0, len(set.Results))
	byName := make(map[string]BranchResult, len(set.Results))
	for _, r := range set.Results {
		names = append(names, r.Name)
		byName[r.Name] = r
	}
	sort.Strings(names)

	var out []byte
	for _, name := range names {
		r := byName[name]
		if r.Err != "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, '\n')
		}
		out = append(out, '[')
		out = append(out, name...)
		out = append(out, ']', ':', ' ')
		out = append(out, r.Payload...)
	}
	return agent.Reply{Kind: agent.SingleReply, Envelope: envelope.New(out)}, nil
}
