// Package discovery implements the built-in discovery agent every
// runtime registers under the name "discovery", per SPEC_FULL.md
// §4.5: a namespace-prefix query over the registry, answered locally
// (in-process and HTTP bindings) or aggregated across a broadcast
// (broker binding).
//
// Grounded on internal/agent/types.go's Registry as the data being
// queried, and on owulveryck-agenthub's broker.go broadcast-without-
// queue-group pattern for why the client side needs to aggregate
// multiple replies rather than expect exactly one.
package discovery

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/rterr"
)

// Name is the registered name every runtime's discovery agent answers
// under.
const Name = "discovery"

// Query is the request payload, JSON-encoded into the envelope.
type Query struct {
	Namespace string `json:"namespace"`
	Detailed  bool   `json:"detailed"`
}

// Entry describes one matching registered name.
type Entry struct {
	Name          string `json:"name"`
	HasInstances  bool   `json:"has_instances,omitempty"`
	InstanceCount int    `json:"instance_count,omitempty"`
}

// Result is the reply payload.
type Result struct {
	Entries []Entry `json:"entries"`
}

// Lister reports the set of currently registered names. Implemented
// by *runtime.Runtime.
type Lister interface {
	Names() []string
}

// InstanceCounter reports how many live instances a name currently
// has. Implemented by *runtime.Runtime; optional — Agent degrades to
// omitting instance counts when nil.
type InstanceCounter interface {
	InstanceCount(name string) int
}

// Agent answers Query envelopes against a Lister, excluding itself
// from every result.
type Agent struct {
	agent.BaseAgent

	lister   Lister
	counters InstanceCounter
}

// New constructs the discovery agent. counters may be nil, in which
// case detailed queries report has_instances/instance_count as zero
// values rather than erroring.
func New(lister Lister, counters InstanceCounter) *Agent {
	return &Agent{lister: lister, counters: counters}
}

// Receive decodes the query, filters the registry, and replies with
// the matching set. A payload that does not decode as a Query is
// answered with a BadEnvelope error.
func (a *Agent) Receive(ctx context.Context, env envelope.Envelope) (agent.Reply, error) {
	var q Query
	if err := json.Unmarshal(env.Payload, &q); err != nil {
		return agent.Reply{}, rterr.Wrap(rterr.ErrBadEnvelope, Name, err)
	}

	var entries []Entry
	for _, name := range a.lister.Names() {
		if name == Name {
			continue
		}
		if q.Namespace != "" && !strings.HasPrefix(name, q.Namespace+".") {
			continue
		}
		e := Entry{Name: name}
		if q.Detailed && a.counters != nil {
			n := a.counters.InstanceCount(name)
			e.InstanceCount = n
			e.HasInstances = n > 0
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	payload, _ := json.Marshal(Result{Entries: entries})
	reply := envelope.New(payload)
	return agent.Reply{Kind: agent.SingleReply, Envelope: reply}, nil
}

// Ask is the client-side helper for querying discovery through a
// Handle. It always opens a streaming reply channel: the in-process
// and HTTP bindings deliver exactly one reply on it, but the broker
// binding broadcasts the query to every subscribed runtime's
// discovery instance with no queue group, so more than one reply may
// arrive. Ask collects replies until aggregateTimeout elapses or
// maxReplies is reached (0 means unbounded), de-duplicating entries
// by name.
func Ask(ctx context.Context, h agent.Handle, q Query, aggregateTimeout time.Duration, maxReplies int) (Result, error) {
	dest := envelope.Address{Name: Name}
	payload, err := json.Marshal(q)
	if err != nil {
		return Result{}, err
	}

	reply, err := h.Channel(ctx, dest, envelope.New(payload), true)
	if err != nil {
		return Result{}, err
	}

	deadline := time.NewTimer(aggregateTimeout)
	defer deadline.Stop()

	seen := make(map[string]Entry)
	received := 0
	for {
		select {
		case <-ctx.Done():
			return collect(seen), nil
		case <-deadline.C:
			return collect(seen), nil
		case chunk, ok := <-reply.Stream:
			if !ok {
				return collect(seen), nil
			}
			var r Result
			if err := json.Unmarshal(chunk.Payload, &r); err == nil {
				for _, e := range r.Entries {
					if _, dup := seen[e.Name]; !dup {
						seen[e.Name] = e
					}
				}
			}
			received++
			if maxReplies > 0 && received >= maxReplies {
				return collect(seen), nil
			}
		}
	}
}

func collect(seen map[string]Entry) Result {
	entries := make([]Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return Result{Entries: entries}
}
