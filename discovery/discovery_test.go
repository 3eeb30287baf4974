package discovery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/aixgo-dev/agentrt/agent"
	"github.com/aixgo-dev/agentrt/envelope"
)

type fakeLister struct{ names []string }

func (f fakeLister) Names() []string { return f.names }

type fakeCounter struct{ counts map[string]int }

func (f fakeCounter) InstanceCount(name string) int { return f.counts[name] }

func TestReceiveFiltersByNamespaceAndExcludesSelf(t *testing.T) {
	a := New(fakeLister{names: []string{"discovery", "billing.invoicer", "billing.collector", "support.triage"}}, nil)

	q, _ := json.Marshal(Query{Namespace: "billing"})
	reply, err := a.Receive(context.Background(), envelope.New(q))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	var res Result
	if err := json.Unmarshal(reply.Envelope.Payload, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("want 2 entries, got %d: %+v", len(res.Entries), res.Entries)
	}
	for _, e := range res.Entries {
		if e.Name != "billing.invoicer" && e.Name != "billing.collector" {
			t.Fatalf("unexpected entry %q", e.Name)
		}
	}
}

func TestReceiveDetailedReportsInstanceCounts(t *testing.T) {
	a := New(
		fakeLister{names: []string{"billing.invoicer"}},
		fakeCounter{counts: map[string]int{"billing.invoicer": 3}},
	)

	q, _ := json.Marshal(Query{Namespace: "billing", Detailed: true})
	reply, err := a.Receive(context.Background(), envelope.New(q))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	var res Result
	if err := json.Unmarshal(reply.Envelope.Payload, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(res.Entries) != 1 || res.Entries[0].InstanceCount != 3 || !res.Entries[0].HasInstances {
		t.Fatalf("unexpected entries: %+v", res.Entries)
	}
}

type fakeHandle struct {
	streamCh chan envelope.Envelope
}

func (f *fakeHandle) Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, stream bool) (agent.Reply, error) {
	return agent.Reply{Kind: agent.StreamReply, Stream: f.streamCh}, nil
}
func (f *fakeHandle) Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope) error {
	return nil
}
func (f *fakeHandle) Self() envelope.Address { return envelope.Address{Name: "caller"} }

func TestAskAggregatesUntilMaxReplies(t *testing.T) {
	ch := make(chan envelope.Envelope, 2)
	p1, _ := json.Marshal(Result{Entries: []Entry{{Name: "billing.invoicer"}}})
	p2, _ := json.Marshal(Result{Entries: []Entry{{Name: "billing.collector"}}})
	ch <- envelope.New(p1)
	ch <- envelope.New(p2)

	res, err := Ask(context.Background(), &fakeHandle{streamCh: ch}, Query{Namespace: "billing"}, 2*time.Second, 2)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(res.Entries) != 2 {
		t.Fatalf("want 2 entries, got %d: %+v", len(res.Entries), res.Entries)
	}
}

func TestAskDeduplicatesByName(t *testing.T) {
	ch := make(chan envelope.Envelope, 2)
	p, _ := json.Marshal(Result{Entries: []Entry{{Name: "billing.invoicer"}}})
	ch <- envelope.New(p)
	ch <- envelope.New(p)

	res, err := Ask(context.Background(), &fakeHandle{streamCh: ch}, Query{Namespace: "billing"}, 2*time.Second, 2)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(res.Entries) != 1 {
		t.Fatalf("want 1 deduplicated entry, got %d: %+v", len(res.Entries), res.Entries)
	}
}
