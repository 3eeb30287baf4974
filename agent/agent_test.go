package agent

import (
	"context"
	"testing"

	"github.com/aixgo-dev/agentrt/envelope"
)

type echoAgent struct {
	BaseAgent
}

func (echoAgent) Receive(ctx context.Context, env envelope.Envelope) (Reply, error) {
	return Reply{Kind: SingleReply, Envelope: envelope.New(env.Payload)}, nil
}

type fakeHandle struct {
	self envelope.Address
}

func (f fakeHandle) Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, stream bool) (Reply, error) {
	return Reply{}, nil
}
func (f fakeHandle) Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope) error {
	return nil
}
func (f fakeHandle) Self() envelope.Address { return f.self }

func TestBaseAgentDefaults(t *testing.T) {
	var a echoAgent
	if err := a.Started(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := a.Stopped(context.Background()); err != nil {
		t.Fatal(err)
	}
	reply, err := a.Receive(context.Background(), envelope.New([]byte("hi")))
	if err != nil {
		t.Fatal(err)
	}
	if reply.Kind != SingleReply || string(reply.Envelope.Payload) != "hi" {
		t.Fatalf("got %+v", reply)
	}
}

func TestHandleContextRoundTrip(t *testing.T) {
	h := fakeHandle{self: envelope.Address{Name: "echo", Id: "x"}}
	ctx := ContextWithHandle(context.Background(), h)

	got, ok := HandleFromContext(ctx)
	if !ok {
		t.Fatal("expected handle in context")
	}
	if got.Self() != h.self {
		t.Errorf("got %+v", got.Self())
	}

	if _, ok := HandleFromContext(context.Background()); ok {
		t.Fatal("expected no handle in a bare context")
	}
}

func TestMustHandleFromContextPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on missing handle")
		}
	}()
	MustHandleFromContext(context.Background())
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Starting: "starting",
		Running:  "running",
		Stopping: "stopping",
		Stopped:  "stopped",
		State(99): "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
