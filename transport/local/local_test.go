package local

import (
	"context"
	"testing"
	"time"

	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/transport"
	"github.com/aixgo-dev/agentrt/transport/conformance"
)

func TestConformance(t *testing.T) {
	conformance.Run(t, func(t *testing.T) (transport.Transport, func()) {
		return New(), func() {}
	})
}

func TestPublishSubscribe(t *testing.T) {
	tr := New()
	got := make(chan envelope.Envelope, 1)
	_, err := tr.Subscribe(context.Background(), envelope.Address{Name: "echo"}, func(_ context.Context, _ envelope.Address, env envelope.Envelope) {
		got <- env
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := tr.Publish(context.Background(), envelope.Address{Name: "echo"}, envelope.New([]byte("hi")), transport.PublishOptions{}); err != nil {
		t.Fatal(err)
	}

	select {
	case env := <-got:
		if string(env.Payload) != "hi" {
			t.Errorf("got %q", env.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestPublishProbeNoAgent(t *testing.T) {
	tr := New()
	err := tr.Publish(context.Background(), envelope.Address{Name: "nope"}, envelope.New(nil), transport.PublishOptions{Probe: true})
	if err == nil {
		t.Fatal("expected NoAgent error when probing an address with no subscriber")
	}
}

func TestChannelUnaryRoundTrip(t *testing.T) {
	tr := New()
	_, err := tr.Subscribe(context.Background(), envelope.Address{Name: "echo"}, func(ctx context.Context, _ envelope.Address, env envelope.Envelope) {
		addr, ok := env.Header.ReplyTo()
		if !ok {
			t.Error("expected reply_to header on request")
			return
		}
		_ = tr.Publish(ctx, addr, envelope.New(env.Payload), transport.PublishOptions{})
	})
	if err != nil {
		t.Fatal(err)
	}

	reader, err := tr.Channel(context.Background(), envelope.Address{Name: "echo"}, envelope.New([]byte("hi")), transport.ChannelOptions{Timeout: time.Second})
	if err != nil {
		t.Fatal(err)
	}
	env, ok, err := reader.Read(context.Background())
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if string(env.Payload) != "hi" {
		t.Errorf("got %q", env.Payload)
	}
}

func TestChannelTimeout(t *testing.T) {
	tr := New()
	_, err := tr.Subscribe(context.Background(), envelope.Address{Name: "blackhole"}, func(ctx context.Context, _ envelope.Address, env envelope.Envelope) {
		// never replies
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = tr.Channel(context.Background(), envelope.Address{Name: "blackhole"}, envelope.New(nil), transport.ChannelOptions{Timeout: 50 * time.Millisecond})
	if err == nil {
		t.Fatal("expected Timeout error")
	}
}

func TestChannelStreamingTerminate(t *testing.T) {
	tr := New()
	_, err := tr.Subscribe(context.Background(), envelope.Address{Name: "counter"}, func(ctx context.Context, _ envelope.Address, env envelope.Envelope) {
		addr, _ := env.Header.ReplyTo()
		_ = tr.Publish(ctx, addr, envelope.New([]byte("1")), transport.PublishOptions{})
		_ = tr.Publish(ctx, addr, envelope.New([]byte("2")), transport.PublishOptions{})
		_ = tr.Publish(ctx, addr, envelope.New([]byte("3")).Terminate(), transport.PublishOptions{})
	})
	if err != nil {
		t.Fatal(err)
	}

	reader, err := tr.Channel(context.Background(), envelope.Address{Name: "counter"}, envelope.New(nil), transport.ChannelOptions{Stream: true})
	if err != nil {
		t.Fatal(err)
	}

	var chunks []string
	for {
		env, ok, err := reader.Read(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("channel closed before terminate envelope")
		}
		chunks = append(chunks, string(env.Payload))
		if env.IsTerminate() {
			break
		}
	}
	if len(chunks) != 3 {
		t.Errorf("got %v", chunks)
	}
}
