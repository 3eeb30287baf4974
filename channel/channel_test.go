package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/rterr"
)

func TestFIFOOrder(t *testing.T) {
	c := NewUnbounded()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := c.Write(ctx, envelope.New([]byte{byte('a' + i)})); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i := 0; i < 5; i++ {
		env, ok, err := c.Read(ctx)
		if err != nil || !ok {
			t.Fatalf("read %d: ok=%v err=%v", i, ok, err)
		}
		if env.Payload[0] != byte('a'+i) {
			t.Errorf("read %d: got %q, want %q", i, env.Payload, []byte{byte('a' + i)})
		}
	}
}

func TestWriteToClosedFails(t *testing.T) {
	c := NewUnbounded()
	c.Close()
	err := c.Write(context.Background(), envelope.New(nil))
	if !errors.Is(err, rterr.ErrChannelClosed) {
		t.Fatalf("expected ChannelClosed, got %v", err)
	}
}

func TestReadDrainsThenSignalsEOF(t *testing.T) {
	c := NewUnbounded()
	ctx := context.Background()
	_ = c.Write(ctx, envelope.New([]byte("x")))
	c.Close()

	_, ok, err := c.Read(ctx)
	if err != nil || !ok {
		t.Fatalf("expected buffered envelope to drain before EOF, ok=%v err=%v", ok, err)
	}
	_, ok, err = c.Read(ctx)
	if err != nil || ok {
		t.Fatalf("expected end-of-stream after drain, ok=%v err=%v", ok, err)
	}
}

func TestBoundedWriteBlocksUntilRead(t *testing.T) {
	c := New(1)
	ctx := context.Background()
	if err := c.Write(ctx, envelope.New([]byte("1"))); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- c.Write(ctx, envelope.New([]byte("2")))
	}()

	select {
	case <-done:
		t.Fatal("second write should have blocked on a full bounded channel")
	case <-time.After(20 * time.Millisecond):
	}

	if _, _, err := c.Read(ctx); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("second write never unblocked after read freed capacity")
	}
}

func TestReadRespectsContextDeadline(t *testing.T) {
	c := NewUnbounded()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, _, err := c.Read(ctx)
	if err == nil {
		t.Fatal("expected context deadline error on empty channel")
	}
}
