// Package local implements the in-process transport binding: a
// single shared map from address patterns to subscriber handlers,
// dispatched via goroutines on the Go runtime's own scheduler.
//
// Grounded on agent/local_runtime.go's registration-ordered map of
// buffered channels and internal/runtime/local.go's span
// instrumentation, generalized from a fixed-name agent table to the
// Transport interface's address-pattern subscriptions.
package local

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aixgo-dev/agentrt/channel"
	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/rterr"
	"github.com/aixgo-dev/agentrt/transport"
)

var tracer = otel.Tracer("github.com/aixgo-dev/agentrt/transport/local")

// Transport is the in-process Transport binding. The zero value is
// not usable; construct with New.
type Transport struct {
	mu   sync.RWMutex
	subs map[string][]*subscription // keyed by pattern.Name
	next int
}

type subscription struct {
	id      int
	pattern envelope.Address
	handler transport.Handler
	t       *Transport
}

func (s *subscription) Unsubscribe() {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()
	list := s.t.subs[s.pattern.Name]
	for i, sub := range list {
		if sub.id == s.id {
			s.t.subs[s.pattern.Name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// New constructs an in-process transport.
func New() *Transport {
	return &Transport{subs: make(map[string][]*subscription)}
}

// Publish delivers env to every current subscriber of dest.Name. It
// matches a specific-id subscriber when one is registered under the
// exact (name, id); otherwise it falls back to name-only
// subscribers, mirroring the runtime's own activator resolution.
func (t *Transport) Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope, opts transport.PublishOptions) error {
	ctx, span := tracer.Start(ctx, "local.Publish", trace.WithAttributes(
		attribute.String("agentrt.address", dest.String()),
	))
	defer span.End()

	t.mu.RLock()
	subs := append([]*subscription(nil), t.subs[dest.Name]...)
	t.mu.RUnlock()

	if len(subs) == 0 {
		if opts.Probe {
			return rterr.Wrap(rterr.ErrNoAgent, dest.String(), nil)
		}
		return nil
	}

	for _, sub := range subs {
		if sub.pattern.Id != "" && sub.pattern.Id != dest.Id {
			continue
		}
		h := sub.handler
		deliverCtx := ctx
		go h(deliverCtx, dest, env)
	}
	return nil
}

// Subscribe registers handler for envelopes addressed to pattern.
func (t *Transport) Subscribe(ctx context.Context, pattern envelope.Address, handler transport.Handler) (transport.Subscription, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	sub := &subscription{id: t.next, pattern: pattern, handler: handler, t: t}
	t.subs[pattern.Name] = append(t.subs[pattern.Name], sub)
	return sub, nil
}

// OpenReplyChannel mints a process-unique reply address under the
// reserved "_reply" name and subscribes an internal channel to it.
func (t *Transport) OpenReplyChannel(ctx context.Context) (envelope.Address, *channel.Channel, error) {
	id := newReplyID()
	addr := envelope.Address{Name: replyName, Id: id}
	ch := channel.NewUnbounded()

	sub, err := t.Subscribe(ctx, addr, func(_ context.Context, _ envelope.Address, env envelope.Envelope) {
		// Best-effort: a closed reply channel means the caller gave
		// up (timeout, abandonment); dropping here is correct per
		// SPEC_FULL.md §5 ("ChannelClosed ... a well-behaved agent
		// treats as a signal to abandon the work").
		_ = ch.Write(context.Background(), env)
	})
	if err != nil {
		return envelope.Address{}, nil, err
	}
	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
		ch.Close()
	}()
	return addr, ch, nil
}

const replyName = "_reply"

var replyCounter struct {
	mu sync.Mutex
	n  uint64
}

func newReplyID() string {
	replyCounter.mu.Lock()
	defer replyCounter.mu.Unlock()
	replyCounter.n++
	return time.Now().UTC().Format("20060102T150405000000000") + "-" + itoa(replyCounter.n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Channel is the request/reply primitive: open a reply channel, stamp
// header.reply_to, publish, and return either the first reply or a
// streaming reader.
func (t *Transport) Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, opts transport.ChannelOptions) (*channel.Channel, error) {
	ctx, span := tracer.Start(ctx, "local.Channel", trace.WithAttributes(
		attribute.String("agentrt.address", dest.String()),
	))
	defer span.End()

	// A streaming reader outlives this call; only the unary wait below
	// is bounded by opts.Timeout, so only attach+defer-cancel a
	// deadline context for the unary path.
	if opts.Timeout > 0 && !opts.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if opts.Probe {
		t.mu.RLock()
		_, ok := t.subs[dest.Name]
		t.mu.RUnlock()
		if !ok {
			return nil, rterr.Wrap(rterr.ErrNoAgent, dest.String(), nil)
		}
	}

	replyCtx := ctx
	if opts.Stream {
		// A streaming reply channel must survive past this function's
		// timeout scope; give it a context tied only to explicit
		// cancellation by the reader, not the unary deadline above.
		replyCtx = context.Background()
	}
	replyAddr, reader, err := t.OpenReplyChannel(replyCtx)
	if err != nil {
		return nil, err
	}

	out := env.WithReplyTo(replyAddr)
	if err := t.Publish(ctx, dest, out, transport.PublishOptions{Probe: opts.Probe}); err != nil {
		reader.Close()
		return nil, err
	}

	if opts.Stream {
		return reader, nil
	}

	// Unary mode: block here for the first (only) reply, converting a
	// context deadline into the Timeout error kind so callers never
	// have to distinguish "context cancelled" from "agent never
	// replied" themselves.
	defer reader.Close()
	got, ok, err := reader.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, rterr.Wrap(rterr.ErrTimeout, dest.String(), nil)
		}
		return nil, err
	}
	if !ok {
		return nil, rterr.Wrap(rterr.ErrChannelClosed, dest.String(), nil)
	}
	result := channel.NewUnbounded()
	_ = result.Write(context.Background(), got)
	result.Close()
	return result, nil
}

// Close releases no resources for the in-process binding; it exists
// to satisfy transport.Transport.
func (t *Transport) Close() error {
	return nil
}
