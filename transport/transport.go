// Package transport defines the pluggable delivery abstraction that
// all three bindings (in-process, HTTP gateway, broker) implement
// identically, per SPEC_FULL.md §4.2.
package transport

import (
	"context"
	"time"

	"github.com/aixgo-dev/agentrt/channel"
	"github.com/aixgo-dev/agentrt/envelope"
)

// Handler is invoked by a binding for every envelope delivered to a
// subscription. dest is the full destination address the envelope
// was published to, including any id the caller addressed directly
// (the runtime's activator needs this to resolve which instance an
// envelope belongs to). Handler must not block indefinitely;
// long-running work should be handed off.
type Handler func(ctx context.Context, dest envelope.Address, env envelope.Envelope)

// Subscription is a handle returned by Subscribe; Unsubscribe removes
// the handler from further delivery. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe()
}

// PublishOptions configures a single Publish call.
type PublishOptions struct {
	// Probe, when set, makes Publish fail fast with ErrNoAgent if no
	// subscriber currently exists for the destination, instead of
	// silently dropping the envelope. Only the in-process binding
	// checks it; the HTTP gateway client and the broker binding publish
	// without checking for subscribers and never return ErrNoAgent.
	Probe bool
}

// ChannelOptions configures a single Channel (request/reply) call.
type ChannelOptions struct {
	// Timeout bounds how long Channel waits for the first reply (or
	// first stream chunk). Zero means no timeout.
	Timeout time.Duration
	// Probe, as PublishOptions.Probe, checked before the request is
	// sent so a request to an unknown name fails fast. As there, only
	// the in-process binding checks it.
	Probe bool
	// Stream requests a streaming reader instead of a single reply.
	Stream bool
}

// Reply is the result of a unary Channel call.
type Reply struct {
	Envelope envelope.Envelope
}

// Transport is the abstract capability every binding implements:
// publish an envelope, subscribe to envelopes for a pattern, open a
// reply channel, and the derived request/reply primitive Channel.
type Transport interface {
	// Publish delivers env to dest. With opts.Probe set, the in-process
	// binding fails with ErrNoAgent when no subscriber exists (see
	// PublishOptions.Probe for the other bindings); otherwise an
	// unaddressable destination is not itself an error at this layer
	// (the runtime's activator is what turns "unregistered name" into
	// ErrNoAgent for ordinary sends).
	Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope, opts PublishOptions) error

	// Subscribe registers handler for envelopes addressed to pattern.
	// Multiple subscribers to the same name load-balance on bindings
	// that support queue groups (broker); the in-process and HTTP
	// bindings deliver to every current subscriber.
	Subscribe(ctx context.Context, pattern envelope.Address, handler Handler) (Subscription, error)

	// OpenReplyChannel mints a fresh, process-unique reply address and
	// returns a reader channel that will receive anything published
	// to it.
	OpenReplyChannel(ctx context.Context) (envelope.Address, *channel.Channel, error)

	// Channel is the request/reply primitive: it opens a reply
	// channel, stamps header.reply_to, publishes env to dest, and
	// returns either the first reply (unary) or a reader yielding
	// envelopes until one is terminal (streaming).
	Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, opts ChannelOptions) (*channel.Channel, error)

	// Close releases the transport's resources (connections,
	// listeners, background goroutines).
	Close() error
}
