// Package broker implements the gRPC bidirectional-streaming binding:
// an event-bus service every runtime process connects to once, using
// a single bidi stream to carry subscribe/unsubscribe/publish/event
// messages, mirroring a topic/queue-group broker without pulling in
// an external message-broker dependency absent from the reference
// corpus. Per SPEC_FULL.md §4.2.
//
// Grounded on owulveryck-agenthub's internal/agenthub/broker.go
// (EventBusService: per-name subscriber channel fan-out, broadcast
// delivery when no specific responder is named) and on the teacher's
// proto/agent_service.go for the hand-rolled gRPC stub plumbing style.
package broker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"google.golang.org/grpc"

	"github.com/aixgo-dev/agentrt/channel"
	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/rterr"
	"github.com/aixgo-dev/agentrt/transport"
)

// broadcastNames are delivered to every current subscriber rather
// than load-balanced across them, per SPEC_FULL.md §4.5 ("In broker
// mode the query is broadcast (no queue group)"). Ordinary agent
// names round-robin across subscribers the way a queue-group
// consumer would, since exactly one runtime process should do the
// work for any given envelope.
var broadcastNames = map[string]bool{
	"discovery": true,
}

// Server is the gRPC event-bus service: it holds one fan-out list of
// connected streams per subscribed name and round-robins or
// broadcasts a publish across them depending on broadcastNames.
type Server struct {
	mu   sync.Mutex
	subs map[string][]*serverConn
	next map[string]int
}

type serverConn struct {
	stream EventBus_StreamServer
	names  map[string]bool
	send   chan *WireEnvelope
	done   chan struct{}
}

// NewServer constructs the event-bus service and a *grpc.Server
// already registered with it; call Serve on the returned *grpc.Server
// with a net.Listener to run it.
func NewServer() (*Server, *grpc.Server) {
	s := &Server{subs: make(map[string][]*serverConn), next: make(map[string]int)}
	gs := grpc.NewServer()
	RegisterEventBusServer(gs, s)
	return s, gs
}

// Stream implements EventBusServer: it reads control/publish messages
// from one client connection for the connection's lifetime, and
// writes events addressed to that connection's subscriptions.
func (s *Server) Stream(stream EventBus_StreamServer) error {
	conn := &serverConn{stream: stream, names: make(map[string]bool), send: make(chan *WireEnvelope, 64), done: make(chan struct{})}

	go func() {
		defer close(conn.done)
		for {
			select {
			case msg, ok := <-conn.send:
				if !ok {
					return
				}
				if err := stream.Send(msg); err != nil {
					return
				}
			case <-stream.Context().Done():
				return
			}
		}
	}()

	defer s.dropConn(conn)
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch msg.Kind {
		case "subscribe":
			s.addSub(conn, msg.Name)
		case "unsubscribe":
			s.removeSub(conn, msg.Name)
		case "publish":
			s.route(msg)
		}
	}
}

func (s *Server) addSub(conn *serverConn, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn.names[name] {
		return
	}
	conn.names[name] = true
	s.subs[name] = append(s.subs[name], conn)
}

func (s *Server) removeSub(conn *serverConn, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(conn.names, name)
	list := s.subs[name]
	for i, c := range list {
		if c == conn {
			s.subs[name] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (s *Server) dropConn(conn *serverConn) {
	s.mu.Lock()
	for name := range conn.names {
		list := s.subs[name]
		for i, c := range list {
			if c == conn {
				s.subs[name] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	s.mu.Unlock()
	close(conn.send)
}

func (s *Server) route(msg *WireEnvelope) {
	s.mu.Lock()
	list := append([]*serverConn(nil), s.subs[msg.Name]...)
	broadcast := msg.Broadcast || broadcastNames[msg.Name]

	var targets []*serverConn
	if broadcast || len(list) <= 1 {
		targets = list
	} else {
		i := s.next[msg.Name] % len(list)
		s.next[msg.Name] = i + 1
		targets = list[i : i+1]
	}
	s.mu.Unlock()

	event := &WireEnvelope{Kind: "event", Name: msg.Name, Id: msg.Id, Type: msg.Type, Header: msg.Header, Payload: msg.Payload}
	for _, t := range targets {
		select {
		case t.send <- event:
		default:
		}
	}
}

// Transport is the Transport implementation a runtime process uses
// to reach a broker Server: one long-lived bidi stream per process,
// subscriptions multiplexed over it locally.
type Transport struct {
	conn   *grpc.ClientConn
	client EventBusClient
	stream EventBus_StreamClient

	mu   sync.Mutex
	subs map[string][]*subEntry

	cancel context.CancelFunc
	done   chan struct{}
}

// subEntry pairs a handler with the id it was subscribed for, so a
// name shared by several local subscriptions (e.g. every in-flight
// Channel call's reply address, all under the reserved name
// "_reply") still delivers each event only to the subscription whose
// id matches — the server's fan-out is keyed on name alone, so this
// filtering happens locally, mirroring how local.Transport filters by
// sub.pattern.Id.
type subEntry struct {
	id string // empty matches any id
	h  Handler
}

// Handler mirrors transport.Handler; kept local to avoid importing
// the transport package's type alias ambiguity in this file's
// signatures below.
type Handler = transport.Handler

// Dial connects to a broker Server at addr and starts the local
// dispatch loop.
func Dial(ctx context.Context, addr string, opts ...grpc.DialOption) (*Transport, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)))
	target := addr
	if !strings.Contains(target, "://") {
		target = "passthrough:///" + target
	}
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, rterr.Wrap(rterr.ErrTransportFailure, addr, err)
	}
	client := NewEventBusClient(conn)

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := client.Stream(streamCtx)
	if err != nil {
		cancel()
		conn.Close()
		return nil, rterr.Wrap(rterr.ErrTransportFailure, addr, err)
	}

	t := &Transport{
		conn:   conn,
		client: client,
		stream: stream,
		subs:   make(map[string][]*subEntry),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.recvLoop()
	return t, nil
}

func (t *Transport) recvLoop() {
	defer close(t.done)
	for {
		msg, err := t.stream.Recv()
		if err != nil {
			return
		}
		if msg.Kind != "event" {
			continue
		}
		t.mu.Lock()
		entries := append([]*subEntry(nil), t.subs[msg.Name]...)
		t.mu.Unlock()

		dest := envelope.Address{Name: msg.Name, Id: msg.Id, Type: msg.Type}
		env := envelope.Envelope{Header: msg.Header, Payload: msg.Payload}
		for _, e := range entries {
			if e.id != "" && e.id != msg.Id {
				continue
			}
			go e.h(context.Background(), dest, env)
		}
	}
}

func (t *Transport) Publish(ctx context.Context, dest envelope.Address, env envelope.Envelope, opts transport.PublishOptions) error {
	msg := &WireEnvelope{
		Kind: "publish", Name: dest.Name, Id: dest.Id, Type: dest.Type,
		Header: env.Header, Payload: env.Payload, Probe: opts.Probe,
	}
	if err := t.stream.Send(msg); err != nil {
		return rterr.Wrap(rterr.ErrTransportFailure, dest.String(), err)
	}
	return nil
}

type brokerSub struct {
	t     *Transport
	name  string
	entry *subEntry
}

func (s *brokerSub) Unsubscribe() {
	s.t.mu.Lock()
	list := s.t.subs[s.name]
	for i, e := range list {
		if e == s.entry {
			s.t.subs[s.name] = append(list[:i], list[i+1:]...)
			break
		}
	}
	remaining := len(s.t.subs[s.name])
	s.t.mu.Unlock()

	if remaining == 0 {
		_ = s.t.stream.Send(&WireEnvelope{Kind: "unsubscribe", Name: s.name})
	}
}

func (t *Transport) Subscribe(ctx context.Context, pattern envelope.Address, handler Handler) (transport.Subscription, error) {
	entry := &subEntry{id: pattern.Id, h: handler}

	t.mu.Lock()
	_, already := t.subs[pattern.Name]
	t.subs[pattern.Name] = append(t.subs[pattern.Name], entry)
	t.mu.Unlock()

	if !already {
		if err := t.stream.Send(&WireEnvelope{Kind: "subscribe", Name: pattern.Name}); err != nil {
			return nil, rterr.Wrap(rterr.ErrTransportFailure, pattern.Name, err)
		}
	}
	return &brokerSub{t: t, name: pattern.Name, entry: entry}, nil
}

func (t *Transport) OpenReplyChannel(ctx context.Context) (envelope.Address, *channel.Channel, error) {
	id := newReplyID()
	addr := envelope.Address{Name: replyName, Id: id}
	ch := channel.NewUnbounded()

	sub, err := t.Subscribe(ctx, addr, func(_ context.Context, _ envelope.Address, env envelope.Envelope) {
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

func (t *Transport) Channel(ctx context.Context, dest envelope.Address, env envelope.Envelope, opts transport.ChannelOptions) (*channel.Channel, error) {
	if opts.Timeout > 0 && !opts.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	replyCtx := ctx
	if opts.Stream {
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

func (t *Transport) Close() error {
	t.cancel()
	<-t.done
	return t.conn.Close()
}

var replyCounter struct {
	mu sync.Mutex
	n  uint64
}

const replyName = "_reply"

func newReplyID() string {
	replyCounter.mu.Lock()
	defer replyCounter.mu.Unlock()
	replyCounter.n++
	return fmt.Sprintf("broker-%d", replyCounter.n)
}
