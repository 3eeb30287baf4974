package broker

import (
	"context"

	"google.golang.org/grpc"
)

// WireEnvelope is what crosses the gRPC connection for every message
// kind the event-bus service carries: subscribing to a name,
// publishing to one, and the events a subscription yields back.
// Grounded on the teacher's proto/agent_service.go stub shape
// (hand-written request/response structs, not protoc output) and on
// owulveryck-agenthub's broker.go for the publish/subscribe verbs
// these fields carry.
type WireEnvelope struct {
	Kind string `json:"kind"` // "subscribe", "unsubscribe", "publish", "event"

	Name string `json:"name"`
	Id   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`

	Header  map[string]string `json:"header,omitempty"`
	Payload []byte            `json:"payload,omitempty"`

	Probe     bool `json:"probe,omitempty"`
	Broadcast bool `json:"broadcast,omitempty"`
}

// EventBusClient is the client interface for the bidirectional
// event-bus service, in the same style as the teacher's hand-rolled
// AgentServiceClient.
type EventBusClient interface {
	Stream(ctx context.Context, opts ...grpc.CallOption) (EventBus_StreamClient, error)
}

// EventBus_StreamClient is the client side of the bidi stream.
type EventBus_StreamClient interface {
	Send(*WireEnvelope) error
	Recv() (*WireEnvelope, error)
	grpc.ClientStream
}

type eventBusClient struct {
	cc grpc.ClientConnInterface
}

// NewEventBusClient constructs an EventBusClient over cc.
func NewEventBusClient(cc grpc.ClientConnInterface) EventBusClient {
	return &eventBusClient{cc}
}

func (c *eventBusClient) Stream(ctx context.Context, opts ...grpc.CallOption) (EventBus_StreamClient, error) {
	opts = append(opts, grpc.CallContentSubtype(jsonCodecName))
	stream, err := c.cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    "Stream",
		ServerStreams: true,
		ClientStreams: true,
	}, "/agentrt.EventBus/Stream", opts...)
	if err != nil {
		return nil, err
	}
	return &eventBusStreamClient{stream}, nil
}

type eventBusStreamClient struct {
	grpc.ClientStream
}

func (x *eventBusStreamClient) Send(m *WireEnvelope) error { return x.SendMsg(m) }
func (x *eventBusStreamClient) Recv() (*WireEnvelope, error) {
	m := new(WireEnvelope)
	if err := x.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// EventBusServer is the server interface for the event-bus service.
type EventBusServer interface {
	Stream(EventBus_StreamServer) error
}

// EventBus_StreamServer is the server side of the bidi stream.
type EventBus_StreamServer interface {
	Send(*WireEnvelope) error
	Recv() (*WireEnvelope, error)
	grpc.ServerStream
}

type eventBusStreamServer struct {
	grpc.ServerStream
}

func (x *eventBusStreamServer) Send(m *WireEnvelope) error { return x.SendMsg(m) }
func (x *eventBusStreamServer) Recv() (*WireEnvelope, error) {
	m := new(WireEnvelope)
	if err := x.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _EventBus_Stream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(EventBusServer).Stream(&eventBusStreamServer{stream})
}

// RegisterEventBusServer registers srv with s, in the same hand-
// written style as the teacher's RegisterAgentServiceServer.
func RegisterEventBusServer(s grpc.ServiceRegistrar, srv EventBusServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "agentrt.EventBus",
		HandlerType: (*EventBusServer)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Stream",
				Handler:       _EventBus_Stream_Handler,
				ServerStreams: true,
				ClientStreams: true,
			},
		},
		Metadata: "event_bus.proto",
	}, srv)
}
