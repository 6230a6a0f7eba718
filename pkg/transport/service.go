package transport

import (
	"context"

	"google.golang.org/grpc"
)

// This file hand-writes the client/server stubs protoc-gen-go-grpc would
// otherwise generate from a .proto file. There is no .proto here — the
// wire type is a gob-encoded Envelope (see codec.go) rather than a
// protobuf message — so the stub shapes below are written directly
// against grpc.ServiceDesc/grpc.ClientConn.NewStream, following the same
// method/stream registration pattern generated code uses.

const transportServiceName = "sps.transport.Transport"
const transportStreamMethod = "/sps.transport.Transport/Stream"

// TransportServer is implemented by the receiving side of a site-to-site
// link: one long-lived bidirectional stream per peer, carrying Envelopes
// in both directions.
type TransportServer interface {
	Stream(Transport_StreamServer) error
}

// Transport_StreamServer is the server-side handle for one peer's
// bidirectional stream.
type Transport_StreamServer interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ServerStream
}

type transportStreamServer struct {
	grpc.ServerStream
}

func (x *transportStreamServer) Send(m *Envelope) error {
	return x.ServerStream.SendMsg(m)
}

func (x *transportStreamServer) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func transportStreamHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(TransportServer).Stream(&transportStreamServer{stream})
}

var transportServiceDesc = grpc.ServiceDesc{
	ServiceName: transportServiceName,
	HandlerType: (*TransportServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Stream",
			Handler:       transportStreamHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "pkg/transport/service.go",
}

// RegisterTransportServer attaches srv to an existing *grpc.Server.
func RegisterTransportServer(s *grpc.Server, srv TransportServer) {
	s.RegisterService(&transportServiceDesc, srv)
}

// Transport_StreamClient is the client-side handle for the bidirectional
// stream dialed to one peer.
type Transport_StreamClient interface {
	Send(*Envelope) error
	Recv() (*Envelope, error)
	grpc.ClientStream
}

type transportStreamClient struct {
	grpc.ClientStream
}

func (x *transportStreamClient) Send(m *Envelope) error {
	return x.ClientStream.SendMsg(m)
}

func (x *transportStreamClient) Recv() (*Envelope, error) {
	m := new(Envelope)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// TransportClient dials the Stream RPC against a single peer connection.
type TransportClient interface {
	Stream(ctx context.Context, opts ...grpc.CallOption) (Transport_StreamClient, error)
}

type transportClient struct {
	cc *grpc.ClientConn
}

// NewTransportClient wraps an established *grpc.ClientConn to one peer.
func NewTransportClient(cc *grpc.ClientConn) TransportClient {
	return &transportClient{cc: cc}
}

func (c *transportClient) Stream(ctx context.Context, opts ...grpc.CallOption) (Transport_StreamClient, error) {
	opts = append(opts, grpc.CallContentSubtype(gobCodecName))
	stream, err := c.cc.NewStream(ctx, &transportServiceDesc.Streams[0], transportStreamMethod, opts...)
	if err != nil {
		return nil, err
	}
	return &transportStreamClient{stream}, nil
}
