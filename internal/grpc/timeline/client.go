package timeline

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"openprotect-lab/internal/domain/models"
)

// Client is a typed client for the EventTimeline service
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// EventStream receives events from a StreamEvents call
type EventStream struct {
	stream grpc.ClientStream
}

// Recv blocks for the next event
func (s *EventStream) Recv() (*models.ServerEvent, error) {
	msg := new(structpb.Struct)
	if err := s.stream.RecvMsg(msg); err != nil {
		return nil, err
	}
	var e models.ServerEvent
	if err := DecodeStruct(msg, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// StreamEvents opens an event stream. Cancel ctx to close it.
func (c *Client) StreamEvents(ctx context.Context, req StreamRequest) (*EventStream, error) {
	msg, err := EncodeStruct(req)
	if err != nil {
		return nil, err
	}
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodStreamEvents)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(msg); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &EventStream{stream: stream}, nil
}

// GetSnapshot fetches the dashboard snapshot
func (c *Client) GetSnapshot(ctx context.Context) (*models.DashboardSnapshot, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodGetSnapshot, &emptypb.Empty{}, out); err != nil {
		return nil, err
	}
	var snap models.DashboardSnapshot
	if err := DecodeStruct(out, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
