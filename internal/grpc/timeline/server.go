package timeline

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/streaming"
	"openprotect-lab/pkg/logger"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "console.v1.EventTimeline"

// Full method names
const (
	MethodStreamEvents = "/" + ServiceName + "/StreamEvents"
	MethodGetSnapshot  = "/" + ServiceName + "/GetSnapshot"
)

// EventSubscriber delivers live events matching a subscription
type EventSubscriber interface {
	Subscribe(sub *streaming.Subscription) (<-chan *models.ServerEvent, func())
}

// Backlog returns retained events newer than a sequence number
type Backlog interface {
	Since(seq uint64) []models.ServerEvent
}

// SnapshotProvider returns the dashboard read model
type SnapshotProvider interface {
	Snapshot() models.DashboardSnapshot
}

// EventTimelineServer is the server API for the EventTimeline service
type EventTimelineServer interface {
	StreamEvents(req *structpb.Struct, stream grpc.ServerStream) error
	GetSnapshot(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// StreamRequest is the decoded StreamEvents request. SinceSeq replays
// retained events with a greater sequence number before going live.
type StreamRequest struct {
	streaming.Subscription
	SinceSeq uint64 `json:"since_seq,omitempty"`
}

// Server implements the EventTimeline gRPC service
type Server struct {
	bus       EventSubscriber
	backlog   Backlog
	snapshots SnapshotProvider
	logger    *logger.Logger
}

// NewServer creates a new gRPC server
func NewServer(bus EventSubscriber, backlog Backlog, snapshots SnapshotProvider, log *logger.Logger) *Server {
	return &Server{
		bus:       bus,
		backlog:   backlog,
		snapshots: snapshots,
		logger:    log.WithComponent("grpc-server"),
	}
}

// Register registers the server with a gRPC server
func (s *Server) Register(grpcServer *grpc.Server) {
	grpcServer.RegisterService(&ServiceDesc, s)
}

// StreamEvents replays the requested backlog and then streams live events
// until the client goes away
func (s *Server) StreamEvents(req *structpb.Struct, stream grpc.ServerStream) error {
	var sr StreamRequest
	if err := DecodeStruct(req, &sr); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	if err := sr.Subscription.Validate(); err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}

	// subscribe before replaying so nothing emitted in between is lost
	live, unsubscribe := s.bus.Subscribe(&sr.Subscription)
	defer unsubscribe()

	s.logger.Info().
		Int("types", len(sr.Types)).
		Uint64("since_seq", sr.SinceSeq).
		Msg("client connected to event stream")

	last := sr.SinceSeq
	if sr.SinceSeq > 0 && s.backlog != nil {
		for _, e := range s.backlog.Since(sr.SinceSeq) {
			if !sr.Subscription.Matches(&e) {
				continue
			}
			if err := s.send(stream, &e); err != nil {
				return err
			}
			last = e.Seq
		}
	}

	for {
		select {
		case <-stream.Context().Done():
			s.logger.Info().Msg("client disconnected from event stream")
			return nil
		case e, ok := <-live:
			if !ok {
				return status.Error(codes.Unavailable, "event bus closed")
			}
			if e.Seq <= last {
				continue
			}
			if err := s.send(stream, e); err != nil {
				return err
			}
			last = e.Seq
		}
	}
}

func (s *Server) send(stream grpc.ServerStream, e *models.ServerEvent) error {
	msg, err := EncodeStruct(e)
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", e.ID).Msg("failed to encode event")
		return status.Error(codes.Internal, "failed to encode event")
	}
	return stream.SendMsg(msg)
}

// GetSnapshot returns the current dashboard snapshot
func (s *Server) GetSnapshot(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	msg, err := EncodeStruct(s.snapshots.Snapshot())
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to encode snapshot")
	}
	return msg, nil
}

// EncodeStruct converts any JSON-serializable value to a protobuf Struct
func EncodeStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("value is not a JSON object: %w", err)
	}
	return structpb.NewStruct(m)
}

// DecodeStruct converts a protobuf Struct into dest via its JSON form
func DecodeStruct(msg *structpb.Struct, dest any) error {
	if msg == nil {
		return nil
	}
	data, err := msg.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func streamEventsHandler(srv any, stream grpc.ServerStream) error {
	req := new(structpb.Struct)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(EventTimelineServer).StreamEvents(req, stream)
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EventTimelineServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodGetSnapshot,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EventTimelineServer).GetSnapshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc for the EventTimeline service
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventTimelineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetSnapshot",
			Handler:    getSnapshotHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       streamEventsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "console/v1/timeline.proto",
}
