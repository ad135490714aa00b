// Package grpcstream publishes odometry snapshots over gRPC. Messages are
// google.protobuf.Struct values so clients need no generated stubs.
package grpcstream

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "odometry.v1.OdometryStream"

const (
	getSnapshotMethod     = "/" + ServiceName + "/GetSnapshot"
	streamSnapshotsMethod = "/" + ServiceName + "/StreamSnapshots"
)

// OdometryStreamServer is the server API for the OdometryStream service.
type OdometryStreamServer interface {
	// GetSnapshot returns the current processor state.
	GetSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// StreamSnapshots sends one message per processed frame until the client
	// goes away or the feed ends.
	StreamSnapshots(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes the OdometryStream service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OdometryStreamServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSnapshot", Handler: getSnapshotHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamSnapshots", Handler: streamSnapshotsHandler, ServerStreams: true},
	},
	Metadata: "odometry/v1/odometry.proto",
}

func getSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OdometryStreamServer).GetSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getSnapshotMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OdometryStreamServer).GetSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func streamSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(OdometryStreamServer).StreamSnapshots(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// Client calls the OdometryStream service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetSnapshot(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getSnapshotMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) StreamSnapshots(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], streamSnapshotsMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
