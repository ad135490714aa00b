package grpcstream

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/odometry/internal/odometry"
	"github.com/banshee-data/odometry/internal/pipeline"
	"github.com/banshee-data/odometry/internal/units"
)

// Ensure Server implements the gRPC interface.
var _ OdometryStreamServer = (*Server)(nil)

// Server implements OdometryStream on top of a pipeline.
type Server struct {
	pipe  *pipeline.Pipeline
	units string

	health   *health.Server
	server   *grpc.Server
	listener net.Listener
	running  atomic.Bool
	wg       sync.WaitGroup

	clientCount atomic.Int64
}

// NewServer creates a service reporting linear speed in defaultUnits unless a
// request asks otherwise.
func NewServer(pipe *pipeline.Pipeline, defaultUnits string) *Server {
	return &Server{
		pipe:   pipe,
		units:  defaultUnits,
		health: health.NewServer(),
	}
}

// Register adds the odometry and health services to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ServiceDesc, s)
	healthpb.RegisterHealthServer(g, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
}

// ClientCount returns the number of open StreamSnapshots calls.
func (s *Server) ClientCount() int64 {
	return s.clientCount.Load()
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return s.Serve(lis)
}

// Serve serves on lis in the background until Stop.
func (s *Server) Serve(lis net.Listener) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("grpc server already running")
	}
	s.listener = lis
	s.server = grpc.NewServer()
	s.Register(s.server)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		log.Printf("[gRPC] odometry stream listening on %s", lis.Addr())
		if err := s.server.Serve(lis); err != nil && s.running.Load() {
			log.Printf("[gRPC] server error: %v", err)
		}
	}()
	return nil
}

// Stop marks the service not serving and drains open calls.
func (s *Server) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.health.Shutdown()
	s.server.GracefulStop()
	s.wg.Wait()
	log.Printf("[gRPC] server stopped")
}

// streamOptions are the recognised request fields.
type streamOptions struct {
	units       string
	settledOnly bool
}

func (s *Server) parseOptions(req *structpb.Struct) (streamOptions, error) {
	opts := streamOptions{units: s.units}
	fields := req.GetFields()
	if v, ok := fields["units"]; ok {
		u := v.GetStringValue()
		if !units.IsValid(u) {
			return opts, status.Errorf(codes.InvalidArgument, "invalid units %q: must be one of %s", u, units.GetValidUnitsString())
		}
		opts.units = u
	}
	if v, ok := fields["settled_only"]; ok {
		opts.settledOnly = v.GetBoolValue()
	}
	return opts, nil
}

func (s *Server) GetSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	opts, err := s.parseOptions(req)
	if err != nil {
		return nil, err
	}
	msg, err := snapshotStruct(pipeline.Update{Snapshot: s.pipe.Snapshot()}, opts.units)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
	}
	return msg, nil
}

func (s *Server) StreamSnapshots(req *structpb.Struct, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	opts, err := s.parseOptions(req)
	if err != nil {
		return err
	}

	id, updates := s.pipe.Subscribe()
	defer s.pipe.Unsubscribe(id)
	s.clientCount.Add(1)
	defer s.clientCount.Add(-1)
	log.Printf("[gRPC] StreamSnapshots started: client=%s units=%s settled_only=%v", id, opts.units, opts.settledOnly)

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if opts.settledOnly && !u.Snapshot.Settled {
				continue
			}
			msg, err := snapshotStruct(u, opts.units)
			if err != nil {
				return status.Errorf(codes.Internal, "encode snapshot: %v", err)
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}

// snapshotStruct flattens an update into a Struct message. Linear speed is
// converted to unit; everything else stays in SI.
func snapshotStruct(u pipeline.Update, unit string) (*structpb.Struct, error) {
	snap := u.Snapshot
	wheels := map[string]any{}
	for _, w := range odometry.Wheels {
		e := snap.Wheel(w)
		wheels[w.String()] = map[string]any{
			"current_deg": e.Current,
			"frame_deg":   e.FrameDegrees,
			"total_deg":   e.TotalDegrees,
			"frame_m":     e.FrameMeters,
			"total_m":     e.TotalMeters,
		}
	}

	fields := map[string]any{
		"seq":      float64(u.Seq),
		"settled":  snap.Settled,
		"delta_ms": float64(snap.Clock.Delta),
		"pose": map[string]any{
			"x":     snap.Pose.X,
			"y":     snap.Pose.Y,
			"theta": snap.Pose.Theta,
		},
		"velocity": map[string]any{
			"linear_x":  units.ConvertSpeed(snap.Velocity.LinearX, unit),
			"angular_z": snap.Velocity.AngularZ,
			"units":     unit,
		},
		"distance": map[string]any{
			"frame": snap.Distance.FrameDistance,
			"total": snap.Distance.TotalDistance,
		},
		"wheels": wheels,
	}
	if !u.At.IsZero() {
		fields["at_unix_ms"] = float64(u.At.UnixMilli())
	}
	return structpb.NewStruct(fields)
}
