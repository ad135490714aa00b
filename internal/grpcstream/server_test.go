package grpcstream

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/banshee-data/odometry/internal/odometry"
	"github.com/banshee-data/odometry/internal/pipeline"
	"github.com/banshee-data/odometry/internal/timeutil"
	"github.com/banshee-data/odometry/internal/units"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// startTestServer serves a fresh pipeline over an in-memory listener and
// returns a connected client.
func startTestServer(t *testing.T) (*Server, *pipeline.Pipeline, *grpc.ClientConn) {
	t.Helper()
	pipe := pipeline.New(odometry.DefaultConfig(), timeutil.NewMockClock(t0))
	srv := NewServer(pipe, units.MPS)

	lis := bufconn.Listen(1 << 20)
	require.NoError(t, srv.Serve(lis))
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return srv, pipe, conn
}

func drive(t *testing.T, pipe *pipeline.Pipeline) {
	t.Helper()
	for _, line := range []string{"0,0,0", "0,0,0", "0,0,0", "10,10,100"} {
		require.NoError(t, pipe.HandleLine(line))
	}
}

func field(t *testing.T, s *structpb.Struct, path ...string) *structpb.Value {
	t.Helper()
	v := structpb.NewStructValue(s)
	for _, p := range path {
		next, ok := v.GetStructValue().GetFields()[p]
		require.True(t, ok, "missing field %q", p)
		v = next
	}
	return v
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestGetSnapshot(t *testing.T) {
	_, pipe, conn := startTestServer(t)
	drive(t, pipe)
	client := NewClient(conn)
	ctx := testContext(t)

	msg, err := client.GetSnapshot(ctx, &structpb.Struct{})
	require.NoError(t, err)

	cfg := odometry.DefaultConfig()
	want := odometry.DegreesToMeters(10, true, cfg.GearRatio, cfg.WheelCircumference)
	assert.InDelta(t, want, field(t, msg, "pose", "x").GetNumberValue(), 1e-12)
	assert.InDelta(t, want, field(t, msg, "distance", "total").GetNumberValue(), 1e-12)
	assert.InDelta(t, want/0.1, field(t, msg, "velocity", "linear_x").GetNumberValue(), 1e-9)
	assert.Equal(t, units.MPS, field(t, msg, "velocity", "units").GetStringValue())
	assert.True(t, field(t, msg, "settled").GetBoolValue())
	assert.Equal(t, 10.0, field(t, msg, "wheels", "left", "total_deg").GetNumberValue())
	assert.Equal(t, 100.0, field(t, msg, "delta_ms").GetNumberValue())

	req, err := structpb.NewStruct(map[string]any{"units": "kph"})
	require.NoError(t, err)
	msg, err = client.GetSnapshot(ctx, req)
	require.NoError(t, err)
	assert.InDelta(t, want/0.1*3.6, field(t, msg, "velocity", "linear_x").GetNumberValue(), 1e-9)
}

func TestGetSnapshot_InvalidUnits(t *testing.T) {
	_, _, conn := startTestServer(t)
	req, err := structpb.NewStruct(map[string]any{"units": "knots"})
	require.NoError(t, err)

	_, err = NewClient(conn).GetSnapshot(testContext(t), req)
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStreamSnapshots(t *testing.T) {
	srv, pipe, conn := startTestServer(t)
	ctx := testContext(t)

	req, err := structpb.NewStruct(map[string]any{"settled_only": true})
	require.NoError(t, err)
	stream, err := NewClient(conn).StreamSnapshots(ctx, req)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	drive(t, pipe)

	// Frames one and two are still inside the settle gate.
	var seqs []float64
	for i := 0; i < 2; i++ {
		msg, err := stream.Recv()
		require.NoError(t, err)
		assert.True(t, field(t, msg, "settled").GetBoolValue())
		seqs = append(seqs, field(t, msg, "seq").GetNumberValue())
	}
	assert.Equal(t, []float64{3, 4}, seqs)

	pipe.Close()
	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
	require.Eventually(t, func() bool { return srv.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestStreamSnapshots_InvalidUnits(t *testing.T) {
	_, _, conn := startTestServer(t)
	req, err := structpb.NewStruct(map[string]any{"units": "knots"})
	require.NoError(t, err)

	stream, err := NewClient(conn).StreamSnapshots(testContext(t), req)
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestStreamSnapshots_ClientCancel(t *testing.T) {
	srv, _, conn := startTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := NewClient(conn).StreamSnapshots(ctx, &structpb.Struct{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	_, err = stream.Recv()
	assert.Equal(t, codes.Canceled, status.Code(err))
	require.Eventually(t, func() bool { return srv.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHealth(t *testing.T) {
	_, _, conn := startTestServer(t)
	resp, err := healthpb.NewHealthClient(conn).Check(testContext(t), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServe_Twice(t *testing.T) {
	srv, _, _ := startTestServer(t)
	assert.Error(t, srv.Serve(bufconn.Listen(1024)))
}

func TestSnapshotStruct_OmitsZeroTime(t *testing.T) {
	msg, err := snapshotStruct(pipeline.Update{Seq: 7}, units.MPH)
	require.NoError(t, err)
	_, ok := msg.GetFields()["at_unix_ms"]
	assert.False(t, ok)
	assert.Equal(t, 7.0, field(t, msg, "seq").GetNumberValue())
	assert.Equal(t, units.MPH, field(t, msg, "velocity", "units").GetStringValue())

	msg, err = snapshotStruct(pipeline.Update{Seq: 8, At: t0}, units.MPS)
	require.NoError(t, err)
	assert.Equal(t, float64(t0.UnixMilli()), field(t, msg, "at_unix_ms").GetNumberValue())
}
