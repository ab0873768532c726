package timeline

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/internal/domain/services"
	"openprotect-lab/internal/streaming"
	"openprotect-lab/pkg/logger"
)

type fixture struct {
	engine *services.Coordinator
	bus    *streaming.EventBus
	client *Client
	conn   *grpc.ClientConn
}

func newFixture(t *testing.T, deps ...Pinger) *fixture {
	t.Helper()
	log := logger.NewNop()

	bus := streaming.NewEventBus(nil, log)
	engine := services.NewEngine(services.DefaultCoordinatorConfig(), services.EngineOptions{
		Sanitizer: services.DefaultSanitizerConfig(),
		Publisher: streaming.NewEventBusPublisher(bus, nil),
	}, log)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	NewServer(bus, engine.Events(), engine, log).Register(srv)

	ctx, cancel := context.WithCancel(context.Background())
	RegisterHealthServer(ctx, srv, 20*time.Millisecond, log, deps...)

	go func() { _ = srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		_ = conn.Close()
		srv.Stop()
		bus.Close()
	})

	return &fixture{engine: engine, bus: bus, client: NewClient(conn), conn: conn}
}

func criticalAlert(id string) *models.RawAlert {
	return &models.RawAlert{
		ID:        id,
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Severity:  models.SeverityCritical,
		Title:     "Ransomware Behavior Detected",
		RawData: models.RawData{
			Device:  &models.Device{Hostname: "FINANCE-PC-01", OS: "Windows"},
			Context: &models.AlertContext{Industry: "Financial", Region: "NA-East"},
			Fields:  map[string]any{},
		},
	}
}

func waitForSubscribers(t *testing.T, bus *streaming.EventBus, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return bus.SubscriberCount() >= n }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamEvents_Live(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := f.client.StreamEvents(ctx, StreamRequest{
		Subscription: streaming.Subscription{Types: []models.EventType{models.EventAutomatedRemediation}},
	})
	require.NoError(t, err)
	waitForSubscribers(t, f.bus, 1)

	_, err = f.engine.ProcessTick(ctx, models.TickInput{Alert: criticalAlert("r-1")})
	require.NoError(t, err)

	e, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, models.EventAutomatedRemediation, e.Type)
	rem, ok := e.Payload.(models.AutomatedRemediation)
	require.True(t, ok, "unexpected payload %T", e.Payload)
	assert.Equal(t, "FINANCE-PC-01", rem.TargetHost)
}

func TestStreamEvents_ReplaysBacklog(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := f.engine.ProcessTick(ctx, models.TickInput{Alert: criticalAlert("r-1")})
	require.NoError(t, err)
	_, err = f.engine.ProcessTick(ctx, models.TickInput{Alert: criticalAlert("r-2")})
	require.NoError(t, err)

	first := f.engine.Events().Events()[0]

	stream, err := f.client.StreamEvents(ctx, StreamRequest{SinceSeq: first.Seq})
	require.NoError(t, err)

	var seqs []uint64
	for i := 0; i < f.engine.Events().Len()-1; i++ {
		e, err := stream.Recv()
		require.NoError(t, err)
		seqs = append(seqs, e.Seq)
	}
	for i, s := range seqs {
		assert.Equal(t, first.Seq+uint64(i)+1, s)
	}
}

func TestStreamEvents_InvalidFilter(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := f.client.StreamEvents(ctx, StreamRequest{
		Subscription: streaming.Subscription{Types: []models.EventType{"NOT_A_TYPE"}},
	})
	require.NoError(t, err)

	_, err = stream.Recv()
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGetSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := f.engine.ProcessTick(ctx, models.TickInput{Alert: criticalAlert("r-1")})
	require.NoError(t, err)

	snap, err := f.client.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), snap.Ticks)
	assert.Equal(t, 1, snap.AlertCount)
	assert.Equal(t, 1, snap.EventsByType[models.EventAggregated])
}

type flakyPinger struct{ err error }

func (p *flakyPinger) Ping(context.Context) error { return p.err }

func TestHealth_ReflectsDependencies(t *testing.T) {
	dep := &flakyPinger{err: errors.New("connection refused")}
	f := newFixture(t, dep)
	health := grpc_health_v1.NewHealthClient(f.conn)

	require.Eventually(t, func() bool {
		resp, err := health.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.Status == grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEncodeDecodeStruct(t *testing.T) {
	msg, err := EncodeStruct(StreamRequest{SinceSeq: 42, Subscription: streaming.Subscription{MinSeverity: models.SeverityHigh}})
	require.NoError(t, err)

	var out StreamRequest
	require.NoError(t, DecodeStruct(msg, &out))
	assert.Equal(t, uint64(42), out.SinceSeq)
	assert.Equal(t, models.SeverityHigh, out.MinSeverity)

	_, err = EncodeStruct([]string{"not", "an", "object"})
	assert.Error(t, err)
}
