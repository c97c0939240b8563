package ledger

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/caremesh/medledger/internal/config"
	"github.com/caremesh/medledger/internal/model"
	"github.com/caremesh/medledger/internal/testutil"
)

// fakeHealthServer serves the health protocol and attaches node metadata
// headers the way a ledger gateway does.
type fakeHealthServer struct {
	healthpb.UnimplementedHealthServer

	mu      sync.Mutex
	serving bool
	header  metadata.MD
}

func (s *fakeHealthServer) setServing(v bool) {
	s.mu.Lock()
	s.serving = v
	s.mu.Unlock()
}

func (s *fakeHealthServer) Check(ctx context.Context, _ *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.header != nil {
		_ = grpc.SetHeader(ctx, s.header)
	}
	if !s.serving {
		return nil, status.Error(codes.Unavailable, "node down")
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

func startLedgerNode(t *testing.T, header metadata.MD) (*fakeHealthServer, *bufconn.Listener) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	health := &fakeHealthServer{serving: true, header: header}
	healthpb.RegisterHealthServer(srv, health)

	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	return health, lis
}

func bufDialer(listeners map[string]*bufconn.Listener) dialFunc {
	return func(_ context.Context, target string) (*grpc.ClientConn, error) {
		lis, ok := listeners[target]
		if !ok {
			return nil, errors.New("connection refused")
		}
		return grpc.NewClient("passthrough:///"+target,
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
	}
}

func newTestConnector(t *testing.T, endpoints []string, listeners map[string]*bufconn.Listener) *Connector {
	t.Helper()

	c := New(config.Ledger{
		Endpoints:      endpoints,
		DialTimeout:    2 * time.Second,
		HealthInterval: 20 * time.Millisecond,
		SimulatedChain: "medledger-local",
	}, testutil.MakeNoopLogger())
	c.dial = bufDialer(listeners)
	t.Cleanup(func() { _ = c.Close() })

	return c
}

func nodeHeader() metadata.MD {
	return metadata.Pairs(
		"ledger-chain", "carechain",
		"ledger-node-name", "validator-1",
		"ledger-node-version", "1.8.2",
		"ledger-current-block", "42917",
	)
}

func TestConnector_EnsureConnects(t *testing.T) {
	ctx := context.Background()
	_, lis := startLedgerNode(t, nodeHeader())
	c := newTestConnector(t, []string{"node-a:9944"}, map[string]*bufconn.Listener{"node-a:9944": lis})

	require.NoError(t, c.Ensure(ctx))

	st := c.Status()
	assert.True(t, st.Connected)
	assert.False(t, st.SimulationMode)
	assert.Equal(t, "carechain", st.Chain)
	assert.Equal(t, "validator-1", st.NodeName)
	assert.Equal(t, "1.8.2", st.NodeVersion)
	assert.Equal(t, uint64(42917), st.CurrentBlock)
	assert.Equal(t, "node-a:9944", st.Endpoint)
	assert.Empty(t, st.Error)
}

func TestConnector_FailoverToSecondEndpoint(t *testing.T) {
	ctx := context.Background()
	_, lis := startLedgerNode(t, nodeHeader())
	c := newTestConnector(t, []string{"node-dead:9944", "node-b:9944"},
		map[string]*bufconn.Listener{"node-b:9944": lis})

	require.NoError(t, c.Ensure(ctx))
	assert.Equal(t, "node-b:9944", c.Status().Endpoint)
}

func TestConnector_AllEndpointsFail(t *testing.T) {
	ctx := context.Background()
	c := newTestConnector(t, []string{"node-dead-1:9944", "node-dead-2:9944"}, nil)

	var dials atomic.Int32
	base := c.dial
	c.dial = func(ctx context.Context, target string) (*grpc.ClientConn, error) {
		dials.Add(1)
		return base(ctx, target)
	}

	err := c.Ensure(ctx)
	require.ErrorIs(t, err, model.ErrDisconnected)

	st := c.Status()
	assert.False(t, st.Connected)
	assert.True(t, st.SimulationMode)
	assert.Equal(t, "medledger-local", st.Chain)
	assert.NotEmpty(t, st.Error)

	// A failed connector does not retry automatically.
	err = c.Ensure(ctx)
	require.ErrorIs(t, err, model.ErrDisconnected)
	assert.Equal(t, int32(2), dials.Load(), "one dial per endpoint, no automatic retry")
}

func TestConnector_NoEndpoints(t *testing.T) {
	c := newTestConnector(t, nil, nil)
	assert.ErrorIs(t, c.Ensure(context.Background()), model.ErrNoEndpoints)
}

func TestConnector_HealthLoopDisconnectAndReconnect(t *testing.T) {
	ctx := context.Background()
	health, lis := startLedgerNode(t, nodeHeader())
	c := newTestConnector(t, []string{"node-a:9944"}, map[string]*bufconn.Listener{"node-a:9944": lis})

	require.NoError(t, c.Ensure(ctx))
	require.True(t, c.Status().Connected)

	health.setServing(false)
	assert.Eventually(t, func() bool {
		return !c.Status().Connected
	}, 2*time.Second, 10*time.Millisecond, "health loop should observe the outage")
	assert.True(t, c.Status().SimulationMode)

	health.setServing(true)
	assert.Eventually(t, func() bool {
		return c.Status().Connected
	}, 2*time.Second, 10*time.Millisecond, "health loop should observe the recovery")

	// Reconnection flips state without a new Ensure round.
	require.NoError(t, c.Ensure(ctx))
}

func TestConnector_StatusBeforeConnect(t *testing.T) {
	c := newTestConnector(t, []string{"node-a:9944"}, nil)

	st := c.Status()
	assert.False(t, st.Connected)
	assert.True(t, st.SimulationMode)
	assert.Equal(t, "medledger-local", st.Chain)
}
