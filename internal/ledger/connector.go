// Package ledger maintains the process-wide connection to the distributed
// ledger: ordered-endpoint failover on first use, a periodic health ping, and
// a shared status snapshot observed by every dependent component.
package ledger

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"

	"github.com/caremesh/medledger/internal/config"
	"github.com/caremesh/medledger/internal/logger"
	"github.com/caremesh/medledger/internal/model"
)

// Ledger nodes report their identity as response headers on the health check.
const (
	headerChain        = "ledger-chain"
	headerNodeName     = "ledger-node-name"
	headerNodeVersion  = "ledger-node-version"
	headerCurrentBlock = "ledger-current-block"
)

type dialFunc func(ctx context.Context, target string) (*grpc.ClientConn, error)

var _ model.Ledger = (*Connector)(nil)

// Connector implements model.Ledger over gRPC. One instance is constructed at
// process start and injected into every dependent service; the first Ensure
// call triggers the connection attempt.
type Connector struct {
	endpoints      []string
	dialTimeout    time.Duration
	healthInterval time.Duration
	useTLS         bool
	simulatedChain string
	logger         *logger.Logger
	dial           dialFunc

	// connectMu serializes connection attempts so concurrent first callers
	// race for one dial sequence, not several.
	connectMu sync.Mutex

	mu           sync.RWMutex
	conn         *grpc.ClientConn
	health       healthpb.HealthClient
	st           model.LedgerStatus
	attempted    bool
	healthCancel context.CancelFunc
}

// New creates a disconnected connector. No network activity happens until the
// first Ensure call.
func New(cfg config.Ledger, l *logger.Logger) *Connector {
	c := &Connector{
		endpoints:      cfg.Endpoints,
		dialTimeout:    cfg.DialTimeout,
		healthInterval: cfg.HealthInterval,
		useTLS:         cfg.TLS,
		simulatedChain: cfg.SimulatedChain,
		logger:         l,
	}
	c.dial = c.dialEndpoint
	return c
}

// Ensure establishes the connection on first use. Once every endpoint has
// failed the connector stays disconnected and later calls fail fast; only the
// health loop of an established connection flips the state back.
func (c *Connector) Ensure(ctx context.Context) error {
	c.mu.RLock()
	connected, attempted := c.st.Connected, c.attempted
	c.mu.RUnlock()

	if connected {
		return nil
	}
	if attempted {
		return fmt.Errorf("ledger unavailable: %w", model.ErrDisconnected)
	}
	return c.connect(ctx)
}

func (c *Connector) connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	// Another caller may have finished the attempt while we waited.
	c.mu.RLock()
	connected, attempted := c.st.Connected, c.attempted
	c.mu.RUnlock()
	if connected {
		return nil
	}
	if attempted {
		return fmt.Errorf("ledger unavailable: %w", model.ErrDisconnected)
	}

	if len(c.endpoints) == 0 {
		c.markFailed(model.ErrNoEndpoints)
		return model.ErrNoEndpoints
	}

	var lastErr error
	for _, endpoint := range c.endpoints {
		header, conn, err := c.handshake(ctx, endpoint)
		if err != nil {
			c.logger.Warn("ledger endpoint handshake failed", "endpoint", endpoint, "error", err)
			lastErr = err
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.health = healthpb.NewHealthClient(conn)
		c.attempted = true
		c.st = model.LedgerStatus{Connected: true, Endpoint: endpoint}
		c.applyHeaderLocked(header)
		c.mu.Unlock()

		c.logger.Info("connected to ledger", "endpoint", endpoint, "chain", c.Status().Chain)
		c.startHealthLoop()
		return nil
	}

	c.markFailed(lastErr)
	c.logger.Error("all ledger endpoints failed, switching to simulation mode", "error", lastErr)
	return fmt.Errorf("all ledger endpoints failed (last: %v): %w", lastErr, model.ErrDisconnected)
}

func (c *Connector) handshake(ctx context.Context, endpoint string) (metadata.MD, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, err := c.dial(dialCtx, endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial: %w", err)
	}

	var header metadata.MD
	resp, err := healthpb.NewHealthClient(conn).Check(dialCtx,
		&healthpb.HealthCheckRequest{}, grpc.Header(&header))
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		conn.Close()
		return nil, nil, fmt.Errorf("endpoint not serving: %s", resp.GetStatus())
	}

	return header, conn, nil
}

func (c *Connector) dialEndpoint(_ context.Context, target string) (*grpc.ClientConn, error) {
	creds := insecure.NewCredentials()
	if c.useTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return grpc.NewClient(target,
		grpc.WithTransportCredentials(creds),
		grpc.WithChainUnaryInterceptor(
			logging.UnaryClientInterceptor(interceptorLogger(c.logger)),
		),
	)
}

func (c *Connector) markFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.attempted = true
	c.st.Connected = false
	if err != nil {
		c.st.Error = err.Error()
	}
}

func (c *Connector) startHealthLoop() {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.healthCancel = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(c.healthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.ping(ctx)
			}
		}
	}()
}

// ping refreshes the shared connectivity state. A failed check marks the
// connector disconnected; a later successful one marks it reconnected, both
// without caller involvement.
func (c *Connector) ping(ctx context.Context) {
	c.mu.RLock()
	client := c.health
	c.mu.RUnlock()
	if client == nil {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	var header metadata.MD
	resp, err := client.Check(pingCtx, &healthpb.HealthCheckRequest{}, grpc.Header(&header))

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		if c.st.Connected {
			c.logger.Warn("ledger connection lost", "endpoint", c.st.Endpoint, "error", err)
		}
		c.st.Connected = false
		if err != nil {
			c.st.Error = err.Error()
		} else {
			c.st.Error = fmt.Sprintf("endpoint not serving: %s", resp.GetStatus())
		}
		return
	}

	if !c.st.Connected {
		c.logger.Info("ledger connection restored", "endpoint", c.st.Endpoint)
	}
	c.st.Connected = true
	c.st.Error = ""
	c.applyHeaderLocked(header)
}

// Status returns a snapshot of the connector state. SimulationMode is derived:
// it is true exactly when no live connection exists.
func (c *Connector) Status() model.LedgerStatus {
	c.mu.RLock()
	st := c.st
	c.mu.RUnlock()

	st.SimulationMode = !st.Connected
	if st.SimulationMode && st.Chain == "" {
		st.Chain = c.simulatedChain
	}
	return st
}

// Close stops the health loop and tears down the connection.
func (c *Connector) Close() error {
	c.mu.Lock()
	cancel := c.healthCancel
	conn := c.conn
	c.healthCancel = nil
	c.conn = nil
	c.health = nil
	c.st.Connected = false
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Connector) applyHeaderLocked(header metadata.MD) {
	if v := header.Get(headerChain); len(v) > 0 {
		c.st.Chain = v[0]
	}
	if v := header.Get(headerNodeName); len(v) > 0 {
		c.st.NodeName = v[0]
	}
	if v := header.Get(headerNodeVersion); len(v) > 0 {
		c.st.NodeVersion = v[0]
	}
	if v := header.Get(headerCurrentBlock); len(v) > 0 {
		if block, err := strconv.ParseUint(v[0], 10, 64); err == nil {
			c.st.CurrentBlock = block
		}
	}
}

func interceptorLogger(l *logger.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}
