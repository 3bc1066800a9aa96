// Package client connects the redora CLI to the LeadService API over gRPC.
// It handles connection management, per-request metadata, retry and the
// mapping of gRPC status codes onto pkg/errors sentinels.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"

	"github.com/redoraai/redora-cli/config"
	rderrors "github.com/redoraai/redora-cli/pkg/errors"
	"github.com/redoraai/redora-cli/pkg/logging"
)

// Metadata keys attached to every outgoing call.
const (
	MetadataTenantID      = "x-tenant-id"
	MetadataRequestID     = "x-request-id"
	MetadataAuthorization = "authorization"
)

// Default connection settings.
const (
	DefaultConnectTimeout    = 10 * time.Second
	DefaultKeepaliveTime     = 5 * time.Minute // must be >= the server's keepalive MinTime
	DefaultKeepaliveTimeout  = 20 * time.Second
	DefaultMaxRetries        = 3
	DefaultInitialBackoff    = 100 * time.Millisecond
	DefaultMaxBackoff        = 5 * time.Second
	DefaultBackoffMultiplier = 2.0
)

// ServerStatus is the result of a gRPC health check against the server.
type ServerStatus struct {
	Address   string        `json:"address" yaml:"address"`
	State     string        `json:"state" yaml:"state"`
	Serving   bool          `json:"serving" yaml:"serving"`
	Status    string        `json:"status" yaml:"status"`
	Latency   time.Duration `json:"latency" yaml:"latency"`
	Timestamp time.Time     `json:"timestamp" yaml:"timestamp"`
}

// GRPCClient manages the connection to the LeadService endpoint.
type GRPCClient struct {
	conn       *grpc.ClientConn
	serverAddr string
	options    *ClientOptions

	// mu protects conn and connected.
	mu        sync.RWMutex
	connected bool

	// redial serializes Reconnect calls made by ensureConn.
	redial sync.Mutex
}

// ClientOptions configures the GRPCClient behavior.
type ClientOptions struct {
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// Retry policy for WithRetry. Only retryable errors are retried.
	MaxRetries        int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Insecure disables TLS (for development only).
	Insecure bool

	// Block makes Connect wait until the connection is ready.
	Block bool

	Debug bool

	// TenantID is sent as x-tenant-id unless the context already carries one.
	TenantID string

	// Token is sent as a bearer token on every call when non-empty.
	Token string

	TLSConfig *tls.Config

	// Logger receives per-call debug lines. Nil disables them.
	Logger logging.Logger

	// ExtraDialOptions are appended after the built-in ones. Tests use it
	// to dial an in-memory listener.
	ExtraDialOptions []grpc.DialOption
}

// DefaultOptions returns ClientOptions with default values.
func DefaultOptions() *ClientOptions {
	return &ClientOptions{
		ConnectTimeout:    DefaultConnectTimeout,
		KeepaliveTime:     DefaultKeepaliveTime,
		KeepaliveTimeout:  DefaultKeepaliveTimeout,
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		Insecure:          true,
		Block:             true,
	}
}

// NewGRPCClient creates a new GRPCClient. Call Connect to dial.
func NewGRPCClient(serverAddr string, opts *ClientOptions) *GRPCClient {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	return &GRPCClient{
		serverAddr: serverAddr,
		options:    opts,
	}
}

// Connect creates the client connection. With Block set it waits up to
// ConnectTimeout for the connection to become ready.
func (c *GRPCClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected && c.conn != nil {
		return nil
	}

	conn, err := grpc.NewClient(c.serverAddr, c.buildDialOptions()...)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.serverAddr, err)
	}

	if c.options.Block {
		connectCtx, cancel := context.WithTimeout(ctx, c.options.ConnectTimeout)
		defer cancel()
		if err := waitReady(connectCtx, conn); err != nil {
			_ = conn.Close()
			return fmt.Errorf("connecting to %s: %v: %w", c.serverAddr, err, rderrors.ErrUnavailable)
		}
	}

	c.conn = conn
	c.connected = true
	return nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn) error {
	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return fmt.Errorf("connection shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return ctx.Err()
		}
	}
}

func (c *GRPCClient) buildDialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                c.options.KeepaliveTime,
			Timeout:             c.options.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithChainUnaryInterceptor(c.metadataInterceptor, c.loggingInterceptor),
	}

	secure := false
	switch {
	case c.options.Insecure:
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	case c.options.TLSConfig != nil:
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.options.TLSConfig)))
		secure = true
	default:
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
		secure = true
	}

	if c.options.Token != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(bearerToken{token: c.options.Token, secure: secure}))
	}

	return append(opts, c.options.ExtraDialOptions...)
}

// bearerToken attaches an authorization header to each call.
type bearerToken struct {
	token  string
	secure bool
}

func (b bearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{MetadataAuthorization: "Bearer " + b.token}, nil
}

func (b bearerToken) RequireTransportSecurity() bool { return b.secure }

// metadataInterceptor adds tenant and request id metadata unless the
// caller already set them.
func (c *GRPCClient) metadataInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	md, _ := metadata.FromOutgoingContext(ctx)
	var pairs []string
	if len(md.Get(MetadataTenantID)) == 0 {
		if tenant := c.TenantID(); tenant != "" {
			pairs = append(pairs, MetadataTenantID, tenant)
		}
	}
	if len(md.Get(MetadataRequestID)) == 0 {
		id := logging.RequestIDFromContext(ctx)
		if id == "" {
			id = uuid.New().String()
		}
		pairs = append(pairs, MetadataRequestID, id)
	}
	if len(pairs) > 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func (c *GRPCClient) loggingInterceptor(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	start := time.Now()
	err := invoker(ctx, method, req, reply, cc, opts...)
	fields := []logging.Field{
		logging.F("method", method),
		logging.F("duration_ms", time.Since(start).Milliseconds()),
	}
	if md, ok := metadata.FromOutgoingContext(ctx); ok {
		if ids := md.Get(MetadataRequestID); len(ids) > 0 {
			fields = append(fields, logging.F("request_id", ids[0]))
		}
	}
	if err != nil {
		c.options.Logger.Debug("RPC failed", append(fields, logging.Err(err))...)
	} else {
		c.options.Logger.Debug("RPC ok", fields...)
	}
	return err
}

// Close closes the connection. It's safe to call Close multiple times.
func (c *GRPCClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected || c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.connected = false

	if err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}

// IsConnected returns true if the client has an active connection.
func (c *GRPCClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.conn != nil
}

// GetConnection returns the underlying connection, or nil.
func (c *GRPCClient) GetConnection() *grpc.ClientConn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// HealthCheck reports whether the connection is ready or becomes ready
// before ctx is done.
func (c *GRPCClient) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("not connected: %w", rderrors.ErrUnavailable)
	}

	switch state := conn.GetState(); state {
	case connectivity.Ready:
		return nil
	case connectivity.Shutdown:
		return fmt.Errorf("connection has been shut down: %w", rderrors.ErrUnavailable)
	default:
		if err := waitReady(ctx, conn); err != nil {
			return fmt.Errorf("connection not ready (state %v): %w", conn.GetState(), rderrors.ErrUnavailable)
		}
		return nil
	}
}

// Reconnect closes the existing connection and dials again with backoff.
func (c *GRPCClient) Reconnect(ctx context.Context) error {
	_ = c.Close()

	backoff := c.options.InitialBackoff
	attempts := max(c.options.MaxRetries, 1)
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.Connect(ctx); err != nil {
			lastErr = err
			if err := sleepCtx(ctx, backoff); err != nil {
				return fmt.Errorf("reconnection cancelled: %w", err)
			}
			backoff = c.nextBackoff(backoff)
			continue
		}
		return nil
	}

	return fmt.Errorf("reconnection failed after %d attempts: %w", attempts, lastErr)
}

// ensureConn returns the current connection, redialing first when it has
// been shut down or is in transient failure.
func (c *GRPCClient) ensureConn(ctx context.Context) (*grpc.ClientConn, error) {
	conn := c.GetConnection()
	if conn == nil {
		return nil, fmt.Errorf("not connected to server: %w", rderrors.ErrUnavailable)
	}
	switch state := conn.GetState(); state {
	case connectivity.Shutdown, connectivity.TransientFailure:
	default:
		return conn, nil
	}

	c.redial.Lock()
	defer c.redial.Unlock()
	if cur := c.GetConnection(); cur != conn {
		// Another caller already redialed.
		if cur == nil {
			return nil, fmt.Errorf("not connected to server: %w", rderrors.ErrUnavailable)
		}
		return cur, nil
	}

	c.options.Logger.Debug("Redialing",
		logging.F("server", c.serverAddr),
		logging.F("state", conn.GetState()),
	)
	if err := c.Reconnect(ctx); err != nil {
		return nil, fmt.Errorf("reconnecting to %s: %v: %w", c.serverAddr, err, rderrors.ErrUnavailable)
	}
	return c.GetConnection(), nil
}

// WithRetry runs fn until it succeeds, returns a non-retryable error, or
// MaxRetries retries have been spent. Backoff grows exponentially.
func (c *GRPCClient) WithRetry(ctx context.Context, fn func() error) error {
	backoff := c.options.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == c.options.MaxRetries {
			break
		}

		if err := sleepCtx(ctx, backoff); err != nil {
			return fmt.Errorf("operation cancelled: %w", err)
		}
		backoff = c.nextBackoff(backoff)
	}

	return lastErr
}

func isRetryable(err error) bool {
	return rderrors.IsUnavailable(err) || rderrors.IsErrorRetryable(err)
}

func (c *GRPCClient) nextBackoff(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * c.options.BackoffMultiplier)
	if d > c.options.MaxBackoff {
		d = c.options.MaxBackoff
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ServerAddress returns the configured server address.
func (c *GRPCClient) ServerAddress() string {
	return c.serverAddr
}

// TenantID returns the configured tenant ID.
func (c *GRPCClient) TenantID() string {
	return c.options.TenantID
}

// ConnectionState returns a human-readable connection state string.
func (c *GRPCClient) ConnectionState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected || c.conn == nil {
		return "disconnected"
	}

	switch c.conn.GetState() {
	case connectivity.Idle:
		return "idle"
	case connectivity.Connecting:
		return "connecting"
	case connectivity.Ready:
		return "ready"
	case connectivity.TransientFailure:
		return "transient_failure"
	case connectivity.Shutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// GetStatus asks the standard gRPC health service for service, or the
// server as a whole when service is empty.
func (c *GRPCClient) GetStatus(ctx context.Context, service string) (*ServerStatus, error) {
	conn, err := c.ensureConn(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := c.HealthCheck(ctx); err != nil {
		return nil, err
	}
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return nil, fmt.Errorf("health check: %w", mapRPCError(err))
	}

	return &ServerStatus{
		Address:   c.serverAddr,
		State:     c.ConnectionState(),
		Serving:   resp.GetStatus() == healthpb.HealthCheckResponse_SERVING,
		Status:    resp.GetStatus().String(),
		Latency:   time.Since(start),
		Timestamp: time.Now(),
	}, nil
}

// ConnectFromConfig creates and connects a GRPCClient using CLIConfig.
// This is the canonical way to create a connected client from CLI commands.
func ConnectFromConfig(cfg *config.CLIConfig, token string, logger logging.Logger) (*GRPCClient, error) {
	opts := DefaultOptions()
	opts.Insecure = cfg.Insecure
	opts.Debug = cfg.Debug
	opts.TenantID = cfg.TenantID
	opts.Token = token
	opts.Logger = logger

	if !cfg.Insecure && cfg.TLS.Enabled {
		tlsConfig, err := LoadClientTLSConfig(&cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("loading TLS config: %w", err)
		}
		opts.TLSConfig = tlsConfig
	}

	c := NewGRPCClient(cfg.ServerAddress, opts)
	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := c.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connecting to server: %w", err)
	}
	return c, nil
}
