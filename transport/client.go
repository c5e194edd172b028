package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/bulkflow/internal/metrics"
	"github.com/BaSui01/bulkflow/internal/pool"
	"github.com/BaSui01/bulkflow/internal/tlsutil"
	"github.com/BaSui01/bulkflow/types"
)

// ContentType is sent with every request.
const ContentType = "application/json"

// ErrNotStarted is the cause of failures reported for requests issued before
// Start or after Stop.
var ErrNotStarted = errors.New("transport client is not started")

// Client executes requests against a round-robin ServerPool. Requests run on
// a bounded goroutine pool; completion handlers are called from those
// goroutines.
type Client struct {
	config  Config
	servers *ServerPool
	logger  *zap.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	mu         sync.Mutex
	started    atomic.Bool
	workers    atomic.Pointer[pool.GoroutinePool]
	httpClient *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithMetrics attaches a metrics collector.
func WithMetrics(c *metrics.Collector) ClientOption {
	return func(cl *Client) { cl.metrics = c }
}

// WithHTTPClient replaces the TLS-hardened default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = hc }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(tr trace.Tracer) ClientOption {
	return func(cl *Client) { cl.tracer = tr }
}

// NewClient validates cfg and creates a stopped client.
func NewClient(cfg Config, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		config: cfg.Clone(),
		logger: logger.With(zap.String("component", "transport")),
		tracer: otel.Tracer("github.com/BaSui01/bulkflow/transport"),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.servers = NewServerPool(cfg.ServerList, cfg.ServerPoolRetries, cfg.ServerPoolRetryInterval, logger).
		WithMetrics(c.metrics)

	if c.httpClient == nil {
		opts := tlsutil.TransportOptions{
			ConnectTimeout:      cfg.ConnectTimeout,
			MaxTotalConnections: cfg.MaxTotalConnections,
		}
		if cfg.Security != nil {
			opts.ServerName = cfg.Security.ServerName
			opts.InsecureSkipVerify = cfg.Security.InsecureSkipVerify
		}
		c.httpClient = tlsutil.SecureHTTPClient(cfg.ReadTimeout, opts)
	}

	return c, nil
}

// Start launches the I/O goroutine pool. Calling it again is a no-op.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started.Load() {
		return nil
	}

	c.workers.Store(pool.NewGoroutinePool(pool.GoroutinePoolConfig{
		Name:       "transport-io",
		MaxWorkers: c.config.IOThreadCount,
		QueueSize:  c.config.IOQueueSize,
	}, c.logger))
	c.started.Store(true)

	c.logger.Info("transport started",
		zap.Strings("servers", c.servers.Snapshot()),
		zap.Int("io_threads", c.config.IOThreadCount),
	)
	return nil
}

// Stop waits for in-flight requests and releases idle connections.
func (c *Client) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started.Swap(false) {
		return
	}
	if workers := c.workers.Load(); workers != nil {
		workers.Close()
	}
	c.httpClient.CloseIdleConnections()
	c.logger.Info("transport stopped")
}

// IsStarted reports whether Start has been called and Stop has not.
func (c *Client) IsStarted() bool {
	return c.started.Load()
}

// Config returns a copy of the effective configuration.
func (c *Client) Config() Config {
	return c.config.Clone()
}

// ServerPool exposes the pool so discovery can push address updates.
func (c *Client) ServerPool() *ServerPool {
	return c.servers
}

// ExecuteAsync sends req and reports the outcome to handler. Failures to
// build the wire request are routed to handler.Failed without any I/O.
func (c *Client) ExecuteAsync(ctx context.Context, req Request, decoder ResponseDecoder, handler ResponseHandler) {
	cb := newCallback(handler, decoder, c.logger)

	ctx, span := c.tracer.Start(ctx, "bulkflow.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", req.HTTPMethod()),
			attribute.String("http.target", req.URI()),
		),
	)

	workers := c.workers.Load()
	if !c.started.Load() || workers == nil {
		endSpan(span, ErrNotStarted)
		cb.failed(types.NewTransportError("cannot execute request", ErrNotStarted))
		return
	}

	httpReq, size, err := c.createClientRequest(ctx, req)
	if err != nil {
		endSpan(span, err)
		cb.failed(err)
		return
	}

	task := func(context.Context) error {
		defer span.End()

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			c.metrics.RecordRequest(httpReq.Method, 0, time.Since(start), size)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			cb.failed(types.NewTransportError("request failed", err))
			return nil
		}

		c.metrics.RecordRequest(httpReq.Method, resp.StatusCode, time.Since(start), size)
		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
		cb.completed(resp, httpReq.Method != http.MethodHead)
		return nil
	}

	if err := workers.Submit(ctx, task); err != nil {
		endSpan(span, err)
		cb.failed(types.NewTransportError("failed to submit request", err))
	}
}

// Execute sends req and parks until handler is resolved or ctx is done.
func (c *Client) Execute(ctx context.Context, req Request, decoder ResponseDecoder, handler *BlockingHandler) (Response, error) {
	c.ExecuteAsync(ctx, req, decoder, handler)
	return handler.Result(ctx)
}

// createClientRequest resolves the next server and adapts req to the wire.
func (c *Client) createClientRequest(ctx context.Context, req Request) (*http.Request, int, error) {
	address, err := c.servers.Next(ctx)
	if err != nil {
		return nil, 0, err
	}

	body, err := req.Serialize()
	if err != nil {
		return nil, 0, types.NewTransportError("failed to serialize request", err)
	}

	size := -1
	if sized, ok := body.(interface{ Len() int }); ok {
		size = sized.Len()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.HTTPMethod(), joinURL(address, req.URI()), body)
	if err != nil {
		return nil, 0, types.NewTransportError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", ContentType)

	if sec := c.config.Security; sec != nil && sec.Username != "" {
		httpReq.SetBasicAuth(sec.Username, sec.Password)
	}
	return httpReq, size, nil
}

func joinURL(address, uri string) string {
	return strings.TrimRight(address, "/") + "/" + strings.TrimLeft(uri, "/")
}

func endSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.End()
}
