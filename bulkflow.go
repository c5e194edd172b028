// Package bulkflow wires the bulk delivery pipeline from a single
// configuration: documents added to a Pipeline are assembled into batches,
// admitted by the backoff policy, sent through the transport and, when a
// batch fails, handed item by item to the failover policy.
//
// Usage:
//
//	cfg, _ := config.NewLoader().WithConfigPath("bulkflow.yaml").Load()
//	p, err := bulkflow.New(ctx, cfg, bulkflow.WithLogger(logger))
//	if err != nil { ... }
//	defer p.Close(context.Background())
//	_ = p.AddDocument(ctx, "logs", "", []byte(`{"message":"hello"}`))
package bulkflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/bulkflow/backoff"
	"github.com/BaSui01/bulkflow/bulk"
	"github.com/BaSui01/bulkflow/codec"
	"github.com/BaSui01/bulkflow/config"
	"github.com/BaSui01/bulkflow/delivery"
	"github.com/BaSui01/bulkflow/failover"
	"github.com/BaSui01/bulkflow/internal/metrics"
	"github.com/BaSui01/bulkflow/internal/pool"
	"github.com/BaSui01/bulkflow/internal/server"
	"github.com/BaSui01/bulkflow/setup"
	"github.com/BaSui01/bulkflow/transport"
)

// ErrPipelineClosed is returned by Add after Close.
var ErrPipelineClosed = errors.New("pipeline closed")

// =============================================================================
// ⚙️ Options
// =============================================================================

type options struct {
	logger       *zap.Logger
	registry     *prometheus.Registry
	httpClient   *http.Client
	backoff      backoff.Policy
	failover     failover.Policy
	discovery    transport.Discovery
	serializer   codec.Serializer
	deserializer codec.Deserializer
	operations   []delivery.Operation
}

// Option configures a Pipeline.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithHTTPClient overrides the HTTP client of the delivery transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithBackoffPolicy replaces the policy built from config.
func WithBackoffPolicy(p backoff.Policy) Option {
	return func(o *options) { o.backoff = p }
}

// WithFailoverPolicy replaces the policy built from config.
func WithFailoverPolicy(p failover.Policy) Option {
	return func(o *options) { o.failover = p }
}

// WithDiscovery subscribes the delivery server pool to d.
func WithDiscovery(d transport.Discovery) Option {
	return func(o *options) { o.discovery = d }
}

// WithCodec overrides the document codec used for action lines and responses.
func WithCodec(s codec.Serializer, d codec.Deserializer) Option {
	return func(o *options) {
		o.serializer = s
		o.deserializer = d
	}
}

// WithOperations registers post-dispatch operations on the coordinator.
func WithOperations(ops ...delivery.Operation) Option {
	return func(o *options) { o.operations = append(o.operations, ops...) }
}

// =============================================================================
// 🚚 Pipeline
// =============================================================================

// Pipeline owns every component of one delivery destination.
type Pipeline struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.Collector

	client      *transport.Client
	coordinator *delivery.Coordinator
	backoff     backoff.Policy
	failover    failover.Policy
	emitter     *bulk.Emitter
	buffers     *pool.BufferPool
	mode        bulk.Mode

	serializer   codec.Serializer
	deserializer codec.Deserializer

	metricsServer *server.Manager

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// Stats is a point-in-time view of a Pipeline.
type Stats struct {
	Emitter bulk.EmitterStats
	Buffers pool.PoolStats
	Servers []string
}

// New validates cfg, provisions setup resources when enabled and builds the
// pipeline. The transport connects lazily on the first batch.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	if o.serializer == nil {
		o.serializer = codec.JSON{}
	}
	if o.deserializer == nil {
		o.deserializer = codec.JSON{}
	}

	mode, err := bulk.ParseMode(cfg.Destination.Mode)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:          cfg,
		logger:       o.logger.With(zap.String("component", "pipeline")),
		registry:     o.registry,
		mode:         mode,
		serializer:   o.serializer,
		deserializer: o.deserializer,
		buffers:      pool.NewBufferPool(cfg.Batch.BufferSize, cfg.Batch.MaxRetainedBuffer),
		closed:       make(chan struct{}),
	}

	// 遥测启用时同样需要 Collector，其 OTel 仪表经全局 MeterProvider 导出
	if cfg.Metrics.Enabled || cfg.Telemetry.Enabled {
		p.metrics = metrics.NewCollector(cfg.Metrics.Namespace, o.registry, o.logger)
	}

	// 1. 传输层
	clientOpts := []transport.ClientOption{transport.WithMetrics(p.metrics)}
	if o.httpClient != nil {
		clientOpts = append(clientOpts, transport.WithHTTPClient(o.httpClient))
	}
	p.client, err = transport.NewClient(cfg.Destination.Config, o.logger, clientOpts...)
	if err != nil {
		return nil, err
	}
	if o.discovery != nil {
		o.discovery.AddListener(p.client.ServerPool())
	}

	// 2. 启动资源
	if cfg.Setup.Enabled && !cfg.Setup.IsEmpty() {
		if err := p.provision(ctx, o.httpClient); err != nil {
			return nil, err
		}
	}

	// 3. 策略
	p.backoff = o.backoff
	if p.backoff == nil {
		if p.backoff, err = backoff.New(cfg.Backoff); err != nil {
			return nil, err
		}
	}
	p.failover = o.failover
	if p.failover == nil {
		if p.failover, err = failover.New(ctx, cfg.Failover, o.logger); err != nil {
			return nil, err
		}
	}

	// 4. 协调器与发射器
	p.coordinator, err = delivery.New(p.client, p.backoff, o.logger, delivery.WithMetrics(p.metrics))
	if err != nil {
		p.closeFailover()
		return nil, err
	}
	for _, op := range o.operations {
		p.coordinator.AddOperation(op)
	}

	p.emitter, err = bulk.NewEmitter(cfg.Batch.Emitter(), p.newBuilder, p.coordinator.BatchListener(p.failover), o.logger)
	if err != nil {
		p.closeFailover()
		return nil, err
	}

	// 5. 指标暴露
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddr != "" {
		serverCfg := server.DefaultConfig()
		serverCfg.Addr = cfg.Metrics.ListenAddr
		p.metricsServer = server.NewManager(server.NewMetricsHandler(o.registry, p.health), serverCfg, o.logger)
		if err := p.metricsServer.Start(); err != nil {
			p.emitter.Close()
			p.closeFailover()
			return nil, err
		}
	}

	p.logger.Info("pipeline ready",
		zap.Strings("servers", p.client.ServerPool().Snapshot()),
		zap.String("mode", mode.String()),
		zap.String("backoff", cfg.Backoff.Kind),
		zap.String("failover", cfg.Failover.Kind),
	)
	return p, nil
}

// newBuilder is the emitter's builder factory.
func (p *Pipeline) newBuilder() *bulk.Builder {
	d := p.cfg.Destination
	return bulk.NewBuilder().
		WithBuffer(p.buffers).
		WithSerializer(p.serializer).
		WithDeserializer(p.deserializer).
		WithMode(p.mode).
		WithAction(d.Action).
		WithIndex(d.Index).
		WithType(d.Type).
		WithFilterPath(d.FilterPath)
}

// provision runs the setup chains on a dedicated client whose configuration
// is resolved against the delivery destination.
func (p *Pipeline) provision(ctx context.Context, hc *http.Client) error {
	return Provision(ctx, p.cfg, p.metrics, p.logger, hc)
}

// Provision resolves the setup transport configuration, starts a short-lived
// client and runs every configured setup chain.
func Provision(ctx context.Context, cfg *config.Config, m *metrics.Collector, logger *zap.Logger, hc *http.Client) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	source := cfg.Destination.Config
	setupCfg, err := transport.ResolveConfig(cfg.Setup.ReusePolicies, cfg.Setup.Transport, &source)
	if err != nil {
		return err
	}

	opts := []transport.ClientOption{transport.WithMetrics(m)}
	if hc != nil {
		opts = append(opts, transport.WithHTTPClient(hc))
	}
	client, err := transport.NewClient(setupCfg, logger.With(zap.String("client", "setup")), opts...)
	if err != nil {
		return err
	}
	if err := client.Start(); err != nil {
		return err
	}
	defer client.Stop()

	processor := setup.NewSyncStepProcessor(client, m, logger)
	provisioner, err := setup.NewProvisioner(cfg.Setup.Config, processor, logger)
	if err != nil {
		return err
	}
	return provisioner.Run(ctx)
}

// =============================================================================
// 📥 Input
// =============================================================================

// Add queues an item. It blocks while the emitter queue is full.
func (p *Pipeline) Add(ctx context.Context, item *bulk.Item) error {
	select {
	case <-p.closed:
		return ErrPipelineClosed
	default:
	}
	if err := p.emitter.Add(ctx, item); err != nil {
		if errors.Is(err, bulk.ErrEmitterClosed) {
			return ErrPipelineClosed
		}
		return err
	}
	return nil
}

// AddDocument queues a JSON document. An empty index uses the configured
// default target.
func (p *Pipeline) AddDocument(ctx context.Context, index, id string, source []byte) error {
	item := bulk.NewItem(index, source)
	item.ID = id
	return p.Add(ctx, item)
}

// =============================================================================
// 🔍 Introspection
// =============================================================================

// Registry returns the registry that holds the pipeline metrics.
func (p *Pipeline) Registry() *prometheus.Registry {
	return p.registry
}

// MetricsAddr returns the metrics listener address, or "" when not exposed.
func (p *Pipeline) MetricsAddr() string {
	if p.metricsServer == nil {
		return ""
	}
	return p.metricsServer.Addr()
}

// Failover returns the active failover policy.
func (p *Pipeline) Failover() failover.Policy {
	return p.failover
}

// Stats returns current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Emitter: p.emitter.Stats(),
		Buffers: p.buffers.Stats(),
		Servers: p.client.ServerPool().Snapshot(),
	}
}

func (p *Pipeline) health() error {
	select {
	case <-p.closed:
		return ErrPipelineClosed
	default:
	}
	if p.client.ServerPool().Size() == 0 {
		return fmt.Errorf("no servers available")
	}
	return nil
}

// =============================================================================
// 🛑 Shutdown
// =============================================================================

// Close flushes queued items, waits for in-flight batches and releases
// resources. It is safe to call more than once.
func (p *Pipeline) Close(ctx context.Context) error {
	p.closeOnce.Do(func() {
		close(p.closed)

		// 先发射剩余条目，再等待传输层排空在途请求
		p.emitter.Close()
		p.client.Stop()

		g, gctx := errgroup.WithContext(ctx)
		if p.metricsServer != nil {
			g.Go(func() error { return p.metricsServer.Shutdown(gctx) })
		}
		if closer, ok := p.failover.(io.Closer); ok {
			g.Go(closer.Close)
		}
		p.closeErr = g.Wait()

		stats := p.emitter.Stats()
		p.logger.Info("pipeline closed",
			zap.Int64("submitted", stats.Submitted),
			zap.Int64("batches", stats.Batches),
			zap.Int64("rejected", stats.Rejected),
			zap.Error(p.closeErr),
		)
	})
	return p.closeErr
}

func (p *Pipeline) closeFailover() {
	if closer, ok := p.failover.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			p.logger.Warn("failed to close failover policy", zap.Error(err))
		}
	}
}
