// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Batch outcomes used as the "outcome" label.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeRejected  = "rejected"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
// 所有方法对 nil 接收者安全，指标是纯观测性的，不影响投递行为。
type Collector struct {
	// HTTP 指标
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestSize     *prometheus.HistogramVec

	// 批次指标
	batchesTotal    *prometheus.CounterVec
	batchItems      *prometheus.HistogramVec
	batchesInFlight prometheus.Gauge

	// 故障转移指标
	failoverItemsTotal *prometheus.CounterVec

	// 启动链指标
	setupStepsTotal *prometheus.CounterVec

	// 服务器池指标
	serverPoolMisses prometheus.Counter

	// OTLP 导出的并行仪表
	instruments *otelInstruments

	logger *zap.Logger
}

// Option 自定义 Collector
type Option func(*collectorOptions)

type collectorOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider 指定 OpenTelemetry MeterProvider，默认使用全局 provider
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *collectorOptions) { o.meterProvider = mp }
}

// NewCollector 创建指标收集器
// reg 为 nil 时使用 prometheus.DefaultRegisterer。
// 请求耗时、批次终态与故障转移条目同时记录到 OpenTelemetry 仪表；
// 全局 provider 会委托给之后由 telemetry.Init 安装的 SDK provider。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := collectorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	inst, err := newOTelInstruments(o.meterProvider)
	if err != nil {
		c.logger.Warn("failed to create otel instruments, using noop", zap.Error(err))
		inst = noopInstruments()
	}
	c.instruments = inst

	// HTTP 指标
	c.requestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of requests sent to the document store",
		},
		[]string{"method", "status"},
	)

	c.requestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	c.requestSize = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "Serialized request payload size in bytes",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		},
		[]string{"method"},
	)

	// 批次指标
	c.batchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Total number of batches by terminal outcome",
		},
		[]string{"outcome"},
	)

	c.batchItems = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_items",
			Help:      "Number of items per batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"outcome"},
	)

	c.batchesInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batches_in_flight",
			Help:      "Number of dispatched batches awaiting a response",
		},
	)

	// 故障转移指标
	c.failoverItemsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failover_items_total",
			Help:      "Total number of items handed to the failover policy",
		},
		[]string{"status"}, // status: delivered, error
	)

	// 启动链指标
	c.setupStepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setup_steps_total",
			Help:      "Total number of processed setup steps by result",
		},
		[]string{"step", "result"},
	)

	c.serverPoolMisses = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "server_pool_empty_total",
			Help:      "Number of times the server pool was empty when an address was requested",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 请求指标记录
// =============================================================================

// RecordRequest 记录一次请求
func (c *Collector) RecordRequest(method string, status int, duration time.Duration, size int) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(method, statusCode(status)).Inc()
	c.requestDuration.WithLabelValues(method).Observe(duration.Seconds())
	if size >= 0 {
		c.requestSize.WithLabelValues(method).Observe(float64(size))
	}
	c.instruments.recordRequest(method, status, duration)
}

// =============================================================================
// 📦 批次指标记录
// =============================================================================

// BatchDispatched 记录批次进入在途状态
func (c *Collector) BatchDispatched() {
	if c == nil {
		return
	}
	c.batchesInFlight.Inc()
}

// BatchSettled 记录在途批次结束
func (c *Collector) BatchSettled() {
	if c == nil {
		return
	}
	c.batchesInFlight.Dec()
}

// RecordBatch 记录批次终态
func (c *Collector) RecordBatch(outcome string, items int) {
	if c == nil {
		return
	}
	c.batchesTotal.WithLabelValues(outcome).Inc()
	c.batchItems.WithLabelValues(outcome).Observe(float64(items))
	c.instruments.recordBatch(outcome, items)
}

// RecordFailover 记录故障转移结果
func (c *Collector) RecordFailover(delivered bool) {
	if c == nil {
		return
	}
	status := "delivered"
	if !delivered {
		status = "error"
	}
	c.failoverItemsTotal.WithLabelValues(status).Inc()
	c.instruments.recordFailover(status)
}

// RecordSetupStep 记录启动步骤结果
func (c *Collector) RecordSetupStep(step, result string) {
	if c == nil {
		return
	}
	c.setupStepsTotal.WithLabelValues(step, result).Inc()
}

// RecordServerPoolMiss 记录服务器池为空
func (c *Collector) RecordServerPoolMiss() {
	if c == nil {
		return
	}
	c.serverPoolMisses.Inc()
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
