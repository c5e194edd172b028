package metrics

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName 是 Collector 注册 OpenTelemetry 仪表时使用的 instrumentation 名称
const MeterName = "github.com/BaSui01/bulkflow/internal/metrics"

// =============================================================================
// 🔭 OpenTelemetry 仪表
// =============================================================================

// otelInstruments 与 Prometheus 指标并行记录，经 OTLP 导出。
// 未安装 SDK MeterProvider 时记录为空操作。
type otelInstruments struct {
	requestDuration metric.Float64Histogram
	batches         metric.Int64Counter
	batchItems      metric.Int64Histogram
	failoverItems   metric.Int64Counter
}

func newOTelInstruments(mp metric.MeterProvider) (*otelInstruments, error) {
	meter := mp.Meter(MeterName)
	inst := &otelInstruments{}

	var errs []error
	var err error

	inst.requestDuration, err = meter.Float64Histogram("bulkflow.http.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of requests sent to the document store"),
	)
	errs = append(errs, err)

	inst.batches, err = meter.Int64Counter("bulkflow.batches",
		metric.WithUnit("{batch}"),
		metric.WithDescription("Batches by terminal outcome"),
	)
	errs = append(errs, err)

	inst.batchItems, err = meter.Int64Histogram("bulkflow.batch.items",
		metric.WithUnit("{item}"),
		metric.WithDescription("Number of items per batch"),
	)
	errs = append(errs, err)

	inst.failoverItems, err = meter.Int64Counter("bulkflow.failover.items",
		metric.WithUnit("{item}"),
		metric.WithDescription("Items handed to the failover policy"),
	)
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return inst, nil
}

// noopInstruments 在仪表创建失败时兜底
func noopInstruments() *otelInstruments {
	inst, _ := newOTelInstruments(noop.NewMeterProvider())
	return inst
}

func (i *otelInstruments) recordRequest(method string, status int, duration time.Duration) {
	i.requestDuration.Record(context.Background(), duration.Seconds(),
		metric.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.response.status_class", statusCode(status)),
		),
	)
}

func (i *otelInstruments) recordBatch(outcome string, items int) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	i.batches.Add(context.Background(), 1, attrs)
	i.batchItems.Record(context.Background(), int64(items), attrs)
}

func (i *otelInstruments) recordFailover(status string) {
	i.failoverItems.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
