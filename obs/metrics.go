package obs

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce       sync.Once
	requestCounter    metric.Int64Counter
	latencyHistogram  metric.Float64Histogram
	failoverCounter   metric.Int64Counter
	exhaustionCounter metric.Int64Counter
)

func installMetrics(m metric.Meter) {
	metricsOnce.Do(func() {
		requestCounter, _ = m.Int64Counter("wahlchat.requests", metric.WithDescription("Total backend requests"))
		latencyHistogram, _ = m.Float64Histogram("wahlchat.request.latency_ms", metric.WithDescription("Backend latency (ms)"))
		failoverCounter, _ = m.Int64Counter("wahlchat.backend.failovers", metric.WithDescription("Candidate failures that triggered failover"))
		exhaustionCounter, _ = m.Int64Counter("wahlchat.backend.exhaustions", metric.WithDescription("Batches where every primary candidate failed"))
	})
}

func recordRequest(err error, latencyMS float64, attrs ...attribute.KeyValue) {
	status := "success"
	if err != nil {
		status = "error"
	}
	attrs = append(attrs, attribute.String("status", status))
	if requestCounter != nil {
		requestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	}
	if latencyHistogram != nil {
		latencyHistogram.Record(context.Background(), latencyMS, metric.WithAttributes(attrs...))
	}
}

// RecordFailover counts a failed candidate invocation.
func RecordFailover(backend string) {
	if failoverCounter != nil {
		failoverCounter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("backend", backend)))
	}
}

// RecordExhaustion counts an exhausted primary batch.
func RecordExhaustion() {
	if exhaustionCounter != nil {
		exhaustionCounter.Add(context.Background(), 1)
	}
}
