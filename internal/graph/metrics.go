package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("resonance.graph")
	meter  = otel.Meter("resonance.graph")
)

var (
	queryLatency  metric.Float64Histogram
	nodesInserted metric.Int64Counter
	cacheHits     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queryLatency, err = meter.Float64Histogram(
			"index_query_duration_seconds",
			metric.WithDescription("Duration of fractal index queries"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesInserted, err = meter.Int64Counter(
			"index_nodes_inserted_total",
			metric.WithDescription("Nodes inserted into the fractal index"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheHits, err = meter.Int64Counter(
			"index_neighbor_cache_hits_total",
			metric.WithDescription("Neighbor queries answered from cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordQuery(ctx context.Context, queryType string, start time.Time, resultCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	queryLatency.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("query_type", queryType),
			attribute.Int("result_count", resultCount),
		),
	)
}

func recordInsert(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	nodesInserted.Add(ctx, 1)
}

func recordCacheHit(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1)
}
