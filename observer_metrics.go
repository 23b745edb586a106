package replaycache

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsObserver records operation counts and latencies as Prometheus metrics.
type MetricsObserver struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetricsObserver registers the cache metrics with reg and returns an
// observer that updates them. A nil reg uses prometheus.DefaultRegisterer.
//
// Example: expose metrics for a cache
//
//	reg := prometheus.NewRegistry()
//	obs, _ := replaycache.NewMetricsObserver(reg)
//	ctx := context.Background()
//	c, _ := replaycache.NewCache(ctx, replaycache.NewMemoryStore(ctx), replaycache.WithCacheObserver(obs))
//	_, _ = c.Store(replaycache.Integer(1))
func NewMetricsObserver(reg prometheus.Registerer) (*MetricsObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &MetricsObserver{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "replaycache",
			Name:      "operations_total",
			Help:      "Cache operations by operation, driver and result.",
		}, []string{"op", "driver", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "replaycache",
			Name:      "operation_duration_seconds",
			Help:      "Cache operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"op", "driver"}),
	}
	for _, c := range []prometheus.Collector{m.ops, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OnCacheOp implements Observer.
func (m *MetricsObserver) OnCacheOp(_ context.Context, op string, _ string, hit bool, err error, dur time.Duration, driver Driver) {
	m.ops.WithLabelValues(op, string(driver), metricResult(op, hit, err)).Inc()
	m.duration.WithLabelValues(op, string(driver)).Observe(dur.Seconds())
}

// metricResult labels writes as ok and reads as hit or miss.
func metricResult(op string, hit bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case op == "store" || op == "flush":
		return "ok"
	case hit:
		return "hit"
	default:
		return "miss"
	}
}
