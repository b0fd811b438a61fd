// Package obs registers the process's Prometheus metrics and exposes a gin
// middleware plus recording helpers; internal/httpapi mounts /metrics.
package obs

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// WriteLatency records AddMemory/UpdateMemory/DeleteMemory duration (C9).
	WriteLatency *prometheus.HistogramVec

	// SearchLatency records C5 query/keyword duration, labeled by mode.
	SearchLatency *prometheus.HistogramVec

	// ClusterLatency records C7 clustering duration, labeled by method.
	ClusterLatency *prometheus.HistogramVec

	// VectorIndexSize is registered for the number of entries held by C4;
	// no component sets it, so it reports 0.
	VectorIndexSize prometheus.Gauge

	// SuggestIndexSize is registered for the number of distinct tokens held
	// by C6; no component sets it, so it reports 0.
	SuggestIndexSize prometheus.Gauge

	// EmbedFailuresTotal is registered for lenient embedding failures
	// swallowed by C9; C9 only logs them, so it reports 0.
	EmbedFailuresTotal prometheus.Counter
)

var initOnce sync.Once

// Init registers every metric with prometheus.DefaultRegisterer.
// httpapi.Mount calls it; recording helpers are no-ops until it has run.
// Safe to call multiple times; only the first call registers.
func Init() {
	initOnce.Do(initInner)
}

func initInner() {
	f := promauto.With(prometheus.DefaultRegisterer)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openmemory_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openmemory_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	WriteLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openmemory_write_latency_seconds",
			Help:    "Write-pipeline operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	SearchLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openmemory_search_latency_seconds",
			Help:    "Search operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	ClusterLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openmemory_cluster_latency_seconds",
			Help:    "Clustering operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	VectorIndexSize = f.NewGauge(prometheus.GaugeOpts{
		Name: "openmemory_vector_index_size",
		Help: "Number of entries currently held by the vector store",
	})

	SuggestIndexSize = f.NewGauge(prometheus.GaugeOpts{
		Name: "openmemory_suggest_index_size",
		Help: "Number of distinct tokens currently held by the suggestion index",
	})

	EmbedFailuresTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "openmemory_embed_failures_total",
		Help: "Total lenient embedding failures swallowed by the write pipeline",
	})
}

// Middleware records per-request HTTP metrics. A no-op until Init has run.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

// ObserveWrite records operation's duration against WriteLatency, a no-op
// until Init has run.
func ObserveWrite(operation string, d time.Duration) {
	if WriteLatency == nil {
		return
	}
	WriteLatency.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveSearch records mode's duration against SearchLatency, a no-op
// until Init has run.
func ObserveSearch(mode string, d time.Duration) {
	if SearchLatency == nil {
		return
	}
	SearchLatency.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveCluster records method's duration against ClusterLatency, a no-op
// until Init has run.
func ObserveCluster(method string, d time.Duration) {
	if ClusterLatency == nil {
		return
	}
	ClusterLatency.WithLabelValues(method).Observe(d.Seconds())
}
