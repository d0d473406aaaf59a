// Package metrics exposes Prometheus metrics for the contacts API and the
// ingestion worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contacts"

// Ingestion outcomes, one per contact entry or file.
const (
	IngestInserted  = "inserted"
	IngestDuplicate = "duplicate"
	IngestInvalid   = "invalid"
	IngestFailed    = "failed"
	IngestProcessed = "processed"
)

// Custom registry to avoid the global default one.
var registry = prometheus.NewRegistry() //nolint:gochecknoglobals

var (
	httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by route and method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "files_total",
		Help:      "Upload attempts by result.",
	}, []string{"result"})

	uploadBytes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "bytes_total",
		Help:      "Bytes written to storage by uploads.",
	})

	ingestContacts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "contacts_total",
		Help:      "Contacts seen by the ingestion worker by outcome.",
	}, []string{"outcome"})

	ingestFiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "files_total",
		Help:      "Files processed by the ingestion worker by outcome.",
	}, []string{"outcome"})
)

func init() { //nolint:gochecknoinits
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequests, httpDuration, uploads, uploadBytes, ingestContacts, ingestFiles,
	)
}

// Registry exposes the registry, mainly for tests.
func Registry() *prometheus.Registry { return registry }

func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the matched route,
// so path parameters do not explode label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method

		httpRequests.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	}
}

func RecordUpload(result string, size int64) {
	uploads.WithLabelValues(result).Inc()
	if size > 0 {
		uploadBytes.Add(float64(size))
	}
}

func RecordIngestContact(outcome string) {
	ingestContacts.WithLabelValues(outcome).Inc()
}

func RecordIngestFile(outcome string) {
	ingestFiles.WithLabelValues(outcome).Inc()
}
