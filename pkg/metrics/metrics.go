// Package metrics holds the Prometheus metrics of the kmall tools.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ssargent/kmall/pkg/codec"
	"github.com/ssargent/kmall/pkg/index"
	"github.com/ssargent/kmall/pkg/store"
)

const (
	cacheHit  = "hit"
	cacheMiss = "miss"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Session metrics
	recordsDecoded *prometheus.CounterVec
	recordsDropped *prometheus.CounterVec
	resyncBytes    prometheus.Counter
	corruptHeaders prometheus.Counter
	pingsDelivered prometheus.Counter
	indexDuration  prometheus.Histogram
	indexedRecords prometheus.Counter
	cacheLookups   *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
	bytesWritten   prometheus.Counter

	// HTTP request metrics
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight *prometheus.GaugeVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		recordsDecoded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmall_records_decoded_total",
				Help: "Datagrams decoded, by kind",
			},
			[]string{"kind"},
		),
		recordsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmall_records_dropped_total",
				Help: "Datagrams dropped, by kind and reason",
			},
			[]string{"kind", "reason"},
		),
		resyncBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "kmall_resync_bytes_total",
			Help: "Bytes skipped outside valid datagrams",
		}),
		corruptHeaders: factory.NewCounter(prometheus.CounterOpts{
			Name: "kmall_corrupt_headers_total",
			Help: "Headers whose declared length was not confirmed",
		}),
		pingsDelivered: factory.NewCounter(prometheus.CounterOpts{
			Name: "kmall_pings_delivered_total",
			Help: "Complete pings delivered by readers",
		}),
		indexDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kmall_index_build_duration_seconds",
			Help:    "Time to scan and sort one file",
			Buckets: prometheus.DefBuckets,
		}),
		indexedRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "kmall_indexed_records_total",
			Help: "Index entries built",
		}),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmall_index_cache_lookups_total",
				Help: "Index cache lookups, by result",
			},
			[]string{"result"},
		),
		recordsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmall_records_written_total",
				Help: "Datagrams written, by kind",
			},
			[]string{"kind"},
		),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "kmall_bytes_written_total",
			Help: "Bytes written by writers",
		}),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kmall_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kmall_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kmall_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),
	}
}

// RecordEvent counts a scan diagnostic.
func (m *Metrics) RecordEvent(e index.Event) {
	if m == nil {
		return
	}
	switch e.Type {
	case index.EventResync:
		m.resyncBytes.Add(float64(e.Length))
	case index.EventCorruptHeader:
		m.corruptHeaders.Inc()
	}
}

// RecordDropped counts a dropped record under the sentinel it wraps.
func (m *Metrics) RecordDropped(err *codec.RecordError) {
	if m == nil {
		return
	}
	m.recordsDropped.WithLabelValues(err.Kind.String(), DropReason(err)).Inc()
}

// DropReason names the failure class of a dropped record.
func DropReason(err error) string {
	switch {
	case errors.Is(err, codec.ErrBadData):
		return "bad_data"
	case errors.Is(err, codec.ErrUnintelligible):
		return "unintelligible"
	case errors.Is(err, store.ErrStaleFragment):
		return "stale"
	default:
		return "other"
	}
}

// RecordReader adds the counters of a finished reader session. Resync and
// corruption counts are expected through RecordEvent instead.
func (m *Metrics) RecordReader(stats store.ReaderStats) {
	if m == nil {
		return
	}
	for kind, n := range stats.Decoded {
		m.recordsDecoded.WithLabelValues(kind.String()).Add(float64(n))
	}
	m.pingsDelivered.Add(float64(stats.Pings))
}

// RecordIndex records one index build.
func (m *Metrics) RecordIndex(t *index.Table) {
	if m == nil {
		return
	}
	m.indexDuration.Observe(t.Report().ScanTime.Seconds())
	m.indexedRecords.Add(float64(t.Len()))
}

// RecordCacheLookup counts an index cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := cacheMiss
	if hit {
		result = cacheHit
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// RecordWriter adds the counters of a closed writer.
func (m *Metrics) RecordWriter(written map[codec.Kind]int64, size int64) {
	if m == nil {
		return
	}
	for kind, n := range written {
		m.recordsWritten.WithLabelValues(kind.String()).Add(float64(n))
	}
	m.bytesWritten.Add(float64(size))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	if m == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		// Capture the status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
