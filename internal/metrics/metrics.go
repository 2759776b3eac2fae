// Package metrics exposes Prometheus counters for imports and submissions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/formulations/internal/core"
)

// Metrics implements core.Recorder on top of a Prometheus registry.
type Metrics struct {
	importRows         *prometheus.CounterVec
	recordsWritten     *prometheus.CounterVec
	submissions        *prometheus.CounterVec
	attachmentFailures prometheus.Counter
	requestDuration    *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

var _ core.Recorder = (*Metrics)(nil)

// New registers every collector with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		importRows: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formulations_import_rows_total",
			Help: "Bulk import rows by validation result",
		}, []string{"result"}),
		recordsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formulations_records_written_total",
			Help: "Validated import records by write outcome",
		}, []string{"outcome"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "formulations_submissions_total",
			Help: "Single submissions by result",
		}, []string{"result"}),
		attachmentFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "formulations_attachment_upload_failures_total",
			Help: "Attachment uploads that failed",
		}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "formulations_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		gatherer: reg,
	}
}

// ImportRows records how many rows of one import were accepted and rejected.
func (m *Metrics) ImportRows(accepted, rejected int) {
	m.importRows.WithLabelValues("accepted").Add(float64(accepted))
	m.importRows.WithLabelValues("rejected").Add(float64(rejected))
}

// RecordsWritten records the outcome of a batch write.
func (m *Metrics) RecordsWritten(inserted, skipped int) {
	m.recordsWritten.WithLabelValues("inserted").Add(float64(inserted))
	m.recordsWritten.WithLabelValues("skipped").Add(float64(skipped))
}

// Submission counts one single-record submission. result is one of the
// core.Result* values.
func (m *Metrics) Submission(result string) {
	m.submissions.WithLabelValues(result).Inc()
}

func (m *Metrics) AttachmentFailure() {
	m.attachmentFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument observes request durations labeled with the chi route pattern,
// so path parameters do not explode label cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
