// Package metrics exposes Prometheus counters for the submission workflow.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	signIns          *prometheus.CounterVec
	signUps          *prometheus.CounterVec
	submissions      *prometheus.CounterVec
	uploadBytes      prometheus.Counter
	decisions        *prometheus.CounterVec
	roleChanges      *prometheus.CounterVec
	requestDurations *prometheus.HistogramVec
}

// New registers the portal metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the portal metrics on reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: g,
		signIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_sign_ins_total",
			Help: "Sign-in attempts by result.",
		}, []string{"result"}),
		signUps: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_sign_ups_total",
			Help: "Registrations by result.",
		}, []string{"result"}),
		submissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_submissions_total",
			Help: "Submissions created by kind (full form or minimal) and result.",
		}, []string{"kind", "result"}),
		uploadBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "portal_upload_bytes_total",
			Help: "Bytes of submission assets written to object storage.",
		}),
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_review_decisions_total",
			Help: "Review decisions by outcome.",
		}, []string{"outcome"}),
		roleChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_role_changes_total",
			Help: "Role assignments by new role.",
		}, []string{"role"}),
		requestDurations: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency by method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) SignIn(err error) {
	if m == nil {
		return
	}
	m.signIns.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) SignUp(err error) {
	if m == nil {
		return
	}
	m.signUps.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) Submission(kind string, err error) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, result(err)).Inc()
}

func (m *Metrics) UploadedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.uploadBytes.Add(float64(n))
}

func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RoleChange(role string) {
	if m == nil {
		return
	}
	m.roleChanges.WithLabelValues(role).Inc()
}

// ObserveRequest matches util.StatusObserver.
func (m *Metrics) ObserveRequest(r *http.Request, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDurations.WithLabelValues(r.Method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
