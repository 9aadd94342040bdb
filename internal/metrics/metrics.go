package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the compose and submission metrics. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	registry    *prometheus.Registry
	intents     *prometheus.CounterVec
	submissions *prometheus.CounterVec
	duration    prometheus.Histogram
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		intents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segmentline_intents_total",
				Help: "Compose intents applied, by intent and result.",
			},
			[]string{"intent", "result"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "segmentline_submissions_total",
				Help: "Segment submissions, by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "segmentline_submission_duration_seconds",
				Help:    "Duration of collector POSTs.",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	r.registry.MustRegister(r.intents, r.submissions, r.duration)
	return r
}

// Intent counts one applied (or rejected) intent.
func (r *Recorder) Intent(name string, err error) {
	if r == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.intents.WithLabelValues(name, result).Inc()
}

// Submission counts a finished submit; outcome is one of success,
// validation_error, submission_error or busy.
func (r *Recorder) Submission(outcome string) {
	if r == nil {
		return
	}
	r.submissions.WithLabelValues(outcome).Inc()
}

// ObserveSend records the duration of one collector call.
func (r *Recorder) ObserveSend(d time.Duration) {
	if r == nil {
		return
	}
	r.duration.Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
