// Package metrics exposes Prometheus collectors for the dispatch
// pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Recorder struct {
	sent     *prometheus.CounterVec
	failed   *prometheus.CounterVec
	duration prometheus.Histogram
}

// New registers the dispatch collectors on reg.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Destinations delivered successfully, by channel.",
		}, []string{"channel"}),
		failed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "messages_failed_total",
			Help: "Destinations that failed to deliver, by channel and reason.",
		}, []string{"channel", "reason"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Wall time of one batch dispatch.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Recorder) Sent(channel string) {
	if r == nil {
		return
	}
	r.sent.WithLabelValues(channel).Inc()
}

func (r *Recorder) FailedSend(channel, reason string) {
	if r == nil {
		return
	}
	r.failed.WithLabelValues(channel, reason).Inc()
}

func (r *Recorder) ObserveDispatch(d time.Duration) {
	if r == nil {
		return
	}
	r.duration.Observe(d.Seconds())
}
