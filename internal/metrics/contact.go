package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes, the only values of the outcome label.
const (
	OutcomeSent          = "sent"
	OutcomeInvalidBody   = "invalid_body"
	OutcomeMissingFields = "missing_fields"
	OutcomeInvalidEmail  = "invalid_email"
	OutcomeRelayError    = "relay_error"
)

type contactMetrics struct {
	rateLimited   prometheus.Counter
	evictions     prometheus.Counter
	limiterErrors prometheus.Counter
	submissions   *prometheus.CounterVec
	relayDuration prometheus.Histogram
}

func newContactMetrics() *contactMetrics {
	c := &contactMetrics{
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contact_rate_limited_total",
			Help: "Contact submissions rejected with 429",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contact_rate_limit_evictions_total",
			Help: "Limiter records evicted by capacity or TTL",
		}),
		limiterErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contact_rate_limit_errors_total",
			Help: "Limiter backend errors (request let through)",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contact_submissions_total",
			Help: "Contact submissions that passed the rate limiter, by outcome",
		}, []string{"outcome"}),
		relayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "contact_relay_duration_seconds",
			Help:    "Time to relay a submission to the form service",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
	// pre-create the outcome series so rates exist before the first submission
	for _, o := range []string{OutcomeSent, OutcomeInvalidBody, OutcomeMissingFields, OutcomeInvalidEmail, OutcomeRelayError} {
		c.submissions.WithLabelValues(o)
	}
	return c
}

func (c *contactMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(c.rateLimited, c.evictions, c.limiterErrors, c.submissions, c.relayDuration)
}

func (m *ServerMetrics) IncRateLimited()       { m.contact.rateLimited.Inc() }
func (m *ServerMetrics) IncRateLimitEviction() { m.contact.evictions.Inc() }
func (m *ServerMetrics) IncRateLimitError()    { m.contact.limiterErrors.Inc() }

// IncSubmission counts a submission by one of the Outcome constants.
func (m *ServerMetrics) IncSubmission(outcome string) {
	m.contact.submissions.WithLabelValues(outcome).Inc()
}

// ObserveRelayDuration records relay latency, with the trace as exemplar
// when the request is sampled.
func (m *ServerMetrics) ObserveRelayDuration(ctx context.Context, d time.Duration) {
	observe(ctx, m.contact.relayDuration, d.Seconds())
}
