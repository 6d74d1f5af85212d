package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type contentMetrics struct {
	source        *prometheus.GaugeVec
	loadedAt      prometheus.Gauge
	bundle        *prometheus.GaugeVec
	polls         prometheus.Counter
	swaps         prometheus.Counter
	watcherErrors *prometheus.CounterVec
	loadDuration  prometheus.Histogram
	lastSuccess   prometheus.Gauge
	stale         prometheus.Gauge
}

func newContentMetrics() *contentMetrics {
	return &contentMetrics{
		source: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_source_info",
			Help: "Current content source (label carries value, gauge is always 1)",
		}, []string{"source"}),
		loadedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the current content bundle was loaded",
		}),
		bundle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "content_bundle_info",
			Help: "Currently active content bundle (label carries identity, value is always 1)",
		}, []string{"sha256"}),
		polls: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_watcher_polls_total",
			Help: "Total number of watcher poll cycles",
		}),
		swaps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "content_watcher_swaps_total",
			Help: "Total number of successful content bundle swaps",
		}),
		watcherErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_watcher_errors_total",
			Help: "Total watcher errors by stage",
		}, []string{"type"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "content_bundle_load_duration_seconds",
			Help:    "Time to download, verify, and extract a content bundle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_watcher_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful poll",
		}),
		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "content_watcher_stale",
			Help: "Whether the content watcher is stale (1) or healthy (0)",
		}),
	}
}

func (c *contentMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(c.source, c.loadedAt, c.bundle, c.polls, c.swaps, c.watcherErrors, c.loadDuration, c.lastSuccess, c.stale)
}

func (m *ServerMetrics) SetContentSource(source string) {
	m.content.source.Reset()
	m.content.source.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetContentLoadedTimestamp(t time.Time) {
	m.content.loadedAt.Set(float64(t.Unix()))
}

func (m *ServerMetrics) SetContentBundle(sha256 string) {
	m.content.bundle.Reset()
	m.content.bundle.WithLabelValues(sha256).Set(1)
}

func (m *ServerMetrics) IncWatcherPolls() { m.content.polls.Inc() }
func (m *ServerMetrics) IncWatcherSwaps() { m.content.swaps.Inc() }

func (m *ServerMetrics) IncWatcherError(stage string) {
	m.content.watcherErrors.WithLabelValues(stage).Inc()
}

func (m *ServerMetrics) ObserveBundleLoadDuration(d time.Duration) {
	m.content.loadDuration.Observe(d.Seconds())
}

func (m *ServerMetrics) SetWatcherLastSuccess(t time.Time) {
	m.content.lastSuccess.Set(float64(t.Unix()))
}

func (m *ServerMetrics) SetWatcherStale(stale bool) {
	m.content.stale.Set(boolGauge(stale))
}
