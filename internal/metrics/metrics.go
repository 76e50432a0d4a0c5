// Package metrics exposes monitor health as Prometheus collectors. The core
// records through the Recorder interface so it runs without Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch and report outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Recorder receives monitor events.
type Recorder interface {
	FetchCompleted(outcome string, latency time.Duration)
	TickSkipped()
	FeedStale(stale bool)
	AlertActive(alert string, active bool)
	ReportFetched(outcome string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) FetchCompleted(string, time.Duration) {}
func (Nop) TickSkipped()                         {}
func (Nop) FeedStale(bool)                       {}
func (Nop) AlertActive(string, bool)             {}
func (Nop) ReportFetched(string)                 {}

// Prometheus implements Recorder with registered collectors.
type Prometheus struct {
	fetches *prometheus.CounterVec
	latency prometheus.Histogram
	skipped prometheus.Counter
	stale   prometheus.Gauge
	alerts  *prometheus.GaugeVec
	reports *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmetmon_fetch_total",
			Help: "Prediction endpoint fetches by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "helmetmon_fetch_latency_seconds",
			Help:    "Round-trip time of prediction endpoint fetches.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "helmetmon_ticks_skipped_total",
			Help: "Poll ticks skipped because a fetch was still outstanding.",
		}),
		stale: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "helmetmon_feed_stale",
			Help: "1 while the same packet has been re-served past the stale threshold.",
		}),
		alerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "helmetmon_alert_active",
			Help: "1 while the named alert is raised.",
		}, []string{"alert"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "helmetmon_report_fetch_total",
			Help: "Weekly report fetches by outcome.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{p.fetches, p.latency, p.skipped, p.stale, p.alerts, p.reports} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Prometheus) FetchCompleted(outcome string, latency time.Duration) {
	p.fetches.WithLabelValues(outcome).Inc()
	p.latency.Observe(latency.Seconds())
}

func (p *Prometheus) TickSkipped() { p.skipped.Inc() }

func (p *Prometheus) FeedStale(stale bool) { p.stale.Set(boolGauge(stale)) }

func (p *Prometheus) AlertActive(alert string, active bool) {
	p.alerts.WithLabelValues(alert).Set(boolGauge(active))
}

func (p *Prometheus) ReportFetched(outcome string) { p.reports.WithLabelValues(outcome).Inc() }

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
