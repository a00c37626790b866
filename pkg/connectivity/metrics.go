package connectivity

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const metricsNamespace = "netpol_harness"

// Metrics describes one run.  It has its own registry so that a run's output holds only its own
// series.
type Metrics struct {
	Registry      *prometheus.Registry
	CaseResults   *prometheus.CounterVec
	CaseDuration  *prometheus.HistogramVec
	ProbeAttempts prometheus.Histogram
	ProbeOutcomes *prometheus.CounterVec
	CleanupErrors prometheus.Counter
	Coverage      *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CaseResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "case_results_total",
			Help:      "Test case results by category and status.",
		}, []string{"category", "status"}),
		CaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "case_duration_seconds",
			Help:      "Wall time of a test case, including cleanup requests.",
			Buckets:   []float64{5, 10, 20, 30, 60, 120, 300},
		}, []string{"category"}),
		ProbeAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "probe_attempts",
			Help:      "Attempts needed per expectation.",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),
		ProbeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "probe_outcomes_total",
			Help:      "Probe observations by expected and observed outcome.",
		}, []string{"expected", "observed"}),
		CleanupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cleanup_errors_total",
			Help:      "Cases whose namespace deletion request failed.",
		}),
		Coverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "coverage_percentage",
			Help:      "Pass percentage by category; category=\"overall\" is the weighted total.",
		}, []string{"category"}),
	}
	m.Registry.MustRegister(m.CaseResults, m.CaseDuration, m.ProbeAttempts, m.ProbeOutcomes, m.CleanupErrors, m.Coverage)
	return m
}

func (m *Metrics) ObserveCase(result *CaseResult) {
	m.CaseResults.WithLabelValues(result.Category, string(result.Status)).Inc()
	m.CaseDuration.WithLabelValues(result.Category).Observe(result.Duration.Seconds())
	if result.CleanupError != nil {
		m.CleanupErrors.Inc()
	}
	for _, probe := range result.ProbeResults {
		m.ProbeAttempts.Observe(float64(probe.Attempts))
		observed := string(probe.Observed)
		if probe.Err != nil {
			observed = "error"
		}
		m.ProbeOutcomes.WithLabelValues(string(probe.Expectation.Outcome), observed).Inc()
	}
}

func (m *Metrics) SetCoverage(category string, percentage float64) {
	m.Coverage.WithLabelValues(category).Set(percentage)
}

// WriteTextfile writes the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.Registry), "unable to write metrics to %s", path)
}

func (m *Metrics) Push(url string, runID string) error {
	pusher := push.New(url, "netpol_harness").Gatherer(m.Registry)
	if runID != "" {
		pusher = pusher.Grouping("run", runID)
	}
	err := pusher.Push()
	return errors.Wrapf(err, "unable to push metrics to %s", url)
}
