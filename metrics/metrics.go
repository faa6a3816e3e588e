package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "pwbox"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_total",
		Help:      "Count of finished runs by status",
	}, []string{
		"status",
	})

	runErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_errors_total",
		Help:      "Count of runs that stopped with an error, by stage",
	}, []string{
		"stage",
	})

	runsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "runs_in_flight",
		Help:      "Number of runs currently executing",
	})

	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "image_builds_total",
		Help:      "Count of image build attempts by invocation form and result",
	}, []string{
		"form",
		"result",
	})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "stage_duration_seconds",
		Help:      "Duration of pipeline stages",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
	}, []string{
		"stage",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "tests_total",
		Help:      "Count of executed tests by outcome",
	}, []string{
		"outcome",
	})

	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "events_total",
		Help:      "Count of progress events emitted by type",
	}, []string{
		"type",
	})
)

// RecordRunStarted increments the in-flight gauge.
func RecordRunStarted() {
	runsInFlight.Inc()
}

// RecordRunFinished records the end of a run.
func RecordRunFinished(status string, duration time.Duration) {
	runsInFlight.Dec()
	runsTotal.WithLabelValues(status).Inc()
	stageDuration.WithLabelValues("total").Observe(duration.Seconds())
}

// RecordRunError records the stage a run failed in.
func RecordRunError(stage string) {
	runErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordBuildAttempt records one image build invocation.
func RecordBuildAttempt(form string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	buildsTotal.WithLabelValues(form, result).Inc()
}

// RecordStage records how long a pipeline stage took.
func RecordStage(stage string, duration time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordTests records the outcome counts of a report.
func RecordTests(passed, failed, total int) {
	testsTotal.WithLabelValues("passed").Add(float64(passed))
	testsTotal.WithLabelValues("failed").Add(float64(failed))
	if other := total - passed - failed; other > 0 {
		testsTotal.WithLabelValues("other").Add(float64(other))
	}
}

// RecordEvent records an emitted progress event.
func RecordEvent(eventType string) {
	eventsTotal.WithLabelValues(eventType).Inc()
}
