// Package metrics counts collection activity in a private prometheus registry
// that can be written out in node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testmeta"
)

var (
	registry = prometheus.NewRegistry()

	stageOutcomesTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "stage_outcomes_total",
		Help:      "Count of finished stages by stage and classified outcome",
	}, []string{
		"stage",
		"outcome",
	})

	routeRejectionsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "route_rejections_total",
		Help:      "Count of custom routes or route segments rejected",
	}, []string{
		"reason",
	})

	handlerFailuresTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "handler_failures_total",
		Help:      "Count of custom event handlers that failed",
	}, []string{
		"event",
	})

	exportsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "exports_total",
		Help:      "Count of metadata exports by format and result",
	}, []string{
		"format",
		"result",
	})

	sessionTests = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_tests",
		Help:      "Test totals of the last finished session",
	}, []string{
		"run_id",
		"result",
	})

	sessionDuration = promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "session_duration_seconds",
		Help:      "Duration of the last finished session",
	}, []string{
		"run_id",
	})
)

// Rejection reasons used with RecordRouteRejected.
const (
	ReasonReserved    = "reserved"
	ReasonPlaceholder = "placeholder"
	ReasonMalformed   = "malformed"
	ReasonEmpty       = "empty"
)

// Registry returns the registry holding every testmeta metric.
func Registry() *prometheus.Registry {
	return registry
}

func RecordStageOutcome(stage, outcome string) {
	stageOutcomesTotal.WithLabelValues(stage, outcome).Inc()
}

func RecordRouteRejected(reason string) {
	routeRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordHandlerFailure(event string) {
	handlerFailuresTotal.WithLabelValues(event).Inc()
}

// RecordExport counts one export attempt; a non-nil err counts as a failure.
func RecordExport(format string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	exportsTotal.WithLabelValues(format, result).Inc()
}

// RecordSession publishes the totals of a finished session.
func RecordSession(runID string, collected, passed, failed, skipped, errored int, duration time.Duration) {
	sessionTests.WithLabelValues(runID, "collected").Set(float64(collected))
	sessionTests.WithLabelValues(runID, "passed").Set(float64(passed))
	sessionTests.WithLabelValues(runID, "failed").Set(float64(failed))
	sessionTests.WithLabelValues(runID, "skipped").Set(float64(skipped))
	sessionTests.WithLabelValues(runID, "error").Set(float64(errored))
	sessionDuration.WithLabelValues(runID).Set(duration.Seconds())
}

// WriteTextfile writes every metric to path in textfile-collector format.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
