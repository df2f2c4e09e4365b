package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StageExtract = "extract"
	StageQuery   = "query"
)

var (
	StageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parimal_stage_total",
			Help: "Number of extract/query stage executions by outcome",
		},
		[]string{"stage", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "parimal_stage_duration_seconds",
			Help:    "Duration of extract/query stages in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"stage"},
	)

	ExternalCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "parimal_external_calls_total",
			Help: "Outbound OCR and generation calls by provider and outcome",
		},
		[]string{"service", "provider", "status"},
	)
)

// ObserveStage records one stage execution that started at start.
func ObserveStage(stage, status string, start time.Time) {
	StageTotal.WithLabelValues(stage, status).Inc()
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func ObserveCall(service, provider string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExternalCalls.WithLabelValues(service, provider, status).Inc()
}
