package pipeline

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/moolen/costlens/internal/models"
)

// Metrics holds Prometheus metrics for pipeline observability.
// Batch runs push them to a Pushgateway when one is configured.
type Metrics struct {
	StageDuration *prometheus.HistogramVec // seconds per stage
	StageRuns     *prometheus.CounterVec   // stage executions by status
	StageItems    *prometheus.GaugeVec     // records or edges written by the last run of a stage
	LastSuccess   prometheus.Gauge         // unix time of the last successful run

	gatherer prometheus.Gatherer
}

// Stage run statuses
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// NewMetrics creates pipeline metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWith(reg, reg)
}

// NewMetricsWith registers pipeline metrics on reg. gatherer is what Push sends.
func NewMetricsWith(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "costlens_pipeline_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"stage"})

	stageRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "costlens_pipeline_stage_runs_total",
		Help: "Pipeline stage executions by status",
	}, []string{"stage", "status"})

	stageItems := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "costlens_pipeline_stage_items",
		Help: "Records or edges written by the last run of a stage",
	}, []string{"stage"})

	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "costlens_pipeline_last_success_timestamp_seconds",
		Help: "Unix time of the last successful pipeline run",
	})

	reg.MustRegister(stageDuration, stageRuns, stageItems, lastSuccess)

	return &Metrics{
		StageDuration: stageDuration,
		StageRuns:     stageRuns,
		StageItems:    stageItems,
		LastSuccess:   lastSuccess,
		gatherer:      gatherer,
	}
}

// observeStage records one executed stage
func (m *Metrics) observeStage(r StageResult) {
	stage := string(r.Stage)
	if r.Skipped {
		m.StageRuns.WithLabelValues(stage, StatusSkipped).Inc()
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(r.Duration.Seconds())
	if r.Err != nil {
		m.StageRuns.WithLabelValues(stage, StatusFailure).Inc()
		return
	}
	m.StageRuns.WithLabelValues(stage, StatusSuccess).Inc()
	m.StageItems.WithLabelValues(stage).Set(float64(r.Items))
}

// Push sends the gathered metrics to a Pushgateway, grouped by month. Runs
// without a month (structure only) are pushed under the job alone. An empty
// url is a no-op.
func (m *Metrics) Push(ctx context.Context, url, job string, month models.Month) error {
	if url == "" {
		return nil
	}
	pusher := push.New(url, job).Gatherer(m.gatherer)
	if !month.IsZero() {
		pusher = pusher.Grouping("month", month.String())
	}
	err := pusher.PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", url, err)
	}
	return nil
}
