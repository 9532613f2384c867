package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "buildworker"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration *prom.HistogramVec
	stageResults  *prom.CounterVec
	buildOutcome  *prom.CounterVec
	lockSkips     *prom.CounterVec
	cloneAttempts *prom.CounterVec
	publishes     *prom.CounterVec
}

// NewPrometheusRecorder constructs the collectors and registers them with reg.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		buildOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_outcomes_total",
			Help:      "Build outcomes by artifact kind and final status",
		}, []string{"kind", "result"}),
		lockSkips: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "lock_skips_total",
			Help:      "Tasks skipped because another worker held the lock",
		}, []string{"stage"}),
		cloneAttempts: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "clone_attempts_total",
			Help:      "Clone attempts by result",
		}, []string{"result"}),
		publishes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "publish_results_total",
			Help:      "Publish and deploy results per tier",
		}, []string{"tier", "kind", "result"}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.buildOutcome, pr.lockSkips, pr.cloneAttempts, pr.publishes)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(kind string, result ResultLabel) {
	if p == nil {
		return
	}
	p.buildOutcome.WithLabelValues(kind, string(result)).Inc()
}

func (p *PrometheusRecorder) IncLockSkip(stage string) {
	if p == nil {
		return
	}
	p.lockSkips.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncCloneAttempt(success bool) {
	if p == nil {
		return
	}
	res := string(ResultFailure)
	if success {
		res = string(ResultSuccess)
	}
	p.cloneAttempts.WithLabelValues(res).Inc()
}

func (p *PrometheusRecorder) IncPublish(tier, kind string, result ResultLabel) {
	if p == nil {
		return
	}
	p.publishes.WithLabelValues(tier, kind, string(result)).Inc()
}
