package stagepipe

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for pipeline runs. Runs are counted
// through OnEvent, elements through Middleware.
type Metrics struct {
	Runs            *prometheus.CounterVec
	ElementRuns     *prometheus.CounterVec
	ElementDuration *prometheus.HistogramVec
	ActiveElements  prometheus.Gauge
}

// NewMetrics creates and registers the collectors with reg. A nil reg leaves
// them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagepipe_runs_total",
				Help: "Total number of pipeline runs by terminal status",
			},
			[]string{"status", "reason"},
		),
		ElementRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stagepipe_element_runs_total",
				Help: "Total number of element executions",
			},
			[]string{"category", "stage", "status"},
		),
		ElementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "stagepipe_element_duration_seconds",
				Help:    "Duration of element executions",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"category", "stage"},
		),
		ActiveElements: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stagepipe_active_elements",
				Help: "Number of elements currently executing",
			},
		),
	}
}

// Middleware records every element execution.
func (m *Metrics) Middleware() ElementMiddleware {
	return func(next ElementRunnerFunc) ElementRunnerFunc {
		return func(ctx context.Context, e *Element, input any, nextElement *Element, index int) (any, error) {
			m.ActiveElements.Inc()
			defer m.ActiveElements.Dec()

			start := time.Now()
			out, err := next(ctx, e, input, nextElement, index)

			status := "ok"
			if err != nil {
				status = "error"
			}
			category, stage := e.Category().String(), e.TypeID().String()
			m.ElementRuns.WithLabelValues(category, stage, status).Inc()
			m.ElementDuration.WithLabelValues(category, stage).Observe(time.Since(start).Seconds())
			return out, err
		}
	}
}

// OnEvent implements Observer and counts finished runs.
func (m *Metrics) OnEvent(e Event) {
	if e.Kind != EventRunFinished || e.Result == nil {
		return
	}
	m.Runs.WithLabelValues(string(e.Result.Status), string(e.Result.Reason)).Inc()
}
