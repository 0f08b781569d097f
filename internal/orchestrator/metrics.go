package orchestrator

import "github.com/prometheus/client_golang/prometheus"

var (
	metricLoadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchd",
		Subsystem: "orchestrator",
		Name:      "loads_total",
		Help:      "Total number of successful model loads",
	})

	metricLoadFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchd",
		Subsystem: "orchestrator",
		Name:      "load_failures_total",
		Help:      "Total number of failed model loads",
	}, []string{"reason"})

	metricUnloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchd",
		Subsystem: "orchestrator",
		Name:      "unloads_total",
		Help:      "Total number of model unloads requested via the control plane",
	})

	metricEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchd",
		Subsystem: "orchestrator",
		Name:      "evictions_total",
		Help:      "Total number of models evicted to free memory",
	})

	metricIdleUnloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "orchd",
		Subsystem: "orchestrator",
		Name:      "idle_unloads_total",
		Help:      "Total number of models unloaded after exceeding their idle timeout",
	})

	metricHealthChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orchd",
		Subsystem: "orchestrator",
		Name:      "health_checks_total",
		Help:      "Total health checks performed by the sweeper",
	}, []string{"status"})

	metricVRAMUsedMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchd",
		Subsystem: "orchestrator",
		Name:      "vram_used_mb",
		Help:      "Estimated VRAM counted against the budget in MB",
	})

	metricBudgetMB = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "orchd",
		Subsystem: "orchestrator",
		Name:      "vram_budget_mb",
		Help:      "Configured VRAM budget in MB (0 = unlimited)",
	})
)

func init() {
	prometheus.MustRegister(
		metricLoadsTotal,
		metricLoadFailuresTotal,
		metricUnloadsTotal,
		metricEvictionsTotal,
		metricIdleUnloadsTotal,
		metricHealthChecksTotal,
		metricVRAMUsedMB,
		metricBudgetMB,
	)
}
