// Package metrics exports scheduler and crew measurements to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nidhogg/droid/internal/crew"
	"github.com/nidhogg/droid/internal/orchestrator"
)

// Collector implements orchestrator.Observer and crew.Observer.
type Collector struct {
	registry *prometheus.Registry

	tasksSubmitted *prometheus.CounterVec
	tasksFinished  *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
	queueDepth     prometheus.Gauge

	workItems        *prometheus.CounterVec
	workItemDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers all metrics under namespace on a private registry.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.tasksSubmitted = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_submitted_total",
			Help:      "Total number of submitted tasks",
		},
		[]string{"task"},
	)

	c.tasksFinished = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_finished_total",
			Help:      "Total number of finished tasks by status",
		},
		[]string{"task", "status"},
	)

	c.taskDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task handler duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"task"},
	)

	c.queueDepth = f.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of tasks waiting for the worker",
		},
	)

	c.workItems = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crew_work_items_total",
			Help:      "Total number of executed crew work items",
		},
		[]string{"role", "status"},
	)

	c.workItemDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crew_work_item_duration_seconds",
			Help:      "Crew work item duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"role"},
	)

	reg.MustRegister(prometheus.NewGoCollector())
	return c
}

func (c *Collector) TaskSubmitted(name string) {
	c.tasksSubmitted.WithLabelValues(name).Inc()
}

func (c *Collector) TaskFinished(name string, status orchestrator.TaskStatus, d time.Duration) {
	c.tasksFinished.WithLabelValues(name, string(status)).Inc()
	if status == orchestrator.TaskCompleted || status == orchestrator.TaskFailed {
		c.taskDuration.WithLabelValues(name).Observe(d.Seconds())
	}
}

func (c *Collector) QueueDepth(n int) {
	c.queueDepth.Set(float64(n))
}

func (c *Collector) WorkItemFinished(role string, status crew.Status, d time.Duration) {
	c.workItems.WithLabelValues(role, string(status)).Inc()
	c.workItemDuration.WithLabelValues(role).Observe(d.Seconds())
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

var (
	_ orchestrator.Observer = (*Collector)(nil)
	_ crew.Observer         = (*Collector)(nil)
)
