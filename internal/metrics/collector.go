// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records every Prometheus metric the bus and the
// HTTP surface emit. Metrics register on the default registry, so build at
// most one Collector per namespace per process.
type Collector struct {
	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// Workflow state metrics
	stepTransitions   *prometheus.CounterVec
	workflowsActive   *prometheus.GaugeVec
	pausesTotal       *prometheus.CounterVec
	resumesTotal      *prometheus.CounterVec
	expirationsTotal  *prometheus.CounterVec
	rejectedMutations *prometheus.CounterVec
	recoveredTotal    *prometheus.CounterVec

	// Subscription fan-out metrics
	subscribersActive  *prometheus.GaugeVec
	snapshotsPublished *prometheus.CounterVec
	snapshotsDropped   *prometheus.CounterVec

	// Store metrics
	storeOpDuration *prometheus.HistogramVec
	storeOpErrors   *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector and registers its metrics under the
// given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP metrics
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// Workflow state metrics
	c.stepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_transitions_total",
			Help:      "Total number of workflow step transitions",
		},
		[]string{"workflow_type", "from_step", "to_step"},
	)

	c.workflowsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflows_active",
			Help:      "Number of workflows not yet in a terminal step",
		},
		[]string{"workflow_type"},
	)

	c.pausesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pauses_total",
			Help:      "Total number of pause checkpoints created",
		},
		[]string{"workflow_type"},
	)

	c.resumesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resumes_total",
			Help:      "Total number of human decisions applied",
		},
		[]string{"workflow_type", "decision"},
	)

	c.expirationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_expirations_total",
			Help:      "Total number of pending actions escalated on deadline",
		},
		[]string{"workflow_type"},
	)

	c.rejectedMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_mutations_total",
			Help:      "Total number of mutations rejected by the step machine",
		},
		[]string{"workflow_type", "code"},
	)

	c.recoveredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_workflows_total",
			Help:      "Total number of workflows reloaded during startup recovery",
		},
		[]string{"workflow_type"},
	)

	// Subscription fan-out metrics
	c.subscribersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers_active",
			Help:      "Number of open snapshot subscriptions",
		},
		[]string{"workflow_type"},
	)

	c.snapshotsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots delivered to subscriber buffers",
		},
		[]string{"workflow_type"},
	)

	c.snapshotsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_dropped_total",
			Help:      "Total number of snapshots dropped from full subscriber buffers",
		},
		[]string{"workflow_type"},
	)

	// Store metrics
	c.storeOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "State store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.storeOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operation_errors_total",
			Help:      "Total number of failed state store operations",
		},
		[]string{"operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// RecordStepTransition records one applied step transition.
func (c *Collector) RecordStepTransition(workflowType, fromStep, toStep string) {
	c.stepTransitions.WithLabelValues(workflowType, fromStep, toStep).Inc()
}

// RecordWorkflowOpened bumps the active-workflow gauge when a record is
// created or recovered.
func (c *Collector) RecordWorkflowOpened(workflowType string) {
	c.workflowsActive.WithLabelValues(workflowType).Inc()
}

// RecordWorkflowClosed drops the active-workflow gauge when a record
// reaches a terminal step.
func (c *Collector) RecordWorkflowClosed(workflowType string) {
	c.workflowsActive.WithLabelValues(workflowType).Dec()
}

// RecordPause records one pause checkpoint.
func (c *Collector) RecordPause(workflowType string) {
	c.pausesTotal.WithLabelValues(workflowType).Inc()
}

// RecordResume records one applied human decision. Decision is "approved"
// or "rejected".
func (c *Collector) RecordResume(workflowType, decision string) {
	c.resumesTotal.WithLabelValues(workflowType, decision).Inc()
}

// RecordExpiration records one deadline escalation.
func (c *Collector) RecordExpiration(workflowType string) {
	c.expirationsTotal.WithLabelValues(workflowType).Inc()
}

// RecordRejectedMutation records one mutation refused by the step machine.
func (c *Collector) RecordRejectedMutation(workflowType, code string) {
	c.rejectedMutations.WithLabelValues(workflowType, code).Inc()
}

// RecordRecoveredWorkflow records one record reloaded during startup
// recovery.
func (c *Collector) RecordRecoveredWorkflow(workflowType string) {
	c.recoveredTotal.WithLabelValues(workflowType).Inc()
}

// RecordSubscriberOpened bumps the subscriber gauge.
func (c *Collector) RecordSubscriberOpened(workflowType string) {
	c.subscribersActive.WithLabelValues(workflowType).Inc()
}

// RecordSubscriberClosed drops the subscriber gauge.
func (c *Collector) RecordSubscriberClosed(workflowType string) {
	c.subscribersActive.WithLabelValues(workflowType).Dec()
}

// RecordSnapshotPublished records one snapshot placed in a subscriber
// buffer.
func (c *Collector) RecordSnapshotPublished(workflowType string) {
	c.snapshotsPublished.WithLabelValues(workflowType).Inc()
}

// RecordSnapshotDropped records one snapshot evicted from a full
// subscriber buffer.
func (c *Collector) RecordSnapshotDropped(workflowType string) {
	c.snapshotsDropped.WithLabelValues(workflowType).Inc()
}

// RecordStoreOperation records one state store call. Operation is one of
// save, load, list.
func (c *Collector) RecordStoreOperation(operation string, duration time.Duration, err error) {
	c.storeOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		c.storeOpErrors.WithLabelValues(operation).Inc()
	}
}

// statusCode collapses an HTTP status code into its class label.
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
