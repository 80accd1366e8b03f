// Package metrics exposes the task queue's derived counters and ambient
// HTTP/WebSocket/worker metrics as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Task lifecycle metrics.
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_submitted_total",
			Help: "Total number of tasks submitted",
		},
		[]string{"func_name", "priority"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_tasks_completed_total",
			Help: "Total number of tasks completed",
		},
		[]string{"func_name", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskqueue_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		[]string{"func_name"},
	)

	TaskRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_task_retries_total",
			Help: "Total number of task retries",
		},
		[]string{"func_name"},
	)

	// Queue derived counters: gauges mirroring queue.Metrics.
	QueueTotalEnqueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskqueue_queue_total_enqueued",
			Help: "Cumulative number of tasks enqueued",
		},
	)

	QueueTotalDequeued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskqueue_queue_total_dequeued",
			Help: "Cumulative number of tasks dequeued",
		},
	)

	QueueCurrentSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskqueue_queue_current_size",
			Help: "Current number of pending dispatch handles",
		},
	)

	QueueStatusCount = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskqueue_queue_status_count",
			Help: "Current number of tasks in the store by derived status bucket",
		},
		[]string{"bucket"}, // pending, running, completed, failed
	)

	// Scheduler metrics.
	PeriodicTaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_periodic_task_runs_total",
			Help: "Total number of periodic task fires",
		},
		[]string{"name"},
	)

	// Worker pool metrics.
	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskqueue_active_workers",
			Help: "Current number of workers executing a task",
		},
	)

	// HTTP metrics.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskqueue_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebSocket metrics.
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskqueue_websocket_connections",
			Help: "Current number of WebSocket connections",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_websocket_messages_total",
			Help: "Total number of WebSocket messages sent",
		},
		[]string{"type"},
	)

	// Event-transport mirror metrics (internal/eventtransport).
	RedisPublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskqueue_redis_publish_errors_total",
			Help: "Total number of failed publishes to the optional Redis event mirror",
		},
		[]string{"channel"},
	)
)

// RecordTaskSubmission records a task submission.
func RecordTaskSubmission(funcName, priority string) {
	TasksSubmitted.WithLabelValues(funcName, priority).Inc()
}

// RecordTaskCompletion records a task's terminal outcome and its execution duration.
func RecordTaskCompletion(funcName, status string, durationSeconds float64) {
	TasksCompleted.WithLabelValues(funcName, status).Inc()
	TaskDuration.WithLabelValues(funcName).Observe(durationSeconds)
}

// RecordTaskRetry records a single retry attempt.
func RecordTaskRetry(funcName string) {
	TaskRetries.WithLabelValues(funcName).Inc()
}

// QueueDerivedMetrics mirrors queue.Metrics's field names so callers can pass
// the queue package's snapshot straight through without a local alias.
type QueueDerivedMetrics struct {
	TotalEnqueued  int64
	TotalDequeued  int64
	CurrentSize    int
	PendingCount   int
	RunningCount   int
	CompletedCount int
	FailedCount    int
}

// UpdateQueueMetrics publishes a queue.Metrics snapshot to the Prometheus gauges.
func UpdateQueueMetrics(m QueueDerivedMetrics) {
	QueueTotalEnqueued.Set(float64(m.TotalEnqueued))
	QueueTotalDequeued.Set(float64(m.TotalDequeued))
	QueueCurrentSize.Set(float64(m.CurrentSize))
	QueueStatusCount.WithLabelValues("pending").Set(float64(m.PendingCount))
	QueueStatusCount.WithLabelValues("running").Set(float64(m.RunningCount))
	QueueStatusCount.WithLabelValues("completed").Set(float64(m.CompletedCount))
	QueueStatusCount.WithLabelValues("failed").Set(float64(m.FailedCount))
}

// RecordPeriodicTaskRun records a periodic task fire.
func RecordPeriodicTaskRun(name string) {
	PeriodicTaskRuns.WithLabelValues(name).Inc()
}

// SetActiveWorkers sets the active-workers gauge.
func SetActiveWorkers(count float64) {
	ActiveWorkers.Set(count)
}

// RecordHTTPRequest records an HTTP request's duration and outcome.
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetWebSocketConnections sets the WebSocket connections gauge.
func SetWebSocketConnections(count float64) {
	WebSocketConnections.Set(count)
}

// RecordWebSocketMessage records an outbound WebSocket message by type.
func RecordWebSocketMessage(msgType string) {
	WebSocketMessages.WithLabelValues(msgType).Inc()
}

// RecordRedisPublishError records a failed publish on the optional event mirror.
func RecordRedisPublishError(channel string) {
	RedisPublishErrors.WithLabelValues(channel).Inc()
}
