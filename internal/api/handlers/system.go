package handlers

import (
	"net/http"

	"github.com/flowtask/taskqueue-go/internal/metrics"
	"github.com/flowtask/taskqueue-go/internal/queue"
	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/workerpool"
)

// SystemHandler serves queue statistics, health, worker control, and
// registry introspection endpoints that sit outside the task/periodic-task
// resource contracts.
type SystemHandler struct {
	queue *queue.Queue
	reg   *registry.Registry
	pool  *workerpool.Pool
}

// NewSystemHandler creates a handler dispatching against q, reg, and pool.
func NewSystemHandler(q *queue.Queue, reg *registry.Registry, pool *workerpool.Pool) *SystemHandler {
	return &SystemHandler{queue: q, reg: reg, pool: pool}
}

// Health handles GET /api/v1/health.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"worker_state": h.pool.State().String(),
	})
}

// QueueStats handles GET /api/v1/queue/stats.
func (h *SystemHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	m := h.queue.Metrics()
	metrics.UpdateQueueMetrics(metrics.QueueDerivedMetrics{
		TotalEnqueued:  m.TotalEnqueued,
		TotalDequeued:  m.TotalDequeued,
		CurrentSize:    m.CurrentSize,
		PendingCount:   m.PendingCount,
		RunningCount:   m.RunningCount,
		CompletedCount: m.CompletedCount,
		FailedCount:    m.FailedCount,
	})
	respondJSON(w, http.StatusOK, m)
}

// ClearQueue handles POST /api/v1/system/clear-queue.
func (h *SystemHandler) ClearQueue(w http.ResponseWriter, r *http.Request) {
	h.queue.Clear()
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "queue cleared"})
}

// RegisteredTasks handles GET /api/v1/registered-tasks.
func (h *SystemHandler) RegisteredTasks(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"func_names": h.reg.List(),
	})
}

// WorkerStats handles GET /admin/workers.
func (h *SystemHandler) WorkerStats(w http.ResponseWriter, r *http.Request) {
	stats := h.pool.StatsSnapshot()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"num_workers":    stats.NumWorkers,
		"running":        stats.Running,
		"active_workers": stats.ActiveWorkers,
		"state":          h.pool.State().String(),
	})
}

// PauseWorkers handles POST /admin/workers/pause.
func (h *SystemHandler) PauseWorkers(w http.ResponseWriter, r *http.Request) {
	h.pool.Pause()
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "worker pool paused"})
}

// ResumeWorkers handles POST /admin/workers/resume.
func (h *SystemHandler) ResumeWorkers(w http.ResponseWriter, r *http.Request) {
	h.pool.Resume()
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "worker pool resumed"})
}
