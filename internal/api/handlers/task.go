// Package handlers implements the HTTP surface over the core task engine:
// task submission, periodic task management, and system/admin endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/metrics"
	"github.com/flowtask/taskqueue-go/internal/queue"
	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/task"
)

// TaskHandler serves the task submission and inspection endpoints.
type TaskHandler struct {
	queue *queue.Queue
	reg   *registry.Registry
}

// NewTaskHandler creates a handler dispatching against q and reg.
func NewTaskHandler(q *queue.Queue, reg *registry.Registry) *TaskHandler {
	return &TaskHandler{queue: q, reg: reg}
}

// Create handles POST /api/v1/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req task.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.FuncName == "" {
		respondError(w, http.StatusBadRequest, "func_name is required")
		return
	}

	if _, err := h.reg.Get(req.FuncName); err != nil {
		respondError(w, http.StatusBadRequest, "func_name is not registered")
		return
	}

	t := task.FromRequest(&req)

	if !h.queue.Enqueue(t) {
		respondError(w, http.StatusServiceUnavailable, "queue at capacity")
		return
	}

	metrics.RecordTaskSubmission(t.FuncName, strconv.Itoa(t.Priority))

	logger.Get().Info().
		Str("task_id", t.ID).
		Str("func_name", t.FuncName).
		Int("priority", t.Priority).
		Msg("task submitted")

	respondJSON(w, http.StatusCreated, t.ToSnapshot())
}

// Get handles GET /api/v1/tasks/{taskID}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	t := h.queue.Get(taskID)
	if t == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}
	respondJSON(w, http.StatusOK, t.ToSnapshot())
}

// Cancel handles DELETE /api/v1/tasks/{taskID}.
func (h *TaskHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	t := h.queue.Get(taskID)
	if t == nil {
		respondError(w, http.StatusNotFound, "task not found")
		return
	}

	sm := task.NewStateMachine(t)
	if err := sm.Cancel(); err != nil {
		respondError(w, http.StatusConflict, "task cannot be cancelled in its current state")
		return
	}
	h.queue.Update(t)

	logger.Get().Info().Str("task_id", taskID).Msg("task cancelled")
	respondJSON(w, http.StatusOK, t.ToSnapshot())
}

// listResponse is the wire shape for task listing endpoints.
type listResponse struct {
	Tasks      []task.Snapshot `json:"tasks"`
	TotalCount int             `json:"total_count"`
}

// List handles GET /api/v1/tasks, optionally filtered by ?status=.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *task.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := task.Status(s)
		status = &st
	}

	h.respondTaskList(w, status)
}

// ListByStatus handles GET /api/v1/tasks/status/{pending,completed,failed}.
func (h *TaskHandler) ListByStatus(status task.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.respondTaskList(w, &status)
	}
}

func (h *TaskHandler) respondTaskList(w http.ResponseWriter, status *task.Status) {
	tasks := h.queue.GetAll(status)
	snapshots := make([]task.Snapshot, 0, len(tasks))
	for _, t := range tasks {
		snapshots = append(snapshots, t.ToSnapshot())
	}
	respondJSON(w, http.StatusOK, listResponse{Tasks: snapshots, TotalCount: len(snapshots)})
}
