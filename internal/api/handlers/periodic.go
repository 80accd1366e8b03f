package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/scheduler"
	"github.com/flowtask/taskqueue-go/internal/task"
)

// PeriodicHandler serves the periodic-task registration and control endpoints.
type PeriodicHandler struct {
	scheduler *scheduler.Scheduler
}

// NewPeriodicHandler creates a handler dispatching against sched.
func NewPeriodicHandler(sched *scheduler.Scheduler) *PeriodicHandler {
	return &PeriodicHandler{scheduler: sched}
}

// createPeriodicTaskRequest is the wire shape for periodic task
// submission: task submission fields plus a name and cron_expression.
type createPeriodicTaskRequest struct {
	Name           string                 `json:"name"`
	FuncName       string                 `json:"func_name"`
	CronExpression string                 `json:"cron_expression"`
	Args           []interface{}          `json:"args,omitempty"`
	Kwargs         map[string]interface{} `json:"kwargs,omitempty"`
	Priority       int                    `json:"priority"`
	MaxRetries     int                    `json:"max_retries"`
	Timeout        *int                   `json:"timeout,omitempty"`
}

// Create handles POST /api/v1/periodic-tasks.
func (h *PeriodicHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPeriodicTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.FuncName == "" || req.CronExpression == "" {
		respondError(w, http.StatusBadRequest, "name, func_name, and cron_expression are required")
		return
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	pt, err := h.scheduler.AddPeriodicTask(
		req.Name, req.FuncName, req.CronExpression,
		req.Args, req.Kwargs, task.Priority(req.Priority), maxRetries, req.Timeout,
	)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid cron expression")
		return
	}

	logger.Get().Info().Str("name", pt.Name).Str("cron_expression", pt.CronExpression).Msg("periodic task registered")
	respondJSON(w, http.StatusCreated, pt.ToView())
}

// List handles GET /api/v1/periodic-tasks.
func (h *PeriodicHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"periodic_tasks": h.scheduler.ListPeriodicTasks(),
	})
}

// Get handles GET /api/v1/periodic-tasks/{name}.
func (h *PeriodicHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	pt := h.scheduler.GetPeriodicTask(name)
	if pt == nil {
		respondError(w, http.StatusNotFound, "periodic task not found")
		return
	}
	respondJSON(w, http.StatusOK, pt.ToView())
}

// Delete handles DELETE /api/v1/periodic-tasks/{name}.
func (h *PeriodicHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.scheduler.RemovePeriodicTask(name) {
		respondError(w, http.StatusNotFound, "periodic task not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"message": "periodic task removed", "name": name})
}

// Trigger handles POST /api/v1/periodic-tasks/{name}/trigger.
func (h *PeriodicHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	taskID, err := h.scheduler.TriggerNow(name)
	if err != nil {
		respondError(w, http.StatusNotFound, "periodic task not found")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"task_id": taskID, "name": name})
}
