package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"droidfleet/backend/app/dto"
	"droidfleet/backend/app/models"
	"droidfleet/backend/app/repo"
	"droidfleet/backend/app/services"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

type TaskController struct {
	Tasks      *repo.TaskRepository
	Scripts    *repo.ScriptRepository
	Groups     *repo.GroupRepository
	Scheduler  *services.TaskScheduler
	Dispatcher *services.TaskDispatcher
}

func NewTaskController(tasks *repo.TaskRepository, scripts *repo.ScriptRepository, groups *repo.GroupRepository, scheduler *services.TaskScheduler, dispatcher *services.TaskDispatcher) *TaskController {
	return &TaskController{Tasks: tasks, Scripts: scripts, Groups: groups, Scheduler: scheduler, Dispatcher: dispatcher}
}

func (c *TaskController) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	task := models.Task{
		Name:           req.Name,
		ScriptID:       req.ScriptID,
		TaskType:       models.TaskType(req.TaskType),
		Priority:       req.Priority,
		MaxRetries:     req.MaxRetries,
		CronExpression: req.CronExpression,
	}
	if len(req.Parameters) > 0 {
		task.Parameters = string(req.Parameters)
	}
	if task.ScriptID != 0 {
		if _, err := c.Scripts.FindByID(task.ScriptID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(w, errors.Wrapf(services.ErrScriptNotFound, "script %d", task.ScriptID))
			} else {
				w.WriteHeader(http.StatusInternalServerError)
			}
			return
		}
	}
	switch models.TargetType(req.TargetType) {
	case models.TargetAll:
		task.TargetType = models.TargetAll
	case models.TargetGroup:
		if _, err := c.Groups.FindByID(req.TargetGroupID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(w, errors.Wrapf(services.ErrGroupNotFound, "group %d", req.TargetGroupID))
			} else {
				w.WriteHeader(http.StatusInternalServerError)
			}
			return
		}
		task.SetTargetGroup(req.TargetGroupID)
	case models.TargetSpecific:
		task.SetTargetDevices(req.TargetDeviceIDs)
	default:
		writeError(w, errors.Wrapf(services.ErrValidation, "unknown target type %q", req.TargetType))
		return
	}
	if req.ScheduledTime != "" {
		at, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			writeError(w, errors.Wrap(services.ErrValidation, "scheduled_time must be RFC3339"))
			return
		}
		task.ScheduledTime = &at
	}
	if err := c.Scheduler.CreateAndSchedule(r.Context(), &task); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (c *TaskController) load(w http.ResponseWriter, r *http.Request) (*models.Task, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return nil, false
	}
	task, err := c.Tasks.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, errors.Wrapf(services.ErrTaskNotFound, "task %d", id))
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return nil, false
	}
	return task, true
}

func (c *TaskController) Get(w http.ResponseWriter, r *http.Request) {
	task, ok := c.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (c *TaskController) Pause(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Scheduler.Pause)
}

func (c *TaskController) Resume(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Scheduler.Resume)
}

func (c *TaskController) Cancel(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Scheduler.Cancel)
}

func (c *TaskController) Retry(w http.ResponseWriter, r *http.Request) {
	c.transition(w, r, c.Scheduler.ScheduleRetry)
}

func (c *TaskController) transition(w http.ResponseWriter, r *http.Request, fn func(context.Context, *models.Task) error) {
	task, ok := c.load(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// Report receives a device's outcome for one dispatched instruction
// and feeds it into the task's progress aggregation. Reports without a
// task reference belong to one-off instructions and are acknowledged
// without further bookkeeping.
func (c *TaskController) Report(w http.ResponseWriter, r *http.Request) {
	var req dto.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InstructionID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	outcome, err := services.ParseOutcome(req.Outcome)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.TaskID == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	task, err := c.Tasks.FindByID(req.TaskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeError(w, errors.Wrapf(services.ErrTaskNotFound, "task %d", req.TaskID))
		} else {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	if err := c.Dispatcher.UpdateProgress(r.Context(), task, req.InstructionID, outcome); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "task_status": task.Status})
}
