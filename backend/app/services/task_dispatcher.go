package services

import (
	"context"
	"fmt"
	"time"

	"droidfleet/backend/app/dto"
	"droidfleet/backend/app/models"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Outcome is a device's verdict on one dispatched instruction.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimeout   Outcome = "timeout"
	OutcomeCancelled Outcome = "cancelled"
)

// ParseOutcome validates a reported outcome string.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeSuccess, OutcomeFailed, OutcomeTimeout, OutcomeCancelled:
		return Outcome(s), nil
	}
	return "", errors.Wrapf(ErrValidation, "unknown outcome %q", s)
}

// TargetLister expands a task into the devices it addresses.
type TargetLister interface {
	Resolve(task *models.Task) ([]models.Device, error)
}

// InstructionEnqueuer is the queue surface the dispatcher fans out
// through.
type InstructionEnqueuer interface {
	Enqueue(ctx context.Context, deviceCode string, inst dto.Instruction, priority bool) error
}

// TaskSaver flushes in-place task mutations.
type TaskSaver interface {
	Save(t *models.Task) error
}

// GroupTrail records which tasks were fanned out to a device group.
type GroupTrail interface {
	RecordGroupTask(ctx context.Context, groupID string, taskID uint) error
}

// Tasks with a priority above this fan out as priority enqueues.
const priorityEnqueueThreshold = 5

// TaskDispatcher turns one task into per-device instructions and
// aggregates their outcomes back into the task's counters.
type TaskDispatcher struct {
	resolver TargetLister
	queue    InstructionEnqueuer
	tasks    TaskSaver
	logger   zerolog.Logger

	// InstructionTimeoutSeconds overrides the default expiry on the
	// instructions this dispatcher builds. Zero keeps the queue default.
	InstructionTimeoutSeconds int

	// Trail, when set, records group-targeted dispatches.
	Trail GroupTrail
}

func NewTaskDispatcher(resolver TargetLister, queue InstructionEnqueuer, tasks TaskSaver, logger zerolog.Logger) *TaskDispatcher {
	return &TaskDispatcher{resolver: resolver, queue: queue, tasks: tasks, logger: logger}
}

// Dispatch resolves the task's targets and enqueues one
// execute_script instruction per device. Per-device enqueue failures
// are logged and counted as failed devices without aborting the rest;
// only an empty target set or a total enqueue wipeout fails the task.
func (d *TaskDispatcher) Dispatch(ctx context.Context, task *models.Task) error {
	devices, err := d.resolver.Resolve(task)
	if err != nil {
		return errors.Wrapf(err, "resolve targets for task %d", task.ID)
	}
	if len(devices) == 0 {
		d.failTask(task, "no target devices")
		return nil
	}

	now := time.Now()
	task.Status = models.TaskRunning
	task.StartTime = &now
	task.EndTime = nil
	task.TotalDevices = len(devices)
	task.SuccessDevices = 0
	task.FailedDevices = 0
	task.FailureReason = ""
	if err := d.tasks.Save(task); err != nil {
		return errors.Wrapf(err, "save task %d", task.ID)
	}

	priority := task.Priority > priorityEnqueueThreshold
	enqueueFailures := 0
	for _, dev := range devices {
		inst := d.buildInstruction(task)
		if err := d.queue.Enqueue(ctx, dev.Code, inst, priority); err != nil {
			enqueueFailures++
			task.FailedDevices++
			d.logger.Error().Err(err).
				Uint("task_id", task.ID).
				Str("device_code", dev.Code).
				Msg("instruction enqueue failed")
		}
	}

	if enqueueFailures == len(devices) {
		d.failTask(task, "all instruction enqueues failed")
		return nil
	}
	if enqueueFailures > 0 {
		d.logger.Warn().
			Uint("task_id", task.ID).
			Int("failed", enqueueFailures).
			Int("total", len(devices)).
			Msg("partial dispatch")
	}
	if err := d.tasks.Save(task); err != nil {
		return errors.Wrapf(err, "save task %d", task.ID)
	}
	if task.TargetType == models.TargetGroup && d.Trail != nil {
		if err := d.Trail.RecordGroupTask(ctx, fmt.Sprintf("%d", task.TargetGroupID), task.ID); err != nil {
			d.logger.Warn().Err(err).Uint("task_id", task.ID).Msg("group trail write failed")
		}
	}
	return nil
}

func (d *TaskDispatcher) buildInstruction(task *models.Task) dto.Instruction {
	payload := map[string]any{
		"script_id": task.ScriptID,
		"task_id":   task.ID,
	}
	if params := task.ParameterMap(); params != nil {
		payload["parameters"] = params
	}
	inst := dto.NewInstruction(dto.InstructionExecuteScript, payload)
	inst.TaskID = task.ID
	inst.ScriptID = task.ScriptID
	inst.Priority = task.Priority
	if d.InstructionTimeoutSeconds > 0 {
		inst.TimeoutSeconds = d.InstructionTimeoutSeconds
	}
	return inst
}

// UpdateProgress applies one device outcome to the task's counters.
// Completion is inferred purely from the counts: once every dispatched
// instruction has reported, the task settles into completed,
// partially_completed or failed.
func (d *TaskDispatcher) UpdateProgress(ctx context.Context, task *models.Task, instructionID string, outcome Outcome) error {
	if task.IsTerminal() {
		return errors.Wrapf(ErrInvalidTransition, "task %d already %s", task.ID, task.Status)
	}
	if task.SuccessDevices+task.FailedDevices >= task.TotalDevices {
		return errors.Wrapf(ErrValidation, "task %d progress exceeds device count", task.ID)
	}

	if outcome == OutcomeSuccess {
		task.SuccessDevices++
	} else {
		task.FailedDevices++
	}
	d.logger.Debug().
		Uint("task_id", task.ID).
		Str("instruction_id", instructionID).
		Str("outcome", string(outcome)).
		Int("success", task.SuccessDevices).
		Int("failed", task.FailedDevices).
		Msg("progress")

	if task.SuccessDevices+task.FailedDevices >= task.TotalDevices {
		now := time.Now()
		task.EndTime = &now
		switch {
		case task.FailedDevices == 0:
			task.Status = models.TaskCompleted
		case task.SuccessDevices > 0:
			task.Status = models.TaskPartiallyCompleted
		default:
			task.Status = models.TaskFailed
			task.FailureReason = "all devices failed"
		}
	}
	return errors.Wrapf(d.tasks.Save(task), "save task %d", task.ID)
}

func (d *TaskDispatcher) failTask(task *models.Task, reason string) {
	now := time.Now()
	task.Status = models.TaskFailed
	task.FailureReason = reason
	task.EndTime = &now
	if err := d.tasks.Save(task); err != nil {
		d.logger.Error().Err(err).Uint("task_id", task.ID).Msg("failed-task save failed")
	}
	d.logger.Warn().Uint("task_id", task.ID).Str("reason", reason).Msg("task failed")
}
