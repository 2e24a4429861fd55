package services

import (
	"context"
	"fmt"
	"time"

	"droidfleet/backend/app/lock"
	"droidfleet/backend/app/models"
	"droidfleet/backend/app/store"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Retry backoff: 2^retries * 10s, capped.
const (
	retryBackoffBase = 10 * time.Second
	retryBackoffCap  = 300 * time.Second
)

// TaskStore is the persistence surface the scheduler needs.
type TaskStore interface {
	Create(t *models.Task) error
	Save(t *models.Task) error
	FindByID(id uint) (*models.Task, error)
	FindDueScheduled(now time.Time) ([]models.Task, error)
	FindActiveRecurring() ([]models.Task, error)
}

// Dispatcher fans a task out to its devices.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *models.Task) error
}

// TaskScheduler drives the task lifecycle: creation, immediate
// dispatch, scheduled and cron-recurring execution, pause/resume/
// cancel, and retry with capped exponential backoff. Sweeps are
// invoked externally and are safe to run from several instances at
// once; the per-task dispatch lock keeps overlapping sweeps from
// double-dispatching.
type TaskScheduler struct {
	tasks      TaskStore
	dispatcher Dispatcher
	locker     lock.Locker
	cron       CronEvaluator
	logger     zerolog.Logger
	now        func() time.Time
}

func NewTaskScheduler(tasks TaskStore, dispatcher Dispatcher, locker lock.Locker, cron CronEvaluator, logger zerolog.Logger) *TaskScheduler {
	return &TaskScheduler{
		tasks:      tasks,
		dispatcher: dispatcher,
		locker:     locker,
		cron:       cron,
		logger:     logger,
		now:        time.Now,
	}
}

func dispatchLockKey(taskID uint) string {
	return store.TaskDispatchLockKey(fmt.Sprintf("%d", taskID))
}

// CreateAndSchedule validates and persists the task, then dispatches
// immediately for immediate tasks. Scheduled and recurring tasks wait
// for their sweep.
func (s *TaskScheduler) CreateAndSchedule(ctx context.Context, task *models.Task) error {
	if err := s.validateNew(task); err != nil {
		return err
	}
	switch task.TaskType {
	case models.TaskTypeImmediate:
		task.Status = models.TaskPending
	default:
		task.Status = models.TaskScheduled
	}
	if err := s.tasks.Create(task); err != nil {
		return errors.Wrap(err, "create task")
	}
	if task.TaskType != models.TaskTypeImmediate {
		return nil
	}
	return s.locker.BlockingRun(ctx, dispatchLockKey(task.ID), func() error {
		return s.dispatcher.Dispatch(ctx, task)
	})
}

func (s *TaskScheduler) validateNew(task *models.Task) error {
	switch task.TaskType {
	case models.TaskTypeImmediate, models.TaskTypeScheduled, models.TaskTypeRecurring:
	default:
		return errors.Wrapf(ErrValidation, "unknown task type %q", task.TaskType)
	}
	switch task.TargetType {
	case models.TargetAll, models.TargetGroup, models.TargetSpecific:
	default:
		return errors.Wrapf(ErrValidation, "unknown target type %q", task.TargetType)
	}
	if task.TaskType == models.TaskTypeRecurring && task.CronExpression == "" {
		return errors.Wrap(ErrValidation, "recurring task requires a cron expression")
	}
	if task.CronExpression != "" {
		if err := s.cron.Validate(task.CronExpression); err != nil {
			return errors.Wrap(ErrValidation, err.Error())
		}
	}
	if task.TaskType == models.TaskTypeScheduled && task.ScheduledTime == nil {
		return errors.Wrap(ErrValidation, "scheduled task requires a scheduled time")
	}
	return nil
}

// ExecuteScheduledTasks dispatches every task whose scheduled time has
// arrived. One task's failure never aborts the batch. Returns how many
// tasks were dispatched.
func (s *TaskScheduler) ExecuteScheduledTasks(ctx context.Context, now time.Time) (int, error) {
	due, err := s.tasks.FindDueScheduled(now)
	if err != nil {
		return 0, errors.Wrap(err, "find due tasks")
	}
	dispatched := 0
	for i := range due {
		id := due[i].ID
		err := s.locker.BlockingRun(ctx, dispatchLockKey(id), func() error {
			// Re-read inside the lock: another instance may have taken
			// this task between the sweep query and the acquire.
			task, err := s.tasks.FindByID(id)
			if err != nil {
				return errors.Wrapf(err, "reload task %d", id)
			}
			if !s.stillDue(task, now) {
				return nil
			}
			if err := s.dispatcher.Dispatch(ctx, task); err != nil {
				return err
			}
			dispatched++
			return nil
		})
		if err != nil {
			s.logger.Error().Err(err).Uint("task_id", id).Msg("scheduled dispatch failed")
		}
	}
	return dispatched, nil
}

func (s *TaskScheduler) stillDue(task *models.Task, now time.Time) bool {
	if task.Status != models.TaskPending && task.Status != models.TaskScheduled {
		return false
	}
	return task.ScheduledTime != nil && !task.ScheduledTime.After(now)
}

// ExecuteRecurringTasks asks the cron evaluator which recurring tasks
// are due and dispatches them, stamping the execution time. A task
// with a previous execution is due when now has reached the cron's
// next run after that execution; a never-run task is due when the
// expression matches now directly.
func (s *TaskScheduler) ExecuteRecurringTasks(ctx context.Context, now time.Time) (int, error) {
	active, err := s.tasks.FindActiveRecurring()
	if err != nil {
		return 0, errors.Wrap(err, "find recurring tasks")
	}
	dispatched := 0
	for i := range active {
		task := &active[i]
		due, err := s.recurringDue(task, now)
		if err != nil {
			s.logger.Error().Err(err).Uint("task_id", task.ID).Msg("cron evaluation failed")
			continue
		}
		if !due {
			continue
		}
		if task.Status == models.TaskRunning {
			// Previous trigger still in flight; skip this tick rather
			// than clobbering its counters.
			s.logger.Warn().Uint("task_id", task.ID).Msg("recurring task still running, trigger skipped")
			continue
		}
		err = s.locker.BlockingRun(ctx, dispatchLockKey(task.ID), func() error {
			if err := s.dispatcher.Dispatch(ctx, task); err != nil {
				return err
			}
			task.LastExecutionTime = &now
			if err := s.tasks.Save(task); err != nil {
				return errors.Wrapf(err, "save task %d", task.ID)
			}
			dispatched++
			return nil
		})
		if err != nil {
			s.logger.Error().Err(err).Uint("task_id", task.ID).Msg("recurring dispatch failed")
		}
	}
	return dispatched, nil
}

func (s *TaskScheduler) recurringDue(task *models.Task, now time.Time) (bool, error) {
	if task.LastExecutionTime != nil {
		next, err := s.cron.NextAfter(task.CronExpression, *task.LastExecutionTime)
		if err != nil {
			return false, err
		}
		return !now.Before(next), nil
	}
	return s.cron.Matches(task.CronExpression, now)
}

// Pause suspends a pending, scheduled or running task.
func (s *TaskScheduler) Pause(ctx context.Context, task *models.Task) error {
	switch task.Status {
	case models.TaskPending, models.TaskScheduled, models.TaskRunning:
		task.Status = models.TaskPaused
		return errors.Wrapf(s.tasks.Save(task), "save task %d", task.ID)
	}
	return errors.Wrapf(ErrInvalidTransition, "cannot pause task in status %s", task.Status)
}

// Resume returns a paused task to pending; the sweeps pick it back up.
func (s *TaskScheduler) Resume(ctx context.Context, task *models.Task) error {
	if task.Status != models.TaskPaused {
		return errors.Wrapf(ErrInvalidTransition, "cannot resume task in status %s", task.Status)
	}
	task.Status = models.TaskPending
	return errors.Wrapf(s.tasks.Save(task), "save task %d", task.ID)
}

// Cancel terminates any non-terminal task.
func (s *TaskScheduler) Cancel(ctx context.Context, task *models.Task) error {
	if task.IsTerminal() {
		return errors.Wrapf(ErrInvalidTransition, "cannot cancel task in status %s", task.Status)
	}
	now := s.now()
	task.Status = models.TaskCancelled
	task.EndTime = &now
	return errors.Wrapf(s.tasks.Save(task), "save task %d", task.ID)
}

// ScheduleRetry re-enters a failed or cancelled task into pending with
// a capped exponential backoff. The delay comes from the retry count
// before this attempt: 10s, 20s, 40s, ... up to the cap.
func (s *TaskScheduler) ScheduleRetry(ctx context.Context, task *models.Task) error {
	if task.Status != models.TaskFailed && task.Status != models.TaskCancelled {
		return errors.Wrapf(ErrInvalidTransition, "cannot retry task in status %s", task.Status)
	}
	if task.MaxRetries > 0 && task.RetryCount >= task.MaxRetries {
		return errors.Wrapf(ErrValidation, "task %d exhausted %d retries", task.ID, task.MaxRetries)
	}
	delay := retryBackoffCap
	if task.RetryCount < 6 { // 2^6*10s already clears the cap
		delay = retryBackoffBase * (1 << task.RetryCount)
		if delay > retryBackoffCap {
			delay = retryBackoffCap
		}
	}
	task.RetryCount++
	task.Status = models.TaskPending
	task.FailureReason = ""
	task.EndTime = nil
	at := s.now().Add(delay)
	task.ScheduledTime = &at
	s.logger.Info().Uint("task_id", task.ID).Int("retry", task.RetryCount).Dur("delay", delay).Msg("retry scheduled")
	return errors.Wrapf(s.tasks.Save(task), "save task %d", task.ID)
}
