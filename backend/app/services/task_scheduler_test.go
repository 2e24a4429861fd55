package services

import (
	"context"
	"testing"
	"time"

	"droidfleet/backend/app/lock"
	"droidfleet/backend/app/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTaskStore struct {
	tasks  map[uint]*models.Task
	nextID uint
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[uint]*models.Task), nextID: 1}
}

func (m *memTaskStore) Create(t *models.Task) error {
	if t.ID == 0 {
		t.ID = m.nextID
		m.nextID++
	}
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTaskStore) Save(t *models.Task) error {
	cp := *t
	m.tasks[t.ID] = &cp
	return nil
}

func (m *memTaskStore) FindByID(id uint) (*models.Task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTaskStore) FindDueScheduled(now time.Time) ([]models.Task, error) {
	var out []models.Task
	for _, t := range m.tasks {
		if (t.Status == models.TaskPending || t.Status == models.TaskScheduled) &&
			t.ScheduledTime != nil && !t.ScheduledTime.After(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memTaskStore) FindActiveRecurring() ([]models.Task, error) {
	var out []models.Task
	for _, t := range m.tasks {
		if t.TaskType == models.TaskTypeRecurring &&
			t.Status != models.TaskCancelled && t.Status != models.TaskPaused {
			out = append(out, *t)
		}
	}
	return out, nil
}

type stubDispatcher struct {
	dispatched []uint
	err        error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, task *models.Task) error {
	if s.err != nil {
		return s.err
	}
	s.dispatched = append(s.dispatched, task.ID)
	task.Status = models.TaskRunning
	return nil
}

func newTestScheduler(at time.Time) (*TaskScheduler, *memTaskStore, *stubDispatcher) {
	store := newMemTaskStore()
	disp := &stubDispatcher{}
	s := NewTaskScheduler(store, disp, lock.NewLocalLocker(), StandardCron{}, zerolog.Nop())
	s.now = func() time.Time { return at }
	return s, store, disp
}

var schedEpoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestCreateImmediateDispatchesNow(t *testing.T) {
	s, _, disp := newTestScheduler(schedEpoch)
	task := &models.Task{TaskType: models.TaskTypeImmediate, TargetType: models.TargetAll}

	require.NoError(t, s.CreateAndSchedule(context.Background(), task))
	assert.Equal(t, []uint{task.ID}, disp.dispatched)
}

func TestCreateScheduledWaitsForSweep(t *testing.T) {
	s, _, disp := newTestScheduler(schedEpoch)
	at := schedEpoch.Add(time.Hour)
	task := &models.Task{TaskType: models.TaskTypeScheduled, TargetType: models.TargetAll, ScheduledTime: &at}

	require.NoError(t, s.CreateAndSchedule(context.Background(), task))
	assert.Equal(t, models.TaskScheduled, task.Status)
	assert.Empty(t, disp.dispatched)
}

func TestCreateValidation(t *testing.T) {
	s, _, _ := newTestScheduler(schedEpoch)
	at := schedEpoch

	cases := []struct {
		name string
		task models.Task
	}{
		{"unknown type", models.Task{TaskType: "hourly", TargetType: models.TargetAll}},
		{"unknown target", models.Task{TaskType: models.TaskTypeImmediate, TargetType: "everyone"}},
		{"recurring without cron", models.Task{TaskType: models.TaskTypeRecurring, TargetType: models.TargetAll}},
		{"bad cron", models.Task{TaskType: models.TaskTypeRecurring, TargetType: models.TargetAll, CronExpression: "not a cron"}},
		{"scheduled without time", models.Task{TaskType: models.TaskTypeScheduled, TargetType: models.TargetAll}},
		{"good scheduled needs nothing else", models.Task{TaskType: models.TaskTypeScheduled, TargetType: models.TargetAll, ScheduledTime: &at}},
	}
	for _, tc := range cases[:5] {
		t.Run(tc.name, func(t *testing.T) {
			err := s.CreateAndSchedule(context.Background(), &tc.task)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.NoError(t, s.CreateAndSchedule(context.Background(), &cases[5].task))
}

func TestExecuteScheduledDispatchesDueOnly(t *testing.T) {
	s, store, disp := newTestScheduler(schedEpoch)
	past := schedEpoch.Add(-time.Minute)
	future := schedEpoch.Add(time.Hour)
	require.NoError(t, store.Create(&models.Task{Status: models.TaskScheduled, ScheduledTime: &past}))
	require.NoError(t, store.Create(&models.Task{Status: models.TaskScheduled, ScheduledTime: &future}))

	n, err := s.ExecuteScheduledTasks(context.Background(), schedEpoch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []uint{1}, disp.dispatched)
}

func TestExecuteScheduledSkipsNoLongerDue(t *testing.T) {
	s, store, disp := newTestScheduler(schedEpoch)
	past := schedEpoch.Add(-time.Minute)
	require.NoError(t, store.Create(&models.Task{Status: models.TaskScheduled, ScheduledTime: &past}))
	// Another instance grabbed it between the sweep query and the lock.
	store.tasks[1].Status = models.TaskRunning

	n, err := s.ExecuteScheduledTasks(context.Background(), schedEpoch)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, disp.dispatched)
}

func TestRecurringDueAfterLastExecution(t *testing.T) {
	s, store, disp := newTestScheduler(schedEpoch)
	last := schedEpoch.Add(-2 * time.Minute)
	require.NoError(t, store.Create(&models.Task{
		TaskType:          models.TaskTypeRecurring,
		Status:            models.TaskPending,
		CronExpression:    "* * * * *",
		LastExecutionTime: &last,
	}))

	n, err := s.ExecuteRecurringTasks(context.Background(), schedEpoch)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, disp.dispatched, 1)

	saved, err := store.FindByID(1)
	require.NoError(t, err)
	require.NotNil(t, saved.LastExecutionTime)
	assert.True(t, saved.LastExecutionTime.Equal(schedEpoch))
}

func TestRecurringNotDueYet(t *testing.T) {
	s, store, disp := newTestScheduler(schedEpoch)
	last := schedEpoch.Add(-10 * time.Minute)
	require.NoError(t, store.Create(&models.Task{
		TaskType:          models.TaskTypeRecurring,
		Status:            models.TaskPending,
		CronExpression:    "0 0 * * *", // midnight; noon sweep has nothing to do
		LastExecutionTime: &last,
	}))

	n, err := s.ExecuteRecurringTasks(context.Background(), schedEpoch)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, disp.dispatched)
}

func TestRecurringNeverRunMatchesNow(t *testing.T) {
	s, store, _ := newTestScheduler(schedEpoch)
	require.NoError(t, store.Create(&models.Task{
		TaskType:       models.TaskTypeRecurring,
		Status:         models.TaskPending,
		CronExpression: "0 12 * * *",
	}))

	n, err := s.ExecuteRecurringTasks(context.Background(), schedEpoch) // exactly 12:00
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecurringSkipsStillRunning(t *testing.T) {
	s, store, disp := newTestScheduler(schedEpoch)
	last := schedEpoch.Add(-2 * time.Minute)
	require.NoError(t, store.Create(&models.Task{
		TaskType:          models.TaskTypeRecurring,
		Status:            models.TaskRunning,
		CronExpression:    "* * * * *",
		LastExecutionTime: &last,
	}))

	n, err := s.ExecuteRecurringTasks(context.Background(), schedEpoch)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, disp.dispatched)
}

func TestPauseResumeCancel(t *testing.T) {
	s, _, _ := newTestScheduler(schedEpoch)
	ctx := context.Background()

	task := &models.Task{ID: 1, Status: models.TaskRunning}
	require.NoError(t, s.Pause(ctx, task))
	assert.Equal(t, models.TaskPaused, task.Status)

	require.NoError(t, s.Resume(ctx, task))
	assert.Equal(t, models.TaskPending, task.Status)

	assert.ErrorIs(t, s.Resume(ctx, task), ErrInvalidTransition)

	require.NoError(t, s.Cancel(ctx, task))
	assert.Equal(t, models.TaskCancelled, task.Status)
	require.NotNil(t, task.EndTime)
	assert.True(t, task.EndTime.Equal(schedEpoch))

	assert.ErrorIs(t, s.Pause(ctx, task), ErrInvalidTransition)
	assert.ErrorIs(t, s.Cancel(ctx, task), ErrInvalidTransition)
}

func TestRetryBackoff(t *testing.T) {
	s, _, _ := newTestScheduler(schedEpoch)
	ctx := context.Background()

	cases := []struct {
		retries int
		delay   time.Duration
	}{
		{0, 10 * time.Second},
		{1, 20 * time.Second},
		{2, 40 * time.Second},
		{5, 300 * time.Second}, // 320s hits the cap
		{6, 300 * time.Second},
		{40, 300 * time.Second},
	}
	for _, tc := range cases {
		task := &models.Task{ID: 1, Status: models.TaskFailed, RetryCount: tc.retries}
		require.NoError(t, s.ScheduleRetry(ctx, task))
		assert.Equal(t, models.TaskPending, task.Status)
		assert.Equal(t, tc.retries+1, task.RetryCount)
		assert.Empty(t, task.FailureReason)
		require.NotNil(t, task.ScheduledTime)
		assert.Equal(t, tc.delay, task.ScheduledTime.Sub(schedEpoch), "retryCount=%d", tc.retries)
	}
}

func TestRetryExhausted(t *testing.T) {
	s, _, _ := newTestScheduler(schedEpoch)
	task := &models.Task{ID: 1, Status: models.TaskFailed, MaxRetries: 3, RetryCount: 3}
	assert.ErrorIs(t, s.ScheduleRetry(context.Background(), task), ErrValidation)
}

func TestRetryRequiresFailedOrCancelled(t *testing.T) {
	s, _, _ := newTestScheduler(schedEpoch)
	for _, st := range []models.TaskStatus{models.TaskPending, models.TaskRunning, models.TaskCompleted} {
		task := &models.Task{ID: 1, Status: st}
		assert.ErrorIs(t, s.ScheduleRetry(context.Background(), task), ErrInvalidTransition, "status %s", st)
	}
}
