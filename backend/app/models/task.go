package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskPending            TaskStatus = "pending"
	TaskScheduled          TaskStatus = "scheduled"
	TaskRunning            TaskStatus = "running"
	TaskPaused             TaskStatus = "paused"
	TaskCompleted          TaskStatus = "completed"
	TaskPartiallyCompleted TaskStatus = "partially_completed"
	TaskFailed             TaskStatus = "failed"
	TaskCancelled          TaskStatus = "cancelled"
)

type TaskType string

const (
	TaskTypeImmediate TaskType = "immediate"
	TaskTypeScheduled TaskType = "scheduled"
	TaskTypeRecurring TaskType = "recurring"
)

type TargetType string

const (
	TargetAll      TargetType = "all"
	TargetGroup    TargetType = "group"
	TargetSpecific TargetType = "specific"
)

// Task is a logical unit of work that fans out into one instruction
// per target device. Progress counters are mutated in place by the
// dispatcher and flushed by the repository.
type Task struct {
	ID                uint       `gorm:"primaryKey"`
	Name              string     `gorm:"size:255"`
	ScriptID          uint       `gorm:"index"`
	Status            TaskStatus `gorm:"size:32;index"`
	TaskType          TaskType   `gorm:"size:32"`
	TargetType        TargetType `gorm:"size:32"`
	TargetGroupID     uint       `gorm:"index"`
	TargetDeviceIDs   string     `gorm:"type:text"` // JSON array of device IDs
	Parameters        string     `gorm:"type:text"` // JSON object handed to the script
	Priority          int
	MaxRetries        int
	RetryCount        int
	TotalDevices      int
	SuccessDevices    int
	FailedDevices     int
	ScheduledTime     *time.Time
	CronExpression    string `gorm:"size:128"`
	LastExecutionTime *time.Time
	StartTime         *time.Time
	EndTime           *time.Time
	FailureReason     string `gorm:"size:512"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
	DeletedAt         gorm.DeletedAt `gorm:"index"`
}

// IsTerminal reports whether the task has reached a final status.
// Terminal tasks only move again through an explicit retry.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case TaskCompleted, TaskPartiallyCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// SetTargetGroup selects a group target and clears any stored device
// ID list; group and specific targets are mutually exclusive.
func (t *Task) SetTargetGroup(groupID uint) {
	t.TargetType = TargetGroup
	t.TargetGroupID = groupID
	t.TargetDeviceIDs = ""
}

// SetTargetDevices selects an explicit device list and clears any
// group reference.
func (t *Task) SetTargetDevices(ids []uint) {
	t.TargetType = TargetSpecific
	t.TargetGroupID = 0
	if len(ids) == 0 {
		t.TargetDeviceIDs = ""
		return
	}
	b, _ := json.Marshal(ids)
	t.TargetDeviceIDs = string(b)
}

// DeviceIDs decodes the persisted target device list. Malformed or
// missing data yields an empty list, not an error.
func (t *Task) DeviceIDs() []uint {
	if t.TargetDeviceIDs == "" {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(t.TargetDeviceIDs), &ids); err != nil {
		return nil
	}
	return ids
}

// ParameterMap decodes the persisted script parameters, tolerating
// malformed data.
func (t *Task) ParameterMap() map[string]any {
	if t.Parameters == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(t.Parameters), &m); err != nil {
		return nil
	}
	return m
}
