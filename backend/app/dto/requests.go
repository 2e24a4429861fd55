package dto

import "encoding/json"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

type DeviceRegisterRequest struct {
	Code           string `json:"code"`
	Name           string `json:"name"`
	Brand          string `json:"brand"`
	Model          string `json:"model"`
	AndroidVersion string `json:"android_version"`
	AppVersion     string `json:"app_version"`
	GroupID        uint   `json:"group_id"`
}

type DeviceRegisterResponse struct {
	DeviceID uint   `json:"device_id"`
	Code     string `json:"code"`
	Token    string `json:"token"`
}

type HeartbeatRequest struct {
	DeviceCode string         `json:"device_code"`
	Metrics    map[string]any `json:"metrics,omitempty"`
}

type PollResponse struct {
	Instructions []Instruction `json:"instructions"`
}

type ReportRequest struct {
	DeviceCode    string `json:"device_code"`
	InstructionID string `json:"instruction_id"`
	TaskID        uint   `json:"task_id,omitempty"`
	Outcome       string `json:"outcome"` // success|failed|timeout|cancelled
	Detail        string `json:"detail,omitempty"`
}

type CreateTaskRequest struct {
	Name            string          `json:"name"`
	ScriptID        uint            `json:"script_id"`
	TaskType        string          `json:"task_type"`   // immediate|scheduled|recurring
	TargetType      string          `json:"target_type"` // all|group|specific
	TargetGroupID   uint            `json:"target_group_id,omitempty"`
	TargetDeviceIDs []uint          `json:"target_device_ids,omitempty"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	Priority        int             `json:"priority"`
	MaxRetries      int             `json:"max_retries"`
	ScheduledTime   string          `json:"scheduled_time,omitempty"` // RFC3339
	CronExpression  string          `json:"cron_expression,omitempty"`
}

type EnqueueInstructionRequest struct {
	DeviceCode  string      `json:"device_code"`
	Instruction Instruction `json:"instruction"`
	Priority    bool        `json:"priority"`
}

type DeviceListEntry struct {
	ID          uint   `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	GroupID     uint   `json:"group_id"`
	Online      bool   `json:"online"`
	QueueLength int64  `json:"queue_length"`
}
