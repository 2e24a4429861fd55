package store

import "time"

// Key naming must stay stable: deployed fleets already hold data under
// these prefixes.
const (
	queueKeyPrefix     = "device_instruction_queue:"
	notifyKeyPrefix    = "device_poll_notify:"
	onlineKeyPrefix    = "device_online:"
	statusKeyPrefix    = "instruction_status:"
	heartbeatKeyPrefix = "device_last_heartbeat:"
	metricsKeyPrefix   = "device_metrics:"
	groupQueuePrefix   = "group_task_queue:"
	deviceLockPrefix   = "device_lock:"
	taskLockPrefix     = "task_dispatch:"
)

const (
	OnlineTTL    = 120 * time.Second
	StatusTTL    = time.Hour
	HeartbeatTTL = 5 * time.Minute
	LockTTL      = 30 * time.Second
	MetricsTTL   = 24 * time.Hour
)

func QueueKey(deviceCode string) string        { return queueKeyPrefix + deviceCode }
func NotifyChannel(deviceCode string) string   { return notifyKeyPrefix + deviceCode }
func OnlineKey(deviceCode string) string       { return onlineKeyPrefix + deviceCode }
func StatusKey(instructionID string) string    { return statusKeyPrefix + instructionID }
func HeartbeatKey(deviceCode string) string    { return heartbeatKeyPrefix + deviceCode }
func MetricsKey(deviceCode string) string      { return metricsKeyPrefix + deviceCode }
func GroupQueueKey(groupID string) string      { return groupQueuePrefix + groupID }
func DeviceLockKey(deviceCode string) string   { return deviceLockPrefix + deviceCode }
func TaskDispatchLockKey(taskID string) string { return taskLockPrefix + taskID }
