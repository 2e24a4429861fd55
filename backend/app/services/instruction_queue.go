package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"droidfleet/backend/app/dto"
	"droidfleet/backend/app/lock"
	"droidfleet/backend/app/models"
	"droidfleet/backend/app/store"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// notifyNewInstruction is the wake message published on a device's
// notify channel after every enqueue.
const notifyNewInstruction = "new_instruction"

// DeviceFinder validates device codes against the registry.
type DeviceFinder interface {
	FindByCode(code string) (*models.Device, error)
}

// InstructionQueueService owns the per-device instruction queues. The
// pop/push pairs behind cancel and requeue span multiple store calls,
// so every queue mutation runs under the device's lock; without that,
// concurrent polls and sends interleave and lose or duplicate entries.
type InstructionQueueService struct {
	store   store.Store
	locker  lock.Locker
	devices DeviceFinder
	logger  zerolog.Logger
}

func NewInstructionQueueService(st store.Store, locker lock.Locker, devices DeviceFinder, logger zerolog.Logger) *InstructionQueueService {
	return &InstructionQueueService{store: st, locker: locker, devices: devices, logger: logger}
}

func (s *InstructionQueueService) checkDevice(code string) error {
	if _, err := s.devices.FindByCode(code); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errors.Wrapf(ErrDeviceNotFound, "device %q", code)
		}
		return errors.Wrapf(err, "look up device %q", code)
	}
	return nil
}

// Enqueue appends the instruction to the device's queue, or prepends
// it when priority is set, then wakes any waiting poller and records
// the pending status.
func (s *InstructionQueueService) Enqueue(ctx context.Context, deviceCode string, inst dto.Instruction, priority bool) error {
	if err := s.checkDevice(deviceCode); err != nil {
		return err
	}
	if err := inst.Normalize(); err != nil {
		return errors.Wrap(ErrValidation, err.Error())
	}
	raw, err := inst.Encode()
	if err != nil {
		return err
	}
	return s.locker.BlockingRun(ctx, store.DeviceLockKey(deviceCode), func() error {
		key := store.QueueKey(deviceCode)
		if priority {
			err = s.store.PushFront(ctx, key, raw)
		} else {
			err = s.store.PushBack(ctx, key, raw)
		}
		if err != nil {
			return errors.Wrapf(err, "enqueue to %s", deviceCode)
		}
		if err := s.store.Publish(ctx, store.NotifyChannel(deviceCode), notifyNewInstruction); err != nil {
			// The poller still finds the instruction on its next drain.
			s.logger.Warn().Err(err).Str("device_code", deviceCode).Msg("poll notify failed")
		}
		s.setStatus(ctx, inst.ID, dto.StatusPending)
		return nil
	})
}

// LongPoll returns the device's queued instructions, blocking up to
// timeout when the queue is empty until an enqueue notification lands.
// A timeout is not an error; it returns an empty slice. The blocking
// wait happens outside the device lock so enqueues can proceed.
func (s *InstructionQueueService) LongPoll(ctx context.Context, deviceCode string, timeout time.Duration) ([]dto.Instruction, error) {
	if err := s.checkDevice(deviceCode); err != nil {
		return nil, err
	}

	// Subscribe before draining so an enqueue landing between the
	// drain and the wait cannot be missed.
	sub, err := s.store.Subscribe(ctx, store.NotifyChannel(deviceCode))
	if err != nil {
		return nil, errors.Wrapf(err, "subscribe %s", deviceCode)
	}
	defer sub.Close()

	out, err := s.drain(ctx, deviceCode)
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		return out, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return []dto.Instruction{}, nil
		case _, ok := <-sub.Messages():
			if !ok {
				// Emulated subscriptions stop after their bounded poll
				// count; treat it like a timeout.
				return []dto.Instruction{}, nil
			}
			out, err = s.drain(ctx, deviceCode)
			if err != nil {
				return nil, err
			}
			if len(out) > 0 {
				return out, nil
			}
		}
	}
}

// drain pops everything currently queued under the device lock.
// Expired entries are marked and dropped, malformed entries are logged
// and dropped, the rest are marked executing and returned.
func (s *InstructionQueueService) drain(ctx context.Context, deviceCode string) ([]dto.Instruction, error) {
	var out []dto.Instruction
	err := s.locker.BlockingRun(ctx, store.DeviceLockKey(deviceCode), func() error {
		key := store.QueueKey(deviceCode)
		for {
			raw, ok, err := s.store.PopFront(ctx, key)
			if err != nil {
				return errors.Wrapf(err, "pop from %s", deviceCode)
			}
			if !ok {
				return nil
			}
			inst, err := dto.DecodeInstruction(raw)
			if err != nil {
				s.logger.Warn().Err(err).Str("device_code", deviceCode).Msg("malformed instruction dropped")
				continue
			}
			if inst.IsExpired() {
				s.setStatus(ctx, inst.ID, dto.StatusExpired)
				s.logger.Debug().Str("instruction_id", inst.ID).Str("device_code", deviceCode).Msg("expired instruction dropped")
				continue
			}
			s.setStatus(ctx, inst.ID, dto.StatusExecuting)
			out = append(out, inst)
		}
	})
	return out, err
}

// Cancel removes the matching instruction from the device's queue,
// preserving the order of everything else. Returns whether a match was
// found; cancelling an absent ID is a no-op.
func (s *InstructionQueueService) Cancel(ctx context.Context, deviceCode, instructionID string) (bool, error) {
	if err := s.checkDevice(deviceCode); err != nil {
		return false, err
	}
	found := false
	err := s.locker.BlockingRun(ctx, store.DeviceLockKey(deviceCode), func() error {
		key := store.QueueKey(deviceCode)
		var keep []string
		for {
			raw, ok, err := s.store.PopFront(ctx, key)
			if err != nil {
				return errors.Wrapf(err, "pop from %s", deviceCode)
			}
			if !ok {
				break
			}
			inst, err := dto.DecodeInstruction(raw)
			if err == nil && inst.ID == instructionID {
				found = true
				s.setStatus(ctx, inst.ID, dto.StatusCancelled)
				continue
			}
			keep = append(keep, raw)
		}
		for _, raw := range keep {
			if err := s.store.PushBack(ctx, key, raw); err != nil {
				return errors.Wrapf(err, "requeue to %s", deviceCode)
			}
		}
		return nil
	})
	return found, err
}

// Clear discards every queued instruction for the device, marking each
// cleared, and returns how many were removed.
func (s *InstructionQueueService) Clear(ctx context.Context, deviceCode string) (int, error) {
	if err := s.checkDevice(deviceCode); err != nil {
		return 0, err
	}
	count := 0
	err := s.locker.BlockingRun(ctx, store.DeviceLockKey(deviceCode), func() error {
		key := store.QueueKey(deviceCode)
		for {
			raw, ok, err := s.store.PopFront(ctx, key)
			if err != nil {
				return errors.Wrapf(err, "pop from %s", deviceCode)
			}
			if !ok {
				return nil
			}
			count++
			if inst, err := dto.DecodeInstruction(raw); err == nil {
				s.setStatus(ctx, inst.ID, dto.StatusCleared)
			}
		}
	})
	return count, err
}

// Length returns the number of queued instructions. Read-only, no lock.
func (s *InstructionQueueService) Length(ctx context.Context, deviceCode string) (int64, error) {
	n, err := s.store.ListLen(ctx, store.QueueKey(deviceCode))
	return n, errors.Wrapf(err, "queue length %s", deviceCode)
}

// Preview reads up to limit queued instructions without removing them.
// Malformed entries are skipped silently.
func (s *InstructionQueueService) Preview(ctx context.Context, deviceCode string, limit int64) ([]dto.Instruction, error) {
	if limit <= 0 {
		limit = 10
	}
	raws, err := s.store.ListRange(ctx, store.QueueKey(deviceCode), 0, limit-1)
	if err != nil {
		return nil, errors.Wrapf(err, "queue preview %s", deviceCode)
	}
	out := make([]dto.Instruction, 0, len(raws))
	for _, raw := range raws {
		if inst, err := dto.DecodeInstruction(raw); err == nil {
			out = append(out, inst)
		}
	}
	return out, nil
}

// RecordGroupTask appends a task ID to the group's dispatch trail so
// operators can see what was fanned out to a group and in what order.
func (s *InstructionQueueService) RecordGroupTask(ctx context.Context, groupID string, taskID uint) error {
	err := s.store.PushBack(ctx, store.GroupQueueKey(groupID), fmt.Sprintf("%d", taskID))
	return errors.Wrapf(err, "record task %d for group %s", taskID, groupID)
}

// GroupTasks lists the most recent task IDs dispatched to the group,
// newest last.
func (s *InstructionQueueService) GroupTasks(ctx context.Context, groupID string, limit int64) ([]uint, error) {
	if limit <= 0 {
		limit = 20
	}
	n, err := s.store.ListLen(ctx, store.GroupQueueKey(groupID))
	if err != nil {
		return nil, errors.Wrapf(err, "group trail length %s", groupID)
	}
	start := n - limit
	if start < 0 {
		start = 0
	}
	raws, err := s.store.ListRange(ctx, store.GroupQueueKey(groupID), start, n-1)
	if err != nil {
		return nil, errors.Wrapf(err, "group trail %s", groupID)
	}
	out := make([]uint, 0, len(raws))
	for _, raw := range raws {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint(id))
	}
	return out, nil
}

// Status reads an instruction's status record.
func (s *InstructionQueueService) Status(ctx context.Context, instructionID string) (dto.InstructionStatus, bool, error) {
	v, ok, err := s.store.HGet(ctx, store.StatusKey(instructionID), "status")
	if err != nil {
		return "", false, errors.Wrapf(err, "instruction status %s", instructionID)
	}
	return dto.InstructionStatus(v), ok, nil
}

// setStatus records the TTL-bounded status; stale records self-heal by
// expiring. Failures are logged, never fatal.
func (s *InstructionQueueService) setStatus(ctx context.Context, instructionID string, status dto.InstructionStatus) {
	key := store.StatusKey(instructionID)
	fields := map[string]string{
		"status":     string(status),
		"updated_at": time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.store.HSetMulti(ctx, key, fields); err != nil {
		s.logger.Warn().Err(err).Str("instruction_id", instructionID).Msg("status record write failed")
		return
	}
	if err := s.store.Expire(ctx, key, store.StatusTTL); err != nil {
		s.logger.Warn().Err(err).Str("instruction_id", instructionID).Msg("status record expire failed")
	}
}
