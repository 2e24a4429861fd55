package services

import (
	"context"
	"encoding/json"
	"time"

	"droidfleet/backend/app/lock"
	"droidfleet/backend/app/store"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// HeartbeatService tracks device liveness and reported metrics through
// TTL-bearing store keys. Presence of the online key alone is not
// trusted; the stored timestamp must also fall inside the online
// window, which covers clock drift between service instances.
type HeartbeatService struct {
	store  store.Store
	locker lock.Locker
	logger zerolog.Logger
}

func NewHeartbeatService(st store.Store, locker lock.Locker, logger zerolog.Logger) *HeartbeatService {
	return &HeartbeatService{store: st, locker: locker, logger: logger}
}

// RecordHeartbeat stamps the device's heartbeat and online keys, and
// stores any reported metrics. All writes for one device run under its
// lock so racing duplicate connections cannot interleave partial
// state.
func (s *HeartbeatService) RecordHeartbeat(ctx context.Context, deviceCode string, metrics map[string]any) error {
	return s.locker.BlockingRun(ctx, store.DeviceLockKey(deviceCode), func() error {
		now := time.Now().UTC().Format(time.RFC3339)
		if err := s.store.Set(ctx, store.HeartbeatKey(deviceCode), now, store.HeartbeatTTL); err != nil {
			return errors.Wrap(err, "set heartbeat")
		}
		if err := s.store.Set(ctx, store.OnlineKey(deviceCode), now, store.OnlineTTL); err != nil {
			return errors.Wrap(err, "set online state")
		}
		if len(metrics) > 0 {
			if err := s.writeMetrics(ctx, deviceCode, metrics); err != nil {
				return err
			}
		}
		return nil
	})
}

// IsOnline reports whether the device checked in recently. Requires
// both key presence and a timestamp inside the online window.
func (s *HeartbeatService) IsOnline(ctx context.Context, deviceCode string) (bool, error) {
	raw, ok, err := s.store.Get(ctx, store.OnlineKey(deviceCode))
	if err != nil {
		return false, errors.Wrap(err, "get online state")
	}
	if !ok {
		return false, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		s.logger.Warn().Str("device_code", deviceCode).Str("value", raw).Msg("malformed online timestamp")
		return false, nil
	}
	return time.Since(ts) <= store.OnlineTTL, nil
}

func (s *HeartbeatService) MarkOffline(ctx context.Context, deviceCode string) error {
	return errors.Wrap(s.store.Delete(ctx, store.OnlineKey(deviceCode)), "delete online state")
}

// LastHeartbeat returns the device's most recent check-in time, if one
// is still within the heartbeat TTL.
func (s *HeartbeatService) LastHeartbeat(ctx context.Context, deviceCode string) (time.Time, bool, error) {
	raw, ok, err := s.store.Get(ctx, store.HeartbeatKey(deviceCode))
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false, nil
	}
	return ts, true, nil
}

// RecordMetrics stores device metrics under the per-device lock.
func (s *HeartbeatService) RecordMetrics(ctx context.Context, deviceCode string, metrics map[string]any) error {
	return s.locker.BlockingRun(ctx, store.DeviceLockKey(deviceCode), func() error {
		return s.writeMetrics(ctx, deviceCode, metrics)
	})
}

func (s *HeartbeatService) writeMetrics(ctx context.Context, deviceCode string, metrics map[string]any) error {
	fields := make(map[string]string, len(metrics))
	for k, v := range metrics {
		switch t := v.(type) {
		case string:
			fields[k] = t
		default:
			b, err := json.Marshal(v)
			if err != nil {
				s.logger.Warn().Str("device_code", deviceCode).Str("metric", k).Msg("unencodable metric dropped")
				continue
			}
			fields[k] = string(b)
		}
	}
	key := store.MetricsKey(deviceCode)
	if err := s.store.HSetMulti(ctx, key, fields); err != nil {
		return errors.Wrap(err, "set metrics")
	}
	return errors.Wrap(s.store.Expire(ctx, key, store.MetricsTTL), "expire metrics")
}

// GetMetrics returns the stored metrics, JSON-decoding any value that
// parses as JSON and leaving the rest as raw strings.
func (s *HeartbeatService) GetMetrics(ctx context.Context, deviceCode string) (map[string]any, error) {
	raw, err := s.store.HGetAll(ctx, store.MetricsKey(deviceCode))
	if err != nil {
		return nil, errors.Wrap(err, "get metrics")
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}

// OnlineCount is a convenience for dashboards: how many of the given
// devices are currently online.
func (s *HeartbeatService) OnlineCount(ctx context.Context, deviceCodes []string) int {
	n := 0
	for _, code := range deviceCodes {
		online, err := s.IsOnline(ctx, code)
		if err != nil {
			s.logger.Warn().Err(err).Str("device_code", code).Msg("online check failed")
			continue
		}
		if online {
			n++
		}
	}
	return n
}
