package services

import (
	"context"
	"testing"
	"time"

	"droidfleet/backend/app/lock"
	"droidfleet/backend/app/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker() (*HeartbeatService, *store.MemoryStore) {
	st := store.NewMemoryStore()
	return NewHeartbeatService(st, lock.NewLocalLocker(), zerolog.Nop()), st
}

func TestHeartbeatMarksOnline(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestTracker()

	online, err := s.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, s.RecordHeartbeat(ctx, "dev-1", nil))

	online, err = s.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.True(t, online)

	ts, ok, err := s.LastHeartbeat(ctx, "dev-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}

func TestIsOnlineRejectsStaleTimestamp(t *testing.T) {
	ctx := context.Background()
	s, st := newTestTracker()

	// A key that exists but carries a timestamp outside the online
	// window is not trusted (clock drift defense).
	stale := time.Now().Add(-10 * time.Minute).UTC().Format(time.RFC3339)
	require.NoError(t, st.Set(ctx, store.OnlineKey("dev-1"), stale, store.OnlineTTL))

	online, err := s.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestIsOnlineMalformedTimestamp(t *testing.T) {
	ctx := context.Background()
	s, st := newTestTracker()

	require.NoError(t, st.Set(ctx, store.OnlineKey("dev-1"), "garbage", store.OnlineTTL))
	online, err := s.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestMarkOffline(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestTracker()

	require.NoError(t, s.RecordHeartbeat(ctx, "dev-1", nil))
	require.NoError(t, s.MarkOffline(ctx, "dev-1"))

	online, err := s.IsOnline(ctx, "dev-1")
	require.NoError(t, err)
	assert.False(t, online)
}

func TestMetricsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestTracker()

	metrics := map[string]any{
		"cpu":     42.5,
		"battery": float64(87),
		"network": map[string]any{"type": "wifi", "rssi": float64(-60)},
		"model":   "Pixel 8",
	}
	require.NoError(t, s.RecordHeartbeat(ctx, "dev-1", metrics))

	got, err := s.GetMetrics(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 42.5, got["cpu"])
	assert.Equal(t, float64(87), got["battery"])
	assert.Equal(t, map[string]any{"type": "wifi", "rssi": float64(-60)}, got["network"])
	// Plain strings stay strings even though they are not JSON.
	assert.Equal(t, "Pixel 8", got["model"])
}

func TestOnlineCount(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestTracker()

	require.NoError(t, s.RecordHeartbeat(ctx, "dev-1", nil))
	require.NoError(t, s.RecordHeartbeat(ctx, "dev-3", nil))

	n := s.OnlineCount(ctx, []string{"dev-1", "dev-2", "dev-3", "dev-4"})
	assert.Equal(t, 2, n)
}
