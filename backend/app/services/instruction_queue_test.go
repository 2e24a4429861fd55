package services

import (
	"context"
	"testing"
	"time"

	"droidfleet/backend/app/dto"
	"droidfleet/backend/app/lock"
	"droidfleet/backend/app/models"
	"droidfleet/backend/app/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubDeviceFinder struct{ known map[string]bool }

func (s *stubDeviceFinder) FindByCode(code string) (*models.Device, error) {
	if s.known[code] {
		return &models.Device{ID: 1, Code: code}, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newTestQueue(codes ...string) *InstructionQueueService {
	known := make(map[string]bool, len(codes))
	for _, c := range codes {
		known[c] = true
	}
	return NewInstructionQueueService(
		store.NewMemoryStore(),
		lock.NewLocalLocker(),
		&stubDeviceFinder{known: known},
		zerolog.Nop(),
	)
}

func ping(id string) dto.Instruction {
	return dto.Instruction{ID: id, Type: dto.InstructionPing, TimeoutSeconds: 60}
}

func drainIDs(t *testing.T, q *InstructionQueueService, code string) []string {
	t.Helper()
	got, err := q.LongPoll(context.Background(), code, 50*time.Millisecond)
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, inst := range got {
		ids[i] = inst.ID
	}
	return ids
}

func TestEnqueueUnknownDevice(t *testing.T) {
	q := newTestQueue("dev-1")
	err := q.Enqueue(context.Background(), "ghost", ping("i-1"), false)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestEnqueueValidation(t *testing.T) {
	q := newTestQueue("dev-1")
	bad := dto.Instruction{Type: dto.InstructionPing, TimeoutSeconds: 9999}
	err := q.Enqueue(context.Background(), "dev-1", bad, false)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestQueueFIFO(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("a"), false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("b"), false))

	assert.Equal(t, []string{"a", "b"}, drainIDs(t, q, "dev-1"))
}

func TestPriorityBypass(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("a"), false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("b"), true))

	assert.Equal(t, []string{"b", "a"}, drainIDs(t, q, "dev-1"))
}

func TestPrioritySingleBypassLane(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("a"), false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("p1"), true))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("p2"), true))

	// Last priority-in is first out among priority items.
	assert.Equal(t, []string{"p2", "p1", "a"}, drainIDs(t, q, "dev-1"))
}

func TestExpiredInstructionDroppedOnDrain(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	expired := dto.Instruction{
		ID:             "old",
		Type:           dto.InstructionPing,
		CreatedAt:      time.Now().Add(-10 * time.Second).Unix(),
		TimeoutSeconds: 1,
	}
	require.NoError(t, q.Enqueue(ctx, "dev-1", expired, false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("fresh"), false))

	assert.Equal(t, []string{"fresh"}, drainIDs(t, q, "dev-1"))

	status, ok, err := q.Status(ctx, "old")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, dto.StatusExpired, status)

	status, _, err = q.Status(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, dto.StatusExecuting, status)
}

func TestCancelRemovesOnlyMatch(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("a"), false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("b"), false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("c"), false))

	found, err := q.Cancel(ctx, "dev-1", "b")
	require.NoError(t, err)
	assert.True(t, found)

	status, _, err := q.Status(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, dto.StatusCancelled, status)

	assert.Equal(t, []string{"a", "c"}, drainIDs(t, q, "dev-1"))
}

func TestCancelIdempotence(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("a"), false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("b"), false))

	before, err := q.Preview(ctx, "dev-1", 10)
	require.NoError(t, err)

	found, err := q.Cancel(ctx, "dev-1", "missing")
	require.NoError(t, err)
	assert.False(t, found)

	after, err := q.Preview(ctx, "dev-1", 10)
	require.NoError(t, err)
	assert.Equal(t, before, after, "queue contents and order must be untouched")
}

func TestQueueConservation(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, q.Enqueue(ctx, "dev-1", ping(id), false))
	}
	_, err := q.Cancel(ctx, "dev-1", "c")
	require.NoError(t, err)
	_, err = q.Cancel(ctx, "dev-1", "nope")
	require.NoError(t, err)

	n, err := q.Length(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "4 enqueued - 1 cancelled")
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("a"), false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("b"), false))

	n, err := q.Clear(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	length, err := q.Length(ctx, "dev-1")
	require.NoError(t, err)
	assert.Zero(t, length)

	status, _, err := q.Status(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, dto.StatusCleared, status)
}

func TestPreviewNonDestructive(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("a"), false))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("b"), false))

	got, err := q.Preview(ctx, "dev-1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	n, err := q.Length(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestPreviewSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	q := NewInstructionQueueService(st, lock.NewLocalLocker(), &stubDeviceFinder{known: map[string]bool{"dev-1": true}}, zerolog.Nop())

	require.NoError(t, st.PushBack(ctx, store.QueueKey("dev-1"), "{corrupt"))
	require.NoError(t, q.Enqueue(ctx, "dev-1", ping("ok"), false))

	got, err := q.Preview(ctx, "dev-1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].ID)
}

func TestLongPollTimeoutReturnsEmpty(t *testing.T) {
	q := newTestQueue("dev-1")
	start := time.Now()
	got, err := q.LongPoll(context.Background(), "dev-1", 100*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestLongPollWake(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = q.Enqueue(ctx, "dev-1", ping("wake"), false)
	}()

	start := time.Now()
	got, err := q.LongPoll(ctx, "dev-1", 5*time.Second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wake", got[0].ID)
	assert.Less(t, time.Since(start), 2*time.Second, "wake must beat the timeout by a wide margin")
}

func TestLongPollDrainsEverythingPresent(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue("dev-1")

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = q.Enqueue(ctx, "dev-1", ping("one"), false)
		_ = q.Enqueue(ctx, "dev-1", ping("two"), false)
	}()

	got, err := q.LongPoll(ctx, "dev-1", 5*time.Second)
	require.NoError(t, err)
	// The woken poller drains whatever is queued by the time it runs;
	// at least the notifying instruction must be there.
	require.NotEmpty(t, got)
	assert.Equal(t, "one", got[0].ID)
}

func TestGroupTrail(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue()

	ids, err := q.GroupTasks(ctx, "3", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	for _, id := range []uint{4, 7, 9} {
		require.NoError(t, q.RecordGroupTask(ctx, "3", id))
	}
	ids, err = q.GroupTasks(ctx, "3", 10)
	require.NoError(t, err)
	assert.Equal(t, []uint{4, 7, 9}, ids)

	// A shorter limit keeps the newest entries.
	ids, err = q.GroupTasks(ctx, "3", 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{7, 9}, ids)
}
