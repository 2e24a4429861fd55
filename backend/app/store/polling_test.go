package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFastPollingStore() *PollingStore {
	p := NewPollingStore(NewMemoryStore())
	p.Interval = 10 * time.Millisecond
	return p
}

func TestPollingStoreDeliversPublishedMessage(t *testing.T) {
	ctx := context.Background()
	p := newFastPollingStore()

	sub, err := p.Subscribe(ctx, "device_poll_notify:dev-1")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, p.Publish(ctx, "device_poll_notify:dev-1", "new_instruction"))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "new_instruction", msg)
	case <-time.After(time.Second):
		t.Fatal("polling subscription never woke")
	}
}

func TestPollingStoreSkipsHistory(t *testing.T) {
	ctx := context.Background()
	p := newFastPollingStore()

	// Messages published before Subscribe must not replay.
	require.NoError(t, p.Publish(ctx, "chan", "old"))

	sub, err := p.Subscribe(ctx, "chan")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, p.Publish(ctx, "chan", "new"))

	select {
	case msg := <-sub.Messages():
		assert.Equal(t, "new", msg)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestPollingStoreBoundedIterations(t *testing.T) {
	ctx := context.Background()
	p := newFastPollingStore()
	p.MaxPolls = 3

	sub, err := p.Subscribe(ctx, "chan")
	require.NoError(t, err)
	defer sub.Close()

	// After MaxPolls silent iterations the feed closes.
	select {
	case _, ok := <-sub.Messages():
		assert.False(t, ok, "channel should close without messages")
	case <-time.After(time.Second):
		t.Fatal("subscription did not terminate at its poll bound")
	}
}

func TestPollingStoreDeliversInOrder(t *testing.T) {
	ctx := context.Background()
	p := newFastPollingStore()

	sub, err := p.Subscribe(ctx, "chan")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, p.Publish(ctx, "chan", "one"))
	require.NoError(t, p.Publish(ctx, "chan", "two"))

	var got []string
	for len(got) < 2 {
		select {
		case msg := <-sub.Messages():
			got = append(got, msg)
		case <-time.After(time.Second):
			t.Fatalf("only received %v", got)
		}
	}
	assert.Equal(t, []string{"one", "two"}, got)
}
