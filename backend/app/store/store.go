// Package store abstracts the backing key-value system every queue and
// device-state operation runs against. Adapters are swappable: Redis
// for production, a polling wrapper for providers without pub/sub, and
// an in-memory variant for tests.
package store

import (
	"context"
	"time"
)

// Subscription is a live feed of messages on one channel. Messages
// stops delivering after Close.
type Subscription interface {
	Messages() <-chan string
	Close() error
}

// Store is the full capability set the control plane needs from its
// backing store. List operations preserve insertion order: PushBack +
// PopFront is FIFO, PushFront jumps the line.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)

	HSet(ctx context.Context, key, field, value string) error
	HSetMulti(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, bool, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	PushBack(ctx context.Context, key, value string) error
	PushFront(ctx context.Context, key, value string) error
	PopFront(ctx context.Context, key string) (string, bool, error)
	ListLen(ctx context.Context, key string) (int64, error)
	ListRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}
