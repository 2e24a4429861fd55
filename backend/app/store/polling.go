package store

import (
	"context"
	"fmt"
	"time"
)

// Polling defaults: one-second poll up to 300 iterations. The product
// of the two is the documented worst-case wait for a subscriber when
// pub/sub is emulated.
const (
	DefaultPollInterval = time.Second
	DefaultMaxPolls     = 300
	pollingMessageTTL   = time.Hour
	versionKeySuffix    = ":version"
)

// Backend is the capability set the polling wrapper needs from its
// underlying cache; everything except native pub/sub.
type Backend interface {
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
}

// PollingStore adapts a plain cache into the full Store contract by
// emulating pub/sub with a per-channel version counter: Publish bumps
// the counter and stores the message under a versioned key; Subscribe
// polls the counter and replays any versions it has not seen.
type PollingStore struct {
	Backend
	Interval time.Duration
	MaxPolls int
}

func NewPollingStore(b Backend) *PollingStore {
	return &PollingStore{Backend: b, Interval: DefaultPollInterval, MaxPolls: DefaultMaxPolls}
}

func (s *PollingStore) versionKey(channel string) string { return channel + versionKeySuffix }

func (s *PollingStore) messageKey(channel string, version int64) string {
	return fmt.Sprintf("%s:message:%d", channel, version)
}

func (s *PollingStore) Publish(ctx context.Context, channel, message string) error {
	v, err := s.Incr(ctx, s.versionKey(channel))
	if err != nil {
		return err
	}
	return s.Set(ctx, s.messageKey(channel, v), message, pollingMessageTTL)
}

func (s *PollingStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	last, err := s.currentVersion(ctx, channel)
	if err != nil {
		return nil, err
	}
	sub := &pollingSubscription{
		store:   s,
		channel: channel,
		last:    last,
		ch:      make(chan string, 16),
		done:    make(chan struct{}),
	}
	go sub.loop(ctx)
	return sub, nil
}

func (s *PollingStore) currentVersion(ctx context.Context, channel string) (int64, error) {
	raw, ok, err := s.Get(ctx, s.versionKey(channel))
	if err != nil || !ok {
		return 0, err
	}
	var v int64
	_, _ = fmt.Sscanf(raw, "%d", &v)
	return v, nil
}

type pollingSubscription struct {
	store   *PollingStore
	channel string
	last    int64
	ch      chan string
	done    chan struct{}
}

func (p *pollingSubscription) loop(ctx context.Context) {
	defer close(p.ch)
	ticker := time.NewTicker(p.store.Interval)
	defer ticker.Stop()
	for i := 0; i < p.store.MaxPolls; i++ {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case <-ticker.C:
		}
		cur, err := p.store.currentVersion(ctx, p.channel)
		if err != nil {
			continue
		}
		for v := p.last + 1; v <= cur; v++ {
			msg, ok, err := p.store.Get(ctx, p.store.messageKey(p.channel, v))
			if err != nil || !ok {
				continue
			}
			select {
			case p.ch <- msg:
			case <-p.done:
				return
			case <-ctx.Done():
				return
			}
		}
		p.last = cur
	}
}

func (p *pollingSubscription) Messages() <-chan string { return p.ch }

func (p *pollingSubscription) Close() error {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	return nil
}
