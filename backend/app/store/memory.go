package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryStore is a process-local Store for tests and single-node dev
// runs. TTLs are honored lazily on read.
type MemoryStore struct {
	mu      sync.Mutex
	scalars map[string]memEntry
	hashes  map[string]map[string]string
	lists   map[string][]string
	expiry  map[string]time.Time // key-level expiry for hashes and lists
	subs    map[string][]*memorySubscription
}

type memEntry struct {
	value   string
	expires time.Time // zero means no expiry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		scalars: make(map[string]memEntry),
		hashes:  make(map[string]map[string]string),
		lists:   make(map[string][]string),
		expiry:  make(map[string]time.Time),
		subs:    make(map[string][]*memorySubscription),
	}
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := memEntry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	s.scalars[key] = e
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.scalars[key]
	if !ok {
		return "", false, nil
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		delete(s.scalars, key)
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scalars, key)
	delete(s.hashes, key)
	delete(s.lists, key)
	delete(s.expiry, key)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	if _, ok, _ := s.Get(ctx, key); ok {
		return true, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionExpired(key) {
		return false, nil
	}
	if _, ok := s.hashes[key]; ok {
		return true, nil
	}
	if l, ok := s.lists[key]; ok && len(l) > 0 {
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.scalars[key]; ok {
		e.expires = time.Now().Add(ttl)
		s.scalars[key] = e
		return nil
	}
	s.expiry[key] = time.Now().Add(ttl)
	return nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.scalars[key]
	var n int64
	if e.value != "" {
		var err error
		n, err = strconv.ParseInt(e.value, 10, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "incr on non-integer key %s", key)
		}
	}
	n++
	s.scalars[key] = memEntry{value: strconv.FormatInt(n, 10), expires: e.expires}
	return n, nil
}

// collectionExpired drops a hash or list whose key-level TTL elapsed.
// Caller holds the mutex.
func (s *MemoryStore) collectionExpired(key string) bool {
	exp, ok := s.expiry[key]
	if !ok || time.Now().Before(exp) {
		return false
	}
	delete(s.hashes, key)
	delete(s.lists, key)
	delete(s.expiry, key)
	return true
}

func (s *MemoryStore) HSet(ctx context.Context, key, field, value string) error {
	return s.HSetMulti(ctx, key, map[string]string{field: value})
}

func (s *MemoryStore) HSetMulti(ctx context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionExpired(key)
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	for f, v := range fields {
		h[f] = v
	}
	return nil
}

func (s *MemoryStore) HGet(ctx context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionExpired(key) {
		return "", false, nil
	}
	v, ok := s.hashes[key][field]
	return v, ok, nil
}

func (s *MemoryStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string)
	if s.collectionExpired(key) {
		return out, nil
	}
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) PushBack(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionExpired(key)
	s.lists[key] = append(s.lists[key], value)
	return nil
}

func (s *MemoryStore) PushFront(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectionExpired(key)
	s.lists[key] = append([]string{value}, s.lists[key]...)
	return nil
}

func (s *MemoryStore) PopFront(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionExpired(key) {
		return "", false, nil
	}
	l := s.lists[key]
	if len(l) == 0 {
		return "", false, nil
	}
	v := l[0]
	s.lists[key] = l[1:]
	return v, true, nil
}

func (s *MemoryStore) ListLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionExpired(key) {
		return 0, nil
	}
	return int64(len(s.lists[key])), nil
}

func (s *MemoryStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collectionExpired(key) {
		return nil, nil
	}
	l := s.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

func (s *MemoryStore) Publish(ctx context.Context, channel, message string) error {
	s.mu.Lock()
	subs := append([]*memorySubscription(nil), s.subs[channel]...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.deliver(message)
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{store: s, channel: channel, ch: make(chan string, 16)}
	s.mu.Lock()
	s.subs[channel] = append(s.subs[channel], sub)
	s.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	store   *MemoryStore
	channel string
	mu      sync.Mutex
	closed  bool
	ch      chan string
}

func (m *memorySubscription) deliver(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.ch <- msg:
	default:
	}
}

func (m *memorySubscription) Messages() <-chan string { return m.ch }

func (m *memorySubscription) Close() error {
	s := m.store
	s.mu.Lock()
	subs := s.subs[m.channel]
	for i, sub := range subs {
		if sub == m {
			s.subs[m.channel] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.ch)
	}
	return nil
}
