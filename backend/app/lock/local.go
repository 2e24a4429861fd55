package lock

import (
	"context"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// LocalLocker serializes within a single process using one mutex per
// key. Mutexes are never evicted; the key space (device codes, task
// IDs) is small and bounded in practice.
type LocalLocker struct {
	mus cmap.ConcurrentMap[string, *sync.Mutex]
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{mus: cmap.New[*sync.Mutex]()}
}

func (l *LocalLocker) BlockingRun(ctx context.Context, key string, fn func() error) error {
	l.mus.SetIfAbsent(key, &sync.Mutex{})
	mu, _ := l.mus.Get(key)
	mu.Lock()
	defer mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}
