// Package lock provides blocking acquire-run-release mutual exclusion
// keyed by string. The Redis implementation serializes across service
// instances; the local one serializes within a process and backs tests.
package lock

import "context"

// Locker runs fn while holding the named lock. BlockingRun blocks the
// caller until the lock is acquired or the acquisition bound is hit;
// the lock is always released before an error from fn is returned.
type Locker interface {
	BlockingRun(ctx context.Context, key string, fn func() error) error
}
