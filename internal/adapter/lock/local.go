package lock

import (
	"context"
	"sync"
	"time"

	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

// LocalLock is an in-process ports.NamedLock for single-instance deployments
// and tests. Contract matches RedisLock, including the poll interval and the
// acquire timeout.
type LocalLock struct {
	mu           sync.Mutex
	held         map[string]bool
	pollInterval time.Duration
	timeout      time.Duration
}

func NewLocalLock() *LocalLock {
	return &LocalLock{
		held:         make(map[string]bool),
		pollInterval: time.Second,
		timeout:      10 * time.Second,
	}
}

// NewLocalLockWithTiming exists so tests can contend without real-time waits.
func NewLocalLockWithTiming(pollInterval, timeout time.Duration) *LocalLock {
	return &LocalLock{
		held:         make(map[string]bool),
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

func (l *LocalLock) Acquire(ctx context.Context, name string) (ports.Unlocker, error) {
	deadline := time.Now().Add(l.timeout)

	for {
		l.mu.Lock()
		if !l.held[name] {
			l.held[name] = true
			l.mu.Unlock()
			return &localUnlocker{lock: l, name: name}, nil
		}
		l.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, ports.ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.pollInterval):
		}
	}
}

type localUnlocker struct {
	lock *LocalLock
	name string
	once sync.Once
}

func (u *localUnlocker) Unlock(ctx context.Context) error {
	u.once.Do(func() {
		u.lock.mu.Lock()
		delete(u.lock.held, u.name)
		u.lock.mu.Unlock()
	})
	return nil
}
