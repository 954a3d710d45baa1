package integration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/lock"
)

func TestRedisLock(t *testing.T) {
	env := SetupTestEnvironment(t)

	newLock := func(t *testing.T) *lock.RedisLock {
		l, err := lock.NewRedisLock(env.RedisURL, zap.NewNop())
		if err != nil {
			t.Fatalf("NewRedisLock failed: %v", err)
		}
		t.Cleanup(func() { l.Close() })
		return l
	}

	t.Run("acquire and release", func(t *testing.T) {
		FlushRedis(t, env.Redis)
		l := newLock(t)
		ctx := context.Background()

		unlocker, err := l.Acquire(ctx, "order-1")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		exists, err := env.Redis.Exists(ctx, "lock:order-1").Result()
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists != 1 {
			t.Error("lock key not present while held")
		}

		if err := unlocker.Unlock(ctx); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}

		exists, _ = env.Redis.Exists(ctx, "lock:order-1").Result()
		if exists != 0 {
			t.Error("lock key still present after release")
		}
	})

	t.Run("blocks second acquirer until released", func(t *testing.T) {
		FlushRedis(t, env.Redis)
		l := newLock(t)
		ctx := context.Background()

		unlocker, err := l.Acquire(ctx, "order-2")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		acquired := make(chan time.Time, 1)
		go func() {
			u, err := l.Acquire(ctx, "order-2")
			if err != nil {
				t.Errorf("second Acquire failed: %v", err)
				return
			}
			acquired <- time.Now()
			_ = u.Unlock(ctx)
		}()

		time.Sleep(500 * time.Millisecond)
		released := time.Now()
		if err := unlocker.Unlock(ctx); err != nil {
			t.Fatalf("Unlock failed: %v", err)
		}

		select {
		case at := <-acquired:
			if at.Before(released) {
				t.Error("second acquirer got the lock while it was still held")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("second acquirer never got the lock")
		}
	})

	t.Run("independent names do not contend", func(t *testing.T) {
		FlushRedis(t, env.Redis)
		l := newLock(t)
		ctx := context.Background()

		u1, err := l.Acquire(ctx, "order-3")
		if err != nil {
			t.Fatalf("Acquire order-3 failed: %v", err)
		}
		defer u1.Unlock(ctx)

		done := make(chan struct{})
		go func() {
			u2, err := l.Acquire(ctx, "order-4")
			if err != nil {
				t.Errorf("Acquire order-4 failed: %v", err)
			} else {
				_ = u2.Unlock(ctx)
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("acquire on a different name blocked")
		}
	})

	t.Run("context cancel aborts a blocked acquire", func(t *testing.T) {
		FlushRedis(t, env.Redis)
		l := newLock(t)

		unlocker, err := l.Acquire(context.Background(), "order-5")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		defer unlocker.Unlock(context.Background())

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		_, err = l.Acquire(ctx, "order-5")
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want context deadline exceeded", err)
		}
	})

	t.Run("stale release does not steal a reacquired lock", func(t *testing.T) {
		FlushRedis(t, env.Redis)
		l := newLock(t)
		ctx := context.Background()

		stale, err := l.Acquire(ctx, "order-6")
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}

		// Simulate TTL expiry, then let a second holder take over.
		if err := env.Redis.Del(ctx, "lock:order-6").Err(); err != nil {
			t.Fatalf("Del failed: %v", err)
		}
		current, err := l.Acquire(ctx, "order-6")
		if err != nil {
			t.Fatalf("reacquire failed: %v", err)
		}

		if err := stale.Unlock(ctx); err != nil {
			t.Fatalf("stale Unlock failed: %v", err)
		}

		exists, err := env.Redis.Exists(ctx, "lock:order-6").Result()
		if err != nil {
			t.Fatalf("Exists failed: %v", err)
		}
		if exists != 1 {
			t.Error("stale unlock released the current holder's lock")
		}

		_ = current.Unlock(ctx)
	})

	t.Run("serializes a contended critical section", func(t *testing.T) {
		FlushRedis(t, env.Redis)
		l := newLock(t)
		ctx := context.Background()

		var inSection int32
		var maxSeen int32
		var mu sync.Mutex
		var wg sync.WaitGroup

		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				u, err := l.Acquire(ctx, "order-7")
				if err != nil {
					t.Errorf("Acquire failed: %v", err)
					return
				}
				mu.Lock()
				inSection++
				if inSection > maxSeen {
					maxSeen = inSection
				}
				mu.Unlock()

				time.Sleep(50 * time.Millisecond)

				mu.Lock()
				inSection--
				mu.Unlock()
				_ = u.Unlock(ctx)
			}()
		}
		wg.Wait()

		if maxSeen != 1 {
			t.Errorf("critical section overlap: max concurrent holders = %d", maxSeen)
		}
	})
}
