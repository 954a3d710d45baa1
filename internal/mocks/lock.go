package mocks

import (
	"context"

	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

// MockNamedLock is a mock implementation of NamedLock. The default behavior
// always grants the lock immediately.
type MockNamedLock struct {
	AcquireFunc func(ctx context.Context, name string) (ports.Unlocker, error)
}

func (m *MockNamedLock) Acquire(ctx context.Context, name string) (ports.Unlocker, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, name)
	}
	return NopUnlocker{}, nil
}

// NopUnlocker does nothing on release.
type NopUnlocker struct{}

func (NopUnlocker) Unlock(ctx context.Context) error { return nil }
