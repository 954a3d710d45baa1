package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

// MockCache is an in-memory Cache for tests. Expirations are ignored.
type MockCache struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DeleteFunc func(ctx context.Context, key string) error

	mu   sync.Mutex
	Data map[string]string
}

func (m *MockCache) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.Data[key]; ok {
		return v, nil
	}
	return "", ports.ErrCacheMiss
}

func (m *MockCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc != nil {
		return m.SetFunc(ctx, key, value, expiration)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Data == nil {
		m.Data = make(map[string]string)
	}
	switch v := value.(type) {
	case string:
		m.Data[key] = v
	case []byte:
		m.Data[key] = string(v)
	default:
		m.Data[key] = fmt.Sprintf("%v", v)
	}
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Data, key)
	return nil
}

func (m *MockCache) Ping() error { return nil }

func (m *MockCache) Close() error { return nil }
