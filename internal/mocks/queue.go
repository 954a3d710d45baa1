package mocks

import (
	"sync"
)

// MockQueue is an in-memory MessageQueue recording published messages.
type MockQueue struct {
	PublishFunc func(subject string, data []byte) error

	mu        sync.Mutex
	Published map[string][][]byte
}

func (m *MockQueue) Publish(subject string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(subject, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Published == nil {
		m.Published = make(map[string][][]byte)
	}
	m.Published[subject] = append(m.Published[subject], data)
	return nil
}

func (m *MockQueue) Subscribe(subject string, handler func(data []byte) error) error {
	return nil
}

func (m *MockQueue) Close() error { return nil }

// PublishedTo returns how many messages were published on a subject.
func (m *MockQueue) PublishedTo(subject string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Published[subject])
}
