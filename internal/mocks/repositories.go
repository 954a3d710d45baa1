package mocks

import (
	"context"
	"sync"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
)

// MockSessionRepository is a mock implementation of PaymentSessionRepository.
// The default behavior (no funcs set) is an in-memory store with the real
// merge-upsert semantics, which most tests want.
type MockSessionRepository struct {
	FindByReferenceFunc  func(ctx context.Context, referenceID string) (*domain.PaymentSession, error)
	FindByIvyOrderIDFunc func(ctx context.Context, ivyOrderID string) (*domain.PaymentSession, error)
	UpsertFunc           func(ctx context.Context, update *domain.SessionUpdate) (*domain.PaymentSession, error)

	mu       sync.Mutex
	Sessions map[string]*domain.PaymentSession
}

func (m *MockSessionRepository) FindByReference(ctx context.Context, referenceID string) (*domain.PaymentSession, error) {
	if m.FindByReferenceFunc != nil {
		return m.FindByReferenceFunc(ctx, referenceID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.Sessions[referenceID]; ok {
		copy := *s
		return &copy, nil
	}
	return nil, nil
}

func (m *MockSessionRepository) FindByIvyOrderID(ctx context.Context, ivyOrderID string) (*domain.PaymentSession, error) {
	if m.FindByIvyOrderIDFunc != nil {
		return m.FindByIvyOrderIDFunc(ctx, ivyOrderID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.Sessions {
		if s.IvyOrderID == ivyOrderID {
			copy := *s
			return &copy, nil
		}
	}
	return nil, nil
}

func (m *MockSessionRepository) Upsert(ctx context.Context, update *domain.SessionUpdate) (*domain.PaymentSession, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, update)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Sessions == nil {
		m.Sessions = make(map[string]*domain.PaymentSession)
	}
	session, ok := m.Sessions[update.ReferenceID]
	if !ok {
		session = &domain.PaymentSession{ReferenceID: update.ReferenceID}
		m.Sessions[update.ReferenceID] = session
	}

	if update.LinkedOrderID != nil {
		if session.LinkedOrderID != nil && *session.LinkedOrderID != *update.LinkedOrderID {
			return nil, domain.ErrOrderAlreadyLinked
		}
		session.LinkedOrderID = update.LinkedOrderID
		session.ExpressTempData = nil
	}
	if update.Status != nil {
		session.Status = *update.Status
	}
	if update.CO2Grams != nil {
		session.CO2Grams = *update.CO2Grams
	}
	if update.IvySessionID != nil && session.IvySessionID == "" {
		session.IvySessionID = *update.IvySessionID
	}
	if update.IvyOrderID != nil && session.IvyOrderID == "" {
		session.IvyOrderID = *update.IvyOrderID
	}
	if len(update.ExpressTempData) > 0 && session.LinkedOrderID == nil {
		if session.ExpressTempData == nil {
			session.ExpressTempData = domain.JSONMap{}
		}
		for k, v := range update.ExpressTempData {
			session.ExpressTempData[k] = v
		}
	}

	copy := *session
	return &copy, nil
}

// MockOrderRepository is a mock implementation of OrderRepository
type MockOrderRepository struct {
	FindByReferenceFunc func(ctx context.Context, reference string) (*domain.Order, error)

	mu     sync.Mutex
	Orders map[string]*domain.Order
}

func (m *MockOrderRepository) FindByReference(ctx context.Context, reference string) (*domain.Order, error) {
	if m.FindByReferenceFunc != nil {
		return m.FindByReferenceFunc(ctx, reference)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.Orders[reference]; ok {
		return o, nil
	}
	for _, o := range m.Orders {
		if o.OrderNumber == reference {
			return o, nil
		}
	}
	return nil, nil
}

// AddOrder registers an order under its id for lookup.
func (m *MockOrderRepository) AddOrder(order *domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Orders == nil {
		m.Orders = make(map[string]*domain.Order)
	}
	m.Orders[order.ID] = order
}
