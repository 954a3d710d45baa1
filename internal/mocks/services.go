package mocks

import (
	"context"
	"sync"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
)

// MockOrderMaterializer is a mock implementation of OrderMaterializer
type MockOrderMaterializer struct {
	CreateOrderFunc func(ctx context.Context, continuationToken string, tenant domain.TenantConfig) (*domain.Order, error)

	mu    sync.Mutex
	Calls int
}

func (m *MockOrderMaterializer) CreateOrder(ctx context.Context, continuationToken string, tenant domain.TenantConfig) (*domain.Order, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, continuationToken, tenant)
	}
	return &domain.Order{ID: "order-" + continuationToken, TransactionID: "tx-" + continuationToken}, nil
}

func (m *MockOrderMaterializer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

// MockTransactionStateHandler records every transition it is asked to apply.
type MockTransactionStateHandler struct {
	AuthorizeFunc  func(ctx context.Context, transactionID string) error
	PaidFunc       func(ctx context.Context, transactionID string) error
	ProcessFunc    func(ctx context.Context, transactionID string) error
	FailFunc       func(ctx context.Context, transactionID string) error
	CancelFunc     func(ctx context.Context, transactionID string) error
	ChargebackFunc func(ctx context.Context, transactionID string) error
	RefundFunc     func(ctx context.Context, transactionID string) error

	mu          sync.Mutex
	Transitions []string
}

func (m *MockTransactionStateHandler) record(name string) {
	m.mu.Lock()
	m.Transitions = append(m.Transitions, name)
	m.mu.Unlock()
}

func (m *MockTransactionStateHandler) Recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Transitions))
	copy(out, m.Transitions)
	return out
}

func (m *MockTransactionStateHandler) Authorize(ctx context.Context, transactionID string) error {
	m.record("authorize")
	if m.AuthorizeFunc != nil {
		return m.AuthorizeFunc(ctx, transactionID)
	}
	return nil
}

func (m *MockTransactionStateHandler) Paid(ctx context.Context, transactionID string) error {
	m.record("paid")
	if m.PaidFunc != nil {
		return m.PaidFunc(ctx, transactionID)
	}
	return nil
}

func (m *MockTransactionStateHandler) Process(ctx context.Context, transactionID string) error {
	m.record("process")
	if m.ProcessFunc != nil {
		return m.ProcessFunc(ctx, transactionID)
	}
	return nil
}

func (m *MockTransactionStateHandler) Fail(ctx context.Context, transactionID string) error {
	m.record("fail")
	if m.FailFunc != nil {
		return m.FailFunc(ctx, transactionID)
	}
	return nil
}

func (m *MockTransactionStateHandler) Cancel(ctx context.Context, transactionID string) error {
	m.record("cancel")
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, transactionID)
	}
	return nil
}

func (m *MockTransactionStateHandler) Chargeback(ctx context.Context, transactionID string) error {
	m.record("chargeback")
	if m.ChargebackFunc != nil {
		return m.ChargebackFunc(ctx, transactionID)
	}
	return nil
}

func (m *MockTransactionStateHandler) Refund(ctx context.Context, transactionID string) error {
	m.record("refund")
	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, transactionID)
	}
	return nil
}

// MockCartService is a mock implementation of CartService
type MockCartService struct {
	GetCartFunc           func(ctx context.Context, continuationToken string) (*domain.Cart, error)
	GetCustomerFunc       func(ctx context.Context, continuationToken string) (*domain.Customer, error)
	ShippingVariantsFunc  func(ctx context.Context, continuationToken string) ([]domain.ShippingMethod, error)
	SetShippingMethodFunc func(ctx context.Context, continuationToken, reference string) error
	ApplyVoucherFunc      func(ctx context.Context, continuationToken, code string) (float64, error)
}

func (m *MockCartService) GetCart(ctx context.Context, continuationToken string) (*domain.Cart, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx, continuationToken)
	}
	return &domain.Cart{Token: continuationToken, Currency: "EUR"}, nil
}

func (m *MockCartService) GetCustomer(ctx context.Context, continuationToken string) (*domain.Customer, error) {
	if m.GetCustomerFunc != nil {
		return m.GetCustomerFunc(ctx, continuationToken)
	}
	return nil, nil
}

func (m *MockCartService) ShippingVariants(ctx context.Context, continuationToken string) ([]domain.ShippingMethod, error) {
	if m.ShippingVariantsFunc != nil {
		return m.ShippingVariantsFunc(ctx, continuationToken)
	}
	return nil, nil
}

func (m *MockCartService) SetShippingMethod(ctx context.Context, continuationToken, reference string) error {
	if m.SetShippingMethodFunc != nil {
		return m.SetShippingMethodFunc(ctx, continuationToken, reference)
	}
	return nil
}

func (m *MockCartService) ApplyVoucher(ctx context.Context, continuationToken, code string) (float64, error) {
	if m.ApplyVoucherFunc != nil {
		return m.ApplyVoucherFunc(ctx, continuationToken, code)
	}
	return 0, nil
}

// MockTenantConfigSource is a mock implementation of TenantConfigSource
type MockTenantConfigSource struct {
	ResolveFunc func(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
}

func (m *MockTenantConfigSource) Resolve(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, tenantID)
	}
	return &domain.TenantConfig{
		TenantID:      tenantID,
		APIURL:        "https://api.example.test",
		APIKey:        "sk_test",
		WebhookSecret: "whsec_test",
	}, nil
}
