package ports

import (
	"context"
	"errors"
	"time"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
)

// OrderMaterializer converts the pending cart identified by the caller's
// continuation token into a durable order and initiates its payment handle.
// It is owned by the shop system; this service invokes it exactly once per
// reference id, guarded by the named lock.
type OrderMaterializer interface {
	CreateOrder(ctx context.Context, continuationToken string, tenant domain.TenantConfig) (*domain.Order, error)
}

// TransactionStateHandler applies payment state transitions to the order's
// transaction aggregate. The handler itself is expected to be idempotent and
// to reject illegal transitions; callers apply unconditionally.
type TransactionStateHandler interface {
	Authorize(ctx context.Context, transactionID string) error
	Paid(ctx context.Context, transactionID string) error
	Process(ctx context.Context, transactionID string) error
	Fail(ctx context.Context, transactionID string) error
	Cancel(ctx context.Context, transactionID string) error
	Chargeback(ctx context.Context, transactionID string) error
	Refund(ctx context.Context, transactionID string) error
}

// CartService is the narrow interface onto the storefront's cart engine.
// Pricing and tax calculation stay on the storefront side; this service only
// reads the already-calculated aggregate.
type CartService interface {
	GetCart(ctx context.Context, continuationToken string) (*domain.Cart, error)
	GetCustomer(ctx context.Context, continuationToken string) (*domain.Customer, error)
	// ShippingVariants enumerates the currently selectable shipping methods
	// with their recalculated prices for the express quote callback.
	ShippingVariants(ctx context.Context, continuationToken string) ([]domain.ShippingMethod, error)
	SetShippingMethod(ctx context.Context, continuationToken, reference string) error
	// ApplyVoucher adds a discount code to the cart and returns the
	// discount amount (positive) actually granted.
	ApplyVoucher(ctx context.Context, continuationToken, code string) (float64, error)
}

// TenantConfigSource resolves provider credentials per sales channel. Any
// caching happens behind this interface.
type TenantConfigSource interface {
	Resolve(ctx context.Context, tenantID string) (*domain.TenantConfig, error)
}

// ErrCacheMiss is returned by Cache.Get for absent or expired keys.
var ErrCacheMiss = errors.New("cache miss")

// Cache is a small key-value cache abstraction with TTL support, backing the
// tenant config lookups.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping() error
	Close() error
}
