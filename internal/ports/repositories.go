package ports

import (
	"context"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
)

// PaymentSessionRepository persists the per-checkout session rows. Upsert
// has partial-field merge semantics: nil fields of the update leave the
// stored value untouched, ExpressTempData is merged key by key, and a
// LinkedOrderID conflicting with an already linked order is rejected with
// domain.ErrOrderAlreadyLinked.
type PaymentSessionRepository interface {
	FindByReference(ctx context.Context, referenceID string) (*domain.PaymentSession, error)
	FindByIvyOrderID(ctx context.Context, ivyOrderID string) (*domain.PaymentSession, error)
	Upsert(ctx context.Context, update *domain.SessionUpdate) (*domain.PaymentSession, error)
}

// OrderRepository reads the storefront's order aggregate. FindByReference
// resolves a direct id match first, then falls back to a lookup by
// human-entered order number. Returns nil, nil when nothing matches.
type OrderRepository interface {
	FindByReference(ctx context.Context, referenceID string) (*domain.Order, error)
}
