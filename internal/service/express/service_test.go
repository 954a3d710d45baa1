package express

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/gateway"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/lock"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/mocks"
	"github.com/wizmogmbh/ivy-gateway/internal/service/checkout"
)

type fixture struct {
	svc          *Service
	sessions     *mocks.MockSessionRepository
	orders       *mocks.MockOrderRepository
	carts        *mocks.MockCartService
	materializer *mocks.MockOrderMaterializer
	tenant       domain.TenantConfig
	orderDetails atomic.Value // response body for order/details
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		sessions:     &mocks.MockSessionRepository{},
		orders:       &mocks.MockOrderRepository{},
		carts:        &mocks.MockCartService{},
		materializer: &mocks.MockOrderMaterializer{},
	}
	f.orderDetails.Store(`{"id":"ivy-1","status":"paid"}`)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/order/details" {
			w.Write([]byte(f.orderDetails.Load().(string)))
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)

	f.materializer.CreateOrderFunc = func(ctx context.Context, token string, tenant domain.TenantConfig) (*domain.Order, error) {
		order := &domain.Order{ID: "order-1", OrderNumber: "10001", TransactionID: "tx-1"}
		f.orders.AddOrder(order)
		return order, nil
	}

	f.tenant = domain.TenantConfig{
		TenantID:      "tenant-1",
		APIURL:        srv.URL,
		APIKey:        "sk_test",
		WebhookSecret: "whsec_test",
	}
	f.svc = NewService(
		f.sessions, f.orders, f.carts, f.materializer,
		gateway.NewClient(zap.NewNop()),
		lock.NewLocalLockWithTiming(time.Millisecond, time.Second),
		"https://shop.example/ivyexpress/finish",
		zap.NewNop(),
	)
	return f
}

func (f *fixture) seedSession(t *testing.T) {
	t.Helper()
	status := domain.SessionStatusInitExpress
	ivySession := "sess-1"
	ivyOrder := "ivy-1"
	_, err := f.sessions.Upsert(context.Background(), &domain.SessionUpdate{
		ReferenceID:     "ref-1",
		Status:          &status,
		IvySessionID:    &ivySession,
		IvyOrderID:      &ivyOrder,
		ExpressTempData: domain.JSONMap{checkout.MetadataTokenKey: "ctx-token"},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestCallbackUnknownReference(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleCallback(context.Background(), f.tenant, CallbackRequest{ReferenceID: "missing"})
	var merr *checkout.MalformedEventError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MalformedEventError, got %v", err)
	}
}

func TestCallbackShippingQuote(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)
	f.carts.ShippingVariantsFunc = func(ctx context.Context, token string) ([]domain.ShippingMethod, error) {
		if token != "ctx-token" {
			t.Errorf("expected continuation token, got %q", token)
		}
		return []domain.ShippingMethod{
			{Name: "Standard", Reference: "ship-std", Price: 5.00, Countries: []string{"DE"}},
			{Name: "Express", Reference: "ship-exp", Price: 9.90, Countries: []string{"DE"}},
		}, nil
	}

	resp, err := f.svc.HandleCallback(context.Background(), f.tenant, CallbackRequest{
		ReferenceID:     "ref-1",
		ShippingAddress: &domain.Address{Country: "DE", ZipCode: "10117"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.ShippingMethods) != 2 {
		t.Errorf("expected 2 shipping methods, got %d", len(resp.ShippingMethods))
	}

	s := f.sessions.Sessions["ref-1"]
	if s.ExpressTempData.Str("shippingCountry") != "DE" {
		t.Errorf("expected shipping country parked in temp data, got %v", s.ExpressTempData)
	}
	// Earlier temp data keys survive the merge.
	if s.ExpressTempData.Str(checkout.MetadataTokenKey) != "ctx-token" {
		t.Errorf("expected continuation token preserved, got %v", s.ExpressTempData)
	}
}

func TestCallbackVoucher(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)
	f.carts.ApplyVoucherFunc = func(ctx context.Context, token, code string) (float64, error) {
		if code != "SAVE10" {
			t.Errorf("unexpected code %q", code)
		}
		return 10.00, nil
	}

	resp, err := f.svc.HandleCallback(context.Background(), f.tenant, CallbackRequest{
		ReferenceID:  "ref-1",
		DiscountCode: "SAVE10",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Discount == nil || resp.Discount.Amount != 10.00 {
		t.Errorf("expected discount of 10.00, got %+v", resp.Discount)
	}
}

func TestCallbackRejectedVoucherIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)
	f.carts.ApplyVoucherFunc = func(ctx context.Context, token, code string) (float64, error) {
		return 0, errors.New("code expired")
	}

	resp, err := f.svc.HandleCallback(context.Background(), f.tenant, CallbackRequest{
		ReferenceID:  "ref-1",
		DiscountCode: "OLD",
	})
	if err != nil {
		t.Fatalf("rejected voucher must not fail the callback, got %v", err)
	}
	if resp.Discount != nil {
		t.Errorf("expected no discount, got %+v", resp.Discount)
	}
}

func expressCart() *domain.Cart {
	return &domain.Cart{
		Currency:      "EUR",
		TotalPrice:    119.00,
		TaxAmount:     19.00,
		PositionPrice: 114.00,
		ShippingTotal: 5.00,
		ShippingTax:   0.80,
	}
}

func TestConfirmCreatesOrder(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)
	f.carts.GetCartFunc = func(ctx context.Context, token string) (*domain.Cart, error) {
		return expressCart(), nil
	}

	resp, err := f.svc.Confirm(context.Background(), f.tenant, ConfirmRequest{
		ReferenceID: "ref-1",
		IvyOrderID:  "ivy-1",
		Price:       &domain.Price{Total: 114.00, TotalNet: 95.80, Vat: 18.20, Shipping: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.OrderID != "order-1" {
		t.Errorf("expected order-1, got %s", resp.OrderID)
	}
	if resp.RedirectURL != "https://shop.example/ivyexpress/finish?reference=order-1" {
		t.Errorf("unexpected redirect url %q", resp.RedirectURL)
	}
	s := f.sessions.Sessions["ref-1"]
	if s.LinkedOrderID == nil || *s.LinkedOrderID != "order-1" {
		t.Fatalf("expected session linked, got %+v", s)
	}
	if s.ExpressTempData != nil {
		t.Error("expected temp data cleared on link")
	}
}

func TestConfirmPriceMismatch(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)
	f.carts.GetCartFunc = func(ctx context.Context, token string) (*domain.Cart, error) {
		return expressCart(), nil
	}

	_, err := f.svc.Confirm(context.Background(), f.tenant, ConfirmRequest{
		ReferenceID: "ref-1",
		IvyOrderID:  "ivy-1",
		Price:       &domain.Price{Total: 120.00, TotalNet: 95.80, Vat: 18.20, Shipping: 0},
	})
	var verr *checkout.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Violations) != 1 || verr.Violations[0].Field != "total" {
		t.Errorf("expected a single total violation, got %v", verr.Violations)
	}
	if f.materializer.CallCount() != 0 {
		t.Error("expected no order creation on price mismatch")
	}
}

func TestConfirmIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)
	f.carts.GetCartFunc = func(ctx context.Context, token string) (*domain.Cart, error) {
		return expressCart(), nil
	}
	req := ConfirmRequest{
		ReferenceID: "ref-1",
		IvyOrderID:  "ivy-1",
		Price:       &domain.Price{Total: 114.00, TotalNet: 95.80, Vat: 18.20, Shipping: 0},
	}

	first, err := f.svc.Confirm(context.Background(), f.tenant, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := f.svc.Confirm(context.Background(), f.tenant, req)
	if err != nil {
		t.Fatalf("unexpected error on redelivered confirm: %v", err)
	}
	if first.OrderID != second.OrderID {
		t.Errorf("expected identical order, got %s and %s", first.OrderID, second.OrderID)
	}
	if f.materializer.CallCount() != 1 {
		t.Errorf("expected exactly one order creation, got %d", f.materializer.CallCount())
	}
}

func TestConfirmRequiresProviderOrderID(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)

	_, err := f.svc.Confirm(context.Background(), f.tenant, ConfirmRequest{
		ReferenceID: "ref-1",
	})
	var merr *checkout.MalformedEventError
	if !errors.As(err, &merr) {
		t.Fatalf("expected MalformedEventError, got %v", err)
	}
	if f.materializer.CallCount() != 0 {
		t.Error("expected no order creation without a provider order id")
	}
}

func TestFinishResolvesViaOrderDetails(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)

	order, err := f.svc.Finish(context.Background(), f.tenant, "ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order == nil || order.ID != "order-1" {
		t.Fatalf("expected materialized order, got %+v", order)
	}
	if f.materializer.CallCount() != 1 {
		t.Errorf("expected one materialization, got %d", f.materializer.CallCount())
	}
}

func TestFinishRejectsUnpaidOrder(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)
	f.orderDetails.Store(`{"id":"ivy-1","status":"failed"}`)

	_, err := f.svc.Finish(context.Background(), f.tenant, "ref-1")
	if err == nil {
		t.Fatal("expected error for unpaid provider order")
	}
	if f.materializer.CallCount() != 0 {
		t.Error("expected no materialization for unpaid order")
	}
}

func TestFinishIdempotentAfterWebhook(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)

	// Simulate the webhook path having linked the session already.
	linked := "order-9"
	f.orders.AddOrder(&domain.Order{ID: "order-9", TransactionID: "tx-9"})
	if _, err := f.sessions.Upsert(context.Background(), &domain.SessionUpdate{
		ReferenceID:   "ref-1",
		LinkedOrderID: &linked,
	}); err != nil {
		t.Fatal(err)
	}

	order, err := f.svc.Finish(context.Background(), f.tenant, "ref-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != "order-9" {
		t.Errorf("expected linked order returned, got %s", order.ID)
	}
	if f.materializer.CallCount() != 0 {
		t.Error("expected no second materialization")
	}
}

func TestFinishLinkedOrderGone(t *testing.T) {
	f := newFixture(t)
	f.seedSession(t)

	// Session points at an order that no longer resolves. Finish must
	// surface a typed error instead of a nil order.
	linked := "order-gone"
	if _, err := f.sessions.Upsert(context.Background(), &domain.SessionUpdate{
		ReferenceID:   "ref-1",
		LinkedOrderID: &linked,
	}); err != nil {
		t.Fatal(err)
	}

	order, err := f.svc.Finish(context.Background(), f.tenant, "ref-1")
	if !errors.Is(err, checkout.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
	if order != nil {
		t.Errorf("expected no order, got %+v", order)
	}
}
