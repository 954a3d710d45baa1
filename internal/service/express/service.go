package express

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/gateway"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
	"github.com/wizmogmbh/ivy-gateway/internal/service/checkout"
)

// CallbackRequest is the provider's quote callback during an express
// checkout: the shopper picked an address or entered a voucher on the
// provider's pages and the provider asks for updated shipping and totals.
type CallbackRequest struct {
	ReferenceID     string          `json:"referenceId"`
	ShippingAddress *domain.Address `json:"shippingAddress,omitempty"`
	DiscountCode    string          `json:"discountCode,omitempty"`
}

// CallbackResponse carries the re-quoted shipping methods and the granted
// discount back to the provider. The HTTP layer signs the serialized body.
type CallbackResponse struct {
	ShippingMethods []domain.ShippingMethod `json:"shippingMethods,omitempty"`
	Discount        *DiscountResult         `json:"discount,omitempty"`
}

type DiscountResult struct {
	Amount float64 `json:"amount"`
}

// ConfirmRequest asks this service to turn the express cart into an order.
// Price is the total the provider showed the shopper and must match the
// authoritative cart within tolerance.
type ConfirmRequest struct {
	ReferenceID       string        `json:"referenceId"`
	IvyOrderID        string        `json:"id"`
	ShippingReference string        `json:"shippingMethod,omitempty"`
	Price             *domain.Price `json:"price,omitempty"`
}

type ConfirmResponse struct {
	OrderID     string `json:"orderId"`
	DisplayID   string `json:"displayId,omitempty"`
	RedirectURL string `json:"redirectUrl"`
}

// Service implements the express flow: quote callbacks before an order
// exists, the confirm call that materializes the order, and the browser
// finish fallback that reconciles via order/details when the confirm
// webhook raced the redirect.
type Service struct {
	sessions     ports.PaymentSessionRepository
	orders       ports.OrderRepository
	carts        ports.CartService
	materializer ports.OrderMaterializer
	client       *gateway.Client
	lock         ports.NamedLock
	builder      *checkout.PayloadBuilder
	finishURL    string
	log          *zap.Logger
}

func NewService(
	sessions ports.PaymentSessionRepository,
	orders ports.OrderRepository,
	carts ports.CartService,
	materializer ports.OrderMaterializer,
	client *gateway.Client,
	lock ports.NamedLock,
	finishURL string,
	log *zap.Logger,
) *Service {
	return &Service{
		sessions:     sessions,
		orders:       orders,
		carts:        carts,
		materializer: materializer,
		client:       client,
		lock:         lock,
		builder:      checkout.NewPayloadBuilder(),
		finishURL:    finishURL,
		log:          log,
	}
}

// HandleCallback re-quotes shipping and vouchers for the express cart. The
// shopper's pending choices are parked in the session's temp data until the
// order materializes.
func (s *Service) HandleCallback(ctx context.Context, tenant domain.TenantConfig, req CallbackRequest) (*CallbackResponse, error) {
	_, token, err := s.resolveSession(ctx, req.ReferenceID)
	if err != nil {
		return nil, err
	}

	resp := &CallbackResponse{}
	tempData := domain.JSONMap{}

	if req.ShippingAddress != nil {
		variants, err := s.carts.ShippingVariants(ctx, token)
		if err != nil {
			return nil, err
		}
		resp.ShippingMethods = variants
		tempData["shippingCountry"] = req.ShippingAddress.Country
		tempData["shippingZip"] = req.ShippingAddress.ZipCode
	}

	if req.DiscountCode != "" {
		amount, err := s.carts.ApplyVoucher(ctx, token, req.DiscountCode)
		if err != nil {
			s.log.Info("voucher rejected",
				zap.String("reference_id", req.ReferenceID),
				zap.Error(err),
			)
		} else {
			resp.Discount = &DiscountResult{Amount: amount}
			tempData["voucher"] = req.DiscountCode
		}
	}

	if len(tempData) > 0 {
		if _, err := s.sessions.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID:     req.ReferenceID,
			ExpressTempData: tempData,
		}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// Confirm materializes the express order. Redelivered confirms for an
// already linked session return the existing order instead of creating a
// second one; the webhook path and this one share the same named lock.
func (s *Service) Confirm(ctx context.Context, tenant domain.TenantConfig, req ConfirmRequest) (*ConfirmResponse, error) {
	if req.IvyOrderID == "" {
		return nil, &checkout.MalformedEventError{Reason: "confirm without provider order id"}
	}

	session, token, err := s.resolveSession(ctx, req.ReferenceID)
	if err != nil {
		return nil, err
	}

	if session.LinkedOrderID != nil {
		return s.confirmExisting(ctx, *session.LinkedOrderID)
	}

	if req.ShippingReference != "" {
		if err := s.carts.SetShippingMethod(ctx, token, req.ShippingReference); err != nil {
			return nil, err
		}
	}

	if req.Price != nil {
		cart, err := s.carts.GetCart(ctx, token)
		if err != nil {
			return nil, err
		}
		expected := s.builder.FromCart(cart, nil, tenant, true, true).Price
		if violations := checkout.ValidatePrice(expected, *req.Price); len(violations) > 0 {
			return nil, &checkout.ValidationError{Violations: violations}
		}
	}

	unlock, err := s.lock.Acquire(ctx, "ivy-order-"+req.IvyOrderID)
	if err != nil {
		return nil, err
	}
	defer unlock.Unlock(ctx)

	// The confirm webhook may have materialized meanwhile.
	session, err = s.sessions.FindByReference(ctx, req.ReferenceID)
	if err != nil {
		return nil, err
	}
	if session != nil && session.LinkedOrderID != nil {
		return s.confirmExisting(ctx, *session.LinkedOrderID)
	}

	order, err := s.materializer.CreateOrder(ctx, token, tenant)
	if err != nil {
		return nil, &checkout.MaterializationError{ReferenceID: req.ReferenceID, Err: err}
	}

	status := domain.SessionStatusCreateOrder
	if _, err := s.sessions.Upsert(ctx, &domain.SessionUpdate{
		ReferenceID:   req.ReferenceID,
		Status:        &status,
		LinkedOrderID: &order.ID,
		IvyOrderID:    &req.IvyOrderID,
	}); err != nil {
		return nil, err
	}

	s.notifyOrderUpdate(ctx, tenant, req.IvyOrderID, order)
	return s.confirmResponse(order), nil
}

// Finish handles the shopper landing on the finish page. When the confirm
// round-trip raced the redirect, provider state is resolved out-of-band via
// order/details and the order materialized if payment qualifies.
func (s *Service) Finish(ctx context.Context, tenant domain.TenantConfig, referenceID string) (*domain.Order, error) {
	session, token, err := s.resolveSession(ctx, referenceID)
	if err != nil {
		return nil, err
	}

	if session.LinkedOrderID != nil {
		return s.linkedOrder(ctx, *session.LinkedOrderID)
	}

	if session.IvyOrderID == "" {
		return nil, fmt.Errorf("session %s has no provider order to resolve", referenceID)
	}

	body, err := json.Marshal(map[string]string{"id": session.IvyOrderID})
	if err != nil {
		return nil, err
	}
	details, err := s.client.Send(ctx, gateway.EndpointOrderDetails, tenant, body)
	if err != nil {
		return nil, err
	}
	providerStatus, _ := details["status"].(string)
	if !domain.IndicatesOrderCreation(providerStatus) {
		return nil, fmt.Errorf("provider order %s not payable yet (status %q)", session.IvyOrderID, providerStatus)
	}

	unlock, err := s.lock.Acquire(ctx, "ivy-order-"+session.IvyOrderID)
	if err != nil {
		return nil, err
	}
	defer unlock.Unlock(ctx)

	session, err = s.sessions.FindByReference(ctx, referenceID)
	if err != nil {
		return nil, err
	}
	if session != nil && session.LinkedOrderID != nil {
		return s.linkedOrder(ctx, *session.LinkedOrderID)
	}

	order, err := s.materializer.CreateOrder(ctx, token, tenant)
	if err != nil {
		return nil, &checkout.MaterializationError{ReferenceID: referenceID, Err: err}
	}

	status := domain.SessionStatusCreateOrder
	if _, err := s.sessions.Upsert(ctx, &domain.SessionUpdate{
		ReferenceID:   referenceID,
		Status:        &status,
		LinkedOrderID: &order.ID,
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) resolveSession(ctx context.Context, referenceID string) (*domain.PaymentSession, string, error) {
	session, err := s.sessions.FindByReference(ctx, referenceID)
	if err != nil {
		return nil, "", err
	}
	if session == nil {
		return nil, "", &checkout.MalformedEventError{Reason: "unknown reference " + referenceID}
	}
	token := session.ExpressTempData.Str(checkout.MetadataTokenKey)
	if token == "" && session.LinkedOrderID == nil {
		return nil, "", &checkout.MalformedEventError{Reason: "session lacks continuation token"}
	}
	return session, token, nil
}

// linkedOrder resolves a session's linked order, turning a vanished row into
// a typed error instead of a nil order.
func (s *Service) linkedOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.FindByReference(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, fmt.Errorf("order %s: %w", orderID, checkout.ErrOrderNotFound)
	}
	return order, nil
}

func (s *Service) confirmExisting(ctx context.Context, orderID string) (*ConfirmResponse, error) {
	order, err := s.linkedOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.confirmResponse(order), nil
}

func (s *Service) confirmResponse(order *domain.Order) *ConfirmResponse {
	return &ConfirmResponse{
		OrderID:     order.ID,
		DisplayID:   order.OrderNumber,
		RedirectURL: fmt.Sprintf("%s?reference=%s", s.finishURL, order.ID),
	}
}

func (s *Service) notifyOrderUpdate(ctx context.Context, tenant domain.TenantConfig, ivyOrderID string, order *domain.Order) {
	body, err := json.Marshal(domain.OrderUpdateRequest{
		ID:          ivyOrderID,
		DisplayID:   order.OrderNumber,
		ReferenceID: order.ID,
	})
	if err != nil {
		s.log.Error("failed to marshal order update", zap.Error(err))
		return
	}
	if _, err := s.client.Send(ctx, gateway.EndpointOrderUpdate, tenant, body); err != nil {
		s.log.Warn("order update notification failed",
			zap.String("ivy_order_id", ivyOrderID),
			zap.Error(err),
		)
	}
}
