package checkout

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/gateway"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/queue"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/observability/telemetry"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

// StartResult is what the storefront needs to hand the shopper over to the
// provider's checkout page.
type StartResult struct {
	ReferenceID string `json:"referenceId"`
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}

// Orchestrator is the top-level entry point for starting checkout sessions
// and handling the shopper's synchronous browser return.
type Orchestrator struct {
	builder  *PayloadBuilder
	client   *gateway.Client
	sessions ports.PaymentSessionRepository
	orders   ports.OrderRepository
	carts    ports.CartService
	machine  *StateMachine
	log      *zap.Logger
}

func NewOrchestrator(
	builder *PayloadBuilder,
	client *gateway.Client,
	sessions ports.PaymentSessionRepository,
	orders ports.OrderRepository,
	carts ports.CartService,
	machine *StateMachine,
	log *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		builder:  builder,
		client:   client,
		sessions: sessions,
		orders:   orders,
		carts:    carts,
		machine:  machine,
		log:      log,
	}
}

// StartFromCart opens a provider session for the current cart, before any
// order exists. The continuation token is stamped into the session metadata
// so later webhooks can find their way back to the cart.
func (o *Orchestrator) StartFromCart(ctx context.Context, tenant domain.TenantConfig, continuationToken string, express bool) (*StartResult, error) {
	cart, err := o.carts.GetCart(ctx, continuationToken)
	if err != nil {
		return nil, err
	}

	var customer *domain.Customer
	if !express {
		// Prefill is best effort; guest carts have no customer yet.
		customer, err = o.carts.GetCustomer(ctx, continuationToken)
		if err != nil {
			o.log.Debug("no customer for prefill", zap.Error(err))
		}
	}

	referenceID := uuid.NewString()
	req := o.builder.FromCart(cart, customer, tenant, express, false)
	req.ReferenceID = referenceID
	req.Metadata = map[string]string{MetadataTokenKey: continuationToken}

	result, err := o.createSession(ctx, tenant, req)
	if err != nil {
		return nil, err
	}

	status := domain.SessionStatusInitNormal
	mode := "normal"
	update := &domain.SessionUpdate{
		ReferenceID:  referenceID,
		IvySessionID: &result.ID,
	}
	if express {
		status = domain.SessionStatusInitExpress
		mode = "express"
		update.ExpressTempData = domain.JSONMap{MetadataTokenKey: continuationToken}
	}
	update.Status = &status
	if result.CO2Grams != "" {
		update.CO2Grams = &result.CO2Grams
	}
	if _, err := o.sessions.Upsert(ctx, update); err != nil {
		return nil, err
	}
	telemetry.SessionsStarted.WithLabelValues(mode).Inc()

	return &StartResult{
		ReferenceID: referenceID,
		SessionID:   result.ID,
		RedirectURL: result.RedirectURL,
	}, nil
}

// StartFromOrder opens a provider session for an order that was already
// placed through the standard checkout. The order id doubles as the
// reference id, so webhooks resolve the order directly.
func (o *Orchestrator) StartFromOrder(ctx context.Context, tenant domain.TenantConfig, order *domain.Order, continuationToken string) (*StartResult, error) {
	req := o.builder.FromOrder(order, nil, tenant)
	req.Metadata = map[string]string{MetadataTokenKey: continuationToken}

	result, err := o.createSession(ctx, tenant, req)
	if err != nil {
		return nil, err
	}

	status := domain.SessionStatusInitNormal
	update := &domain.SessionUpdate{
		ReferenceID:   order.ID,
		Status:        &status,
		IvySessionID:  &result.ID,
		LinkedOrderID: &order.ID,
	}
	if result.CO2Grams != "" {
		update.CO2Grams = &result.CO2Grams
	}
	if _, err := o.sessions.Upsert(ctx, update); err != nil {
		return nil, err
	}
	telemetry.SessionsStarted.WithLabelValues("order").Inc()

	return &StartResult{
		ReferenceID: order.ID,
		SessionID:   result.ID,
		RedirectURL: result.RedirectURL,
	}, nil
}

func (o *Orchestrator) createSession(ctx context.Context, tenant domain.TenantConfig, req *domain.CheckoutSessionRequest) (*domain.CheckoutSessionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	raw, err := o.client.Send(ctx, gateway.EndpointSessionCreate, tenant, body)
	if err != nil {
		return nil, err
	}

	resp := decodeSessionResponse(raw)
	if resp.RedirectURL == "" {
		return nil, ErrNoRedirectURL
	}
	return resp, nil
}

func decodeSessionResponse(raw map[string]interface{}) *domain.CheckoutSessionResponse {
	resp := &domain.CheckoutSessionResponse{}
	if v, ok := raw["id"].(string); ok {
		resp.ID = v
	}
	if v, ok := raw["redirectUrl"].(string); ok {
		resp.RedirectURL = v
	}
	switch v := raw["co2Grams"].(type) {
	case string:
		resp.CO2Grams = v
	case json.Number:
		resp.CO2Grams = v.String()
	}
	return resp
}

// FinalizeReturn handles the shopper's synchronous redirect back from the
// provider. It is deliberately tolerant: an unknown or missing reference is
// logged and treated as a no-op rather than crashing the redirect flow,
// since the webhook path is the authoritative one. ivyOrderID comes from the
// return URL's order-id parameter and is recorded on the session when set.
func (o *Orchestrator) FinalizeReturn(ctx context.Context, tenant domain.TenantConfig, referenceID, providerStatus, ivyOrderID string) {
	if referenceID == "" || providerStatus == "" {
		o.log.Info("browser return without reference or status, ignoring")
		return
	}

	order, err := o.orders.FindByReference(ctx, referenceID)
	if err != nil {
		o.log.Warn("browser return order lookup failed", zap.String("reference_id", referenceID), zap.Error(err))
		return
	}
	if order == nil {
		o.log.Info("browser return for unknown reference, ignoring", zap.String("reference_id", referenceID))
		return
	}

	session, err := o.sessions.FindByReference(ctx, referenceID)
	lastStatus := ""
	if err == nil && session != nil {
		lastStatus = session.Status
	}

	if err := o.machine.Apply(ctx, order.TransactionID, providerStatus, lastStatus, queue.PaymentEvent{
		ReferenceID: referenceID,
		OrderID:     order.ID,
		TenantID:    tenant.TenantID,
	}); err != nil {
		o.log.Warn("browser return transition failed", zap.String("reference_id", referenceID), zap.Error(err))
	}

	// Close out the session lifecycle. The row is an audit trail, so the
	// outcome is recorded even when the transition above was a no-op.
	sessionStatus := domain.SessionStatusFinal
	switch providerStatus {
	case domain.StatusFailed:
		sessionStatus = domain.SessionStatusFailed
	case domain.StatusCanceled:
		sessionStatus = domain.SessionStatusCanceled
	}
	update := &domain.SessionUpdate{ReferenceID: referenceID, Status: &sessionStatus}
	if ivyOrderID != "" {
		update.IvyOrderID = &ivyOrderID
	}
	if _, err := o.sessions.Upsert(ctx, update); err != nil {
		o.log.Warn("browser return session audit failed", zap.String("reference_id", referenceID), zap.Error(err))
	}
}
