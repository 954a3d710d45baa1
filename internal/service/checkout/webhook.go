package checkout

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/gateway"
	"github.com/wizmogmbh/ivy-gateway/internal/adapter/queue"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/observability/telemetry"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

// MetadataTokenKey is the metadata field carrying the storefront's
// continuation token, stamped at session creation and echoed back by the
// provider on every webhook.
const MetadataTokenKey = "continuationToken"

// WebhookProcessor validates, classifies and routes inbound provider events.
// It drives order materialization under the named lock and forwards the
// reported status to the transaction state machine.
type WebhookProcessor struct {
	sessions     ports.PaymentSessionRepository
	orders       ports.OrderRepository
	materializer ports.OrderMaterializer
	client       *gateway.Client
	lock         ports.NamedLock
	machine      *StateMachine
	log          *zap.Logger
}

func NewWebhookProcessor(
	sessions ports.PaymentSessionRepository,
	orders ports.OrderRepository,
	materializer ports.OrderMaterializer,
	client *gateway.Client,
	lock ports.NamedLock,
	machine *StateMachine,
	log *zap.Logger,
) *WebhookProcessor {
	return &WebhookProcessor{
		sessions:     sessions,
		orders:       orders,
		materializer: materializer,
		client:       client,
		lock:         lock,
		machine:      machine,
		log:          log,
	}
}

// Process handles one inbound webhook delivery against the raw request body.
// Signature verification runs over the exact bytes as transmitted. The error
// taxonomy maps onto HTTP statuses at the handler layer: ErrSignatureInvalid
// to 403, MalformedEventError to 400, ports.ErrLockTimeout to 423,
// MaterializationError to 500. A nil return means the event was fully
// acknowledged, including the benign no-op branches.
func (p *WebhookProcessor) Process(ctx context.Context, tenant domain.TenantConfig, rawBody []byte, presentedSignature string) error {
	if !gateway.Verify(rawBody, tenant.WebhookSecret, presentedSignature) {
		telemetry.WebhooksReceived.WithLabelValues("signature_invalid").Inc()
		return ErrSignatureInvalid
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		telemetry.WebhooksReceived.WithLabelValues("malformed").Inc()
		return &MalformedEventError{Reason: "body is not valid JSON"}
	}
	if event.Type != domain.WebhookOrderCreated && event.Type != domain.WebhookOrderUpdated {
		telemetry.WebhooksReceived.WithLabelValues("malformed").Inc()
		return &MalformedEventError{Reason: "unsupported event type " + event.Type}
	}
	if event.Payload.Status == "" {
		telemetry.WebhooksReceived.WithLabelValues("malformed").Inc()
		return &MalformedEventError{Reason: "payload status missing"}
	}
	telemetry.WebhooksReceived.WithLabelValues(event.Type).Inc()

	payload := event.Payload
	log := p.log.With(
		zap.String("event_type", event.Type),
		zap.String("reference_id", payload.ReferenceID),
		zap.String("ivy_order_id", payload.ID),
		zap.String("status", payload.Status),
	)
	log.Info("processing webhook")

	session, err := p.lookupSession(ctx, payload)
	if err != nil {
		return err
	}
	lastStatus := ""
	sessionRef := payload.ReferenceID
	if session != nil {
		lastStatus = session.Status
		sessionRef = session.ReferenceID
	}

	order, err := p.resolveOrder(ctx, session, payload.ReferenceID)
	if err != nil {
		return err
	}

	if order == nil && domain.IndicatesOrderCreation(payload.Status) {
		order, err = p.materializeOnce(ctx, tenant, payload, log)
		if err != nil {
			return err
		}
	}

	if order == nil {
		// Premature or irrelevant event for an order that never
		// materializes. Acknowledge, keep the audit trail only.
		log.Info("no linked order, acknowledging without side effect")
		status := payload.Status
		if _, err := p.sessions.Upsert(ctx, &domain.SessionUpdate{
			ReferenceID: sessionRef,
			Status:      &status,
			IvyOrderID:  &payload.ID,
		}); err != nil {
			log.Warn("failed to record audit status", zap.Error(err))
		}
		return nil
	}

	if err := p.machine.Apply(ctx, order.TransactionID, payload.Status, lastStatus, queue.PaymentEvent{
		ReferenceID: payload.ReferenceID,
		OrderID:     order.ID,
		IvyOrderID:  payload.ID,
		TenantID:    tenant.TenantID,
	}); err != nil {
		return err
	}

	status := payload.Status
	if _, err := p.sessions.Upsert(ctx, &domain.SessionUpdate{
		ReferenceID: sessionRef,
		Status:      &status,
		IvyOrderID:  &payload.ID,
	}); err != nil {
		log.Warn("failed to record audit status", zap.Error(err))
	}
	return nil
}

// lookupSession resolves the session for a delivery. After the order update
// notification the provider may key follow-up events by the swapped-in local
// reference, so a miss on referenceId falls back to the provider order id.
func (p *WebhookProcessor) lookupSession(ctx context.Context, payload domain.WebhookPayload) (*domain.PaymentSession, error) {
	session, err := p.sessions.FindByReference(ctx, payload.ReferenceID)
	if err != nil || session != nil {
		return session, err
	}
	if payload.ID == "" {
		return nil, nil
	}
	return p.sessions.FindByIvyOrderID(ctx, payload.ID)
}

// resolveOrder finds the order a webhook refers to. A session linked during
// an earlier delivery wins over the reference lookup, because express
// references are opaque tokens that never match an order id directly.
func (p *WebhookProcessor) resolveOrder(ctx context.Context, session *domain.PaymentSession, referenceID string) (*domain.Order, error) {
	if session != nil && session.LinkedOrderID != nil {
		order, err := p.orders.FindByReference(ctx, *session.LinkedOrderID)
		if err != nil {
			return nil, err
		}
		if order != nil {
			return order, nil
		}
	}
	return p.orders.FindByReference(ctx, referenceID)
}

// materializeOnce serializes first-order-creation for one provider order id.
// Two deliveries can race here (redelivery plus original, or two near
// simultaneous events), so the existence re-check happens inside the lock.
func (p *WebhookProcessor) materializeOnce(ctx context.Context, tenant domain.TenantConfig, payload domain.WebhookPayload, log *zap.Logger) (*domain.Order, error) {
	unlock, err := p.lock.Acquire(ctx, "ivy-order-"+payload.ID)
	if err != nil {
		if err == ports.ErrLockTimeout {
			telemetry.LockTimeouts.Inc()
		}
		return nil, err
	}
	defer unlock.Unlock(ctx)

	// Another holder may have just created it; re-read under the lock.
	session, err := p.sessions.FindByReference(ctx, payload.ReferenceID)
	if err != nil {
		return nil, err
	}
	order, err := p.resolveOrder(ctx, session, payload.ReferenceID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return order, nil
	}

	token := payload.Metadata.Str(MetadataTokenKey)
	if token == "" {
		return nil, &MalformedEventError{Reason: "metadata lacks continuation token for order creation"}
	}

	order, err = p.materializer.CreateOrder(ctx, token, tenant)
	if err != nil {
		return nil, &MaterializationError{ReferenceID: payload.ReferenceID, Err: err}
	}
	telemetry.OrdersMaterialized.Inc()
	log.Info("order materialized", zap.String("order_id", order.ID))

	status := domain.SessionStatusCreateOrder
	if _, err := p.sessions.Upsert(ctx, &domain.SessionUpdate{
		ReferenceID:   payload.ReferenceID,
		Status:        &status,
		LinkedOrderID: &order.ID,
		IvyOrderID:    &payload.ID,
	}); err != nil {
		return nil, err
	}

	p.notifyOrderUpdate(ctx, tenant, payload, order, log)
	return order, nil
}

// notifyOrderUpdate tells the provider the final local order identifier so
// provider-side references resolve the same order thereafter. Best effort:
// a gateway failure is logged and swallowed, the provider reconciles via
// order/details later.
func (p *WebhookProcessor) notifyOrderUpdate(ctx context.Context, tenant domain.TenantConfig, payload domain.WebhookPayload, order *domain.Order, log *zap.Logger) {
	body, err := json.Marshal(domain.OrderUpdateRequest{
		ID:          payload.ID,
		DisplayID:   order.OrderNumber,
		ReferenceID: order.ID,
	})
	if err != nil {
		log.Error("failed to marshal order update", zap.Error(err))
		return
	}
	if _, err := p.client.Send(ctx, gateway.EndpointOrderUpdate, tenant, body); err != nil {
		log.Warn("order update notification failed", zap.Error(err))
	}
}
