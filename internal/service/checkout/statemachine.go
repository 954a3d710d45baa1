package checkout

import (
	"context"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/queue"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/observability/telemetry"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

// statusRank orders provider statuses roughly along the payment lifecycle.
// Only consulted when the monotonic guard is enabled. Unknown statuses rank
// zero, so the guard skips them whenever a ranked status was already seen;
// they would be no-ops downstream anyway.
var statusRank = map[string]int{
	domain.StatusWaitingForPayment: 1,
	domain.StatusAuthorised:        1,
	domain.StatusProcessing:        2,
	domain.StatusPaid:              3,
	domain.StatusFailed:            3,
	domain.StatusCanceled:          3,
	domain.StatusDisputed:          4,
	domain.StatusInRefund:          4,
	domain.StatusRefunded:          5,
}

// StateMachine maps provider status strings onto local transaction
// transitions. Transitions are applied unconditionally; the underlying
// transaction handler owns idempotence and illegal-transition rejection.
// With the optional monotonic guard enabled, a status ranked below the last
// applied one is skipped instead, covering out-of-order redelivery.
type StateMachine struct {
	handler        ports.TransactionStateHandler
	events         *queue.EventPublisher
	log            *zap.Logger
	monotonicGuard bool
}

func NewStateMachine(handler ports.TransactionStateHandler, events *queue.EventPublisher, monotonicGuard bool, log *zap.Logger) *StateMachine {
	return &StateMachine{
		handler:        handler,
		events:         events,
		log:            log,
		monotonicGuard: monotonicGuard,
	}
}

// Apply forwards the provider status to the transaction handler. Unrecognized
// statuses and in_dispute are deliberate no-ops, logged, never errors.
// lastStatus is the session's previously recorded provider status, used only
// by the monotonic guard; pass "" when unknown.
func (m *StateMachine) Apply(ctx context.Context, transactionID, status, lastStatus string, event queue.PaymentEvent) error {
	if m.monotonicGuard && lastStatus != "" {
		if statusRank[status] < statusRank[lastStatus] {
			m.log.Info("skipping regressive status",
				zap.String("transaction_id", transactionID),
				zap.String("status", status),
				zap.String("last_status", lastStatus),
			)
			return nil
		}
	}

	var err error
	switch status {
	case domain.StatusWaitingForPayment, domain.StatusAuthorised:
		err = m.handler.Authorize(ctx, transactionID)
	case domain.StatusPaid:
		err = m.handler.Paid(ctx, transactionID)
	case domain.StatusProcessing:
		err = m.handler.Process(ctx, transactionID)
	case domain.StatusFailed:
		err = m.handler.Fail(ctx, transactionID)
	case domain.StatusCanceled:
		err = m.handler.Cancel(ctx, transactionID)
	case domain.StatusDisputed, domain.StatusInRefund:
		err = m.handler.Chargeback(ctx, transactionID)
	case domain.StatusRefunded:
		err = m.handler.Refund(ctx, transactionID)
	default:
		// Covers in_dispute and anything the provider adds later.
		m.log.Info("no transition for status",
			zap.String("transaction_id", transactionID),
			zap.String("status", status),
		)
		return nil
	}
	if err != nil {
		return err
	}

	telemetry.TransactionTransitions.WithLabelValues(status).Inc()
	if m.events != nil {
		event.State = status
		m.events.PublishPaymentEvent(event)
	}
	return nil
}
