package queue

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// PaymentEvent is published on ivy.payment.<state> whenever a transaction
// transition is applied. Downstream consumers (ERP sync, mail, reporting)
// subscribe to the subjects they care about.
type PaymentEvent struct {
	ReferenceID string    `json:"reference_id"`
	OrderID     string    `json:"order_id,omitempty"`
	IvyOrderID  string    `json:"ivy_order_id,omitempty"`
	State       string    `json:"state"`
	TenantID    string    `json:"tenant_id"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventPublisher serializes payment events onto the message queue. Publish
// failures are logged and swallowed: the state transition already happened and
// must not be rolled back because a consumer-facing notification failed.
type EventPublisher struct {
	queue MessageQueue
	log   *zap.Logger
}

func NewEventPublisher(queue MessageQueue, log *zap.Logger) *EventPublisher {
	return &EventPublisher{queue: queue, log: log}
}

func (p *EventPublisher) PublishPaymentEvent(event PaymentEvent) {
	if p.queue == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal payment event", zap.Error(err))
		return
	}

	subject := "ivy.payment." + event.State
	if err := p.queue.Publish(subject, data); err != nil {
		p.log.Error("failed to publish payment event",
			zap.String("subject", subject),
			zap.String("reference_id", event.ReferenceID),
			zap.Error(err),
		)
	}
}
