package domain

// Webhook event types delivered by the provider.
const (
	WebhookOrderCreated = "order_created"
	WebhookOrderUpdated = "order_updated"
)

// Provider-reported payment statuses observed in webhook payloads.
const (
	StatusWaitingForPayment = "waiting_for_payment"
	StatusPaid              = "paid"
	StatusProcessing        = "processing"
	StatusAuthorised        = "authorised"
	StatusFailed            = "failed"
	StatusCanceled          = "canceled"
	StatusDisputed          = "disputed"
	StatusInRefund          = "in_refund"
	StatusRefunded          = "refunded"
	StatusInDispute         = "in_dispute"
)

// WebhookEvent is an inbound provider notification. Untrusted until the
// body signature has been verified.
type WebhookEvent struct {
	Type    string         `json:"type"`
	Payload WebhookPayload `json:"payload"`
}

// WebhookPayload mirrors the provider's order object. ID is the provider's
// order id; ReferenceID is the identifier this service chose at session
// creation (or the local order id after order/update).
type WebhookPayload struct {
	ID          string            `json:"id"`
	ReferenceID string            `json:"referenceId"`
	Status      string            `json:"status"`
	Metadata    JSONMap           `json:"metadata,omitempty"`
	LineItems   []SessionLineItem `json:"lineItems,omitempty"`
	Price       *Price            `json:"price,omitempty"`
}

// IndicatesOrderCreation reports whether a webhook status qualifies a
// pending cart for order materialization.
func IndicatesOrderCreation(status string) bool {
	return status == StatusPaid || status == StatusWaitingForPayment
}
