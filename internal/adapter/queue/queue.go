package queue

// MessageQueue is the transport behind the payment event publisher. Delivery
// is fire-and-forget; subscribers are downstream consumers (fulfilment,
// accounting) outside this service.
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}
