package domain

// Wire shapes of the provider's checkout-session API. Field names follow the
// provider contract, not Go convention, so the JSON tags are authoritative.

// CheckoutSessionRequest is the body of checkout/session/create. Immutable
// once sent; the signed bytes are whatever the caller serialized, so the
// request must be marshalled exactly once.
type CheckoutSessionRequest struct {
	Express         bool              `json:"express"`
	ReferenceID     string            `json:"referenceId"`
	Category        string            `json:"category,omitempty"`
	Price           Price             `json:"price"`
	LineItems       []SessionLineItem `json:"lineItems"`
	ShippingMethods []ShippingMethod  `json:"shippingMethods,omitempty"`
	BillingAddress  *Address          `json:"billingAddress,omitempty"`
	Prefill         *Prefill          `json:"prefill,omitempty"`
	// Handshake tells the provider whether to collect billing data on its
	// own pages. nil (absent) for express, where the provider always does.
	Handshake *bool             `json:"handshake,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Plugin    string            `json:"plugin,omitempty"`
}

// Price is the session-level price breakdown in the store's native currency
// units. No rounding happens here; presentation rounding is the caller's
// concern.
type Price struct {
	TotalNet float64 `json:"totalNet"`
	Vat      float64 `json:"vat"`
	Shipping float64 `json:"shipping"`
	Total    float64 `json:"total"`
	SubTotal float64 `json:"subTotal"`
	Currency string  `json:"currency"`
}

type SessionLineItem struct {
	Name        string  `json:"name"`
	ReferenceID string  `json:"referenceId"`
	SingleNet   float64 `json:"singleNet"`
	SingleVat   float64 `json:"singleVat"`
	Amount      float64 `json:"amount"`
	Quantity    float64 `json:"quantity"`
	Image       string  `json:"image,omitempty"`
}

type ShippingMethod struct {
	Price     float64  `json:"price"`
	Name      string   `json:"name"`
	Reference string   `json:"reference,omitempty"`
	Countries []string `json:"countries"`
}

type Prefill struct {
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// CheckoutSessionResponse is the provider's answer to session/create. An
// empty RedirectURL means the session is unusable and is treated as failure.
type CheckoutSessionResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
	CO2Grams    string `json:"co2Grams,omitempty"`
}

// OrderUpdateRequest is the body of order/update, sent after order
// materialization so provider-side references resolve the local order.
type OrderUpdateRequest struct {
	ID          string            `json:"id"`
	DisplayID   string            `json:"displayId,omitempty"`
	ReferenceID string            `json:"referenceId"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
