package domain

// TenantConfig carries the per-sales-channel provider credentials. It is
// resolved by an external configuration collaborator and passed explicitly
// through the call chain; nothing in this service caches it.
type TenantConfig struct {
	TenantID      string
	APIURL        string
	APIKey        string
	WebhookSecret string
	Sandbox       bool
	// MCC is the merchant category code sent with every checkout session.
	MCC string
}

// Order is a read model of the storefront's order aggregate. The order itself
// is owned by the shop system; this service only reads the already-taxed
// figures and issues state transitions against TransactionID.
type Order struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	OrderNumber     string     `json:"order_number" gorm:"column:order_number;index"`
	AmountTotal     float64    `json:"amount_total"`
	AmountNet       float64    `json:"amount_net"`
	TaxAmount       float64    `json:"tax_amount"`
	ShippingTotal   float64    `json:"shipping_total"`
	Currency        string     `json:"currency"`
	TransactionID   string     `json:"transaction_id"`
	ShippingMethod  string     `json:"shipping_method"`
	ShippingCountry string     `json:"shipping_country"`
	BillingAddress  *Address   `json:"billing_address,omitempty" gorm:"embedded;embeddedPrefix:billing_"`
	LineItems       []CartItem `json:"line_items,omitempty" gorm:"serializer:json"`
}

func (Order) TableName() string {
	return "orders"
}

// Cart is the pre-order aggregate as priced by the storefront's cart engine.
// All amounts are gross unless named otherwise; tax has already been
// calculated per line by the external pricing engine.
type Cart struct {
	Token          string
	Currency       string
	TotalPrice     float64
	NetPrice       float64
	TaxAmount      float64
	PositionPrice  float64
	ShippingTotal  float64
	ShippingTax    float64
	ShippingMethod string
	ShippingRef    string
	Countries      []string
	LineItems      []CartItem
}

// CartItem is a single priced line. TaxAmount is nil for lines without a tax
// bucket (fully tax-exempt); TotalPrice is the gross line total.
type CartItem struct {
	Label        string   `json:"label"`
	ReferencedID string   `json:"referenced_id"`
	Quantity     int      `json:"quantity"`
	UnitPrice    float64  `json:"unit_price"`
	TotalPrice   float64  `json:"total_price"`
	TaxAmount    *float64 `json:"tax_amount,omitempty"`
	Image        string   `json:"image,omitempty"`
}

// Customer is the slice of the storefront customer this service needs for
// prefilling the provider's checkout page.
type Customer struct {
	Email          string
	Phone          string
	BillingAddress *Address
}

// Address in the provider's wire shape.
type Address struct {
	Line1     string `json:"line1"`
	Line2     string `json:"line2,omitempty"`
	City      string `json:"city"`
	ZipCode   string `json:"zipCode"`
	Country   string `json:"country"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
}
