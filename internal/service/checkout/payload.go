package checkout

import (
	"fmt"
	"math"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
)

// PluginIdentity is sent as the client identity string on every session.
const PluginIdentity = "ivy-gateway/1.0.0"

// PriceTolerance is the uniform accuracy bound for monetary equality checks.
// Amounts are compared in native currency units, never rounded here.
const PriceTolerance = 0.0001

// PayloadBuilder converts carts and orders into the provider's
// checkout-session request shape. It is stateless; all money figures come
// from the storefront's pricing engine already taxed.
type PayloadBuilder struct{}

func NewPayloadBuilder() *PayloadBuilder {
	return &PayloadBuilder{}
}

// FromOrder builds a session request for an already materialized order. The
// provider may still re-display address data, so handshake is always true.
func (b *PayloadBuilder) FromOrder(order *domain.Order, customer *domain.Customer, cfg domain.TenantConfig) *domain.CheckoutSessionRequest {
	handshake := true
	req := &domain.CheckoutSessionRequest{
		Express:     false,
		ReferenceID: order.ID,
		Category:    cfg.MCC,
		Price: domain.Price{
			TotalNet: order.AmountTotal - order.TaxAmount,
			Vat:      order.TaxAmount,
			Shipping: order.ShippingTotal,
			Total:    order.AmountTotal,
			SubTotal: order.AmountTotal - order.ShippingTotal,
			Currency: order.Currency,
		},
		LineItems:      buildLineItems(order.LineItems),
		BillingAddress: order.BillingAddress,
		Handshake:      &handshake,
		Plugin:         PluginIdentity,
	}

	if order.ShippingMethod != "" {
		req.ShippingMethods = []domain.ShippingMethod{{
			Name:      order.ShippingMethod,
			Price:     order.ShippingTotal,
			Countries: []string{order.ShippingCountry},
		}}
	}
	if customer != nil {
		req.Prefill = &domain.Prefill{Email: customer.Email, Phone: customer.Phone}
	}
	return req
}

// FromCart builds a session request before an order exists. In the express
// variant the provider collects the shipping address and renders shipping
// choices itself, so the shipping total is stripped from the displayed price
// and handshake stays absent. skipShipping additionally omits the shipping
// method list, used for callback round-trips where the provider already
// holds the methods.
func (b *PayloadBuilder) FromCart(cart *domain.Cart, customer *domain.Customer, cfg domain.TenantConfig, isExpress, skipShipping bool) *domain.CheckoutSessionRequest {
	req := &domain.CheckoutSessionRequest{
		Express:   isExpress,
		Category:  cfg.MCC,
		LineItems: buildLineItems(cart.LineItems),
		Plugin:    PluginIdentity,
	}

	if isExpress {
		total := cart.TotalPrice - cart.ShippingTotal
		vat := cart.TaxAmount - cart.ShippingTax
		req.Price = domain.Price{
			TotalNet: total - vat,
			Vat:      vat,
			Shipping: 0,
			Total:    total,
			SubTotal: cart.PositionPrice,
			Currency: cart.Currency,
		}
	} else {
		handshake := true
		req.Handshake = &handshake
		req.Price = domain.Price{
			TotalNet: cart.TotalPrice - cart.TaxAmount,
			Vat:      cart.TaxAmount,
			Shipping: cart.ShippingTotal,
			Total:    cart.TotalPrice,
			SubTotal: cart.PositionPrice,
			Currency: cart.Currency,
		}
		if customer != nil {
			req.BillingAddress = customer.BillingAddress
			req.Prefill = &domain.Prefill{Email: customer.Email, Phone: customer.Phone}
		}
	}

	if !skipShipping && cart.ShippingMethod != "" {
		req.ShippingMethods = []domain.ShippingMethod{{
			Name:      cart.ShippingMethod,
			Reference: cart.ShippingRef,
			Price:     cart.ShippingTotal,
			Countries: cart.Countries,
		}}
	}

	return req
}

// buildLineItems derives per-unit net and VAT from each line's calculated
// tax bucket. Lines without a bucket are fully tax exempt and fall back to
// the plain unit price with zero VAT.
func buildLineItems(items []domain.CartItem) []domain.SessionLineItem {
	out := make([]domain.SessionLineItem, 0, len(items))
	for _, item := range items {
		qty := float64(item.Quantity)
		if qty <= 0 {
			qty = 1
		}

		line := domain.SessionLineItem{
			Name:        item.Label,
			ReferenceID: item.ReferencedID,
			Amount:      item.TotalPrice,
			Quantity:    qty,
			Image:       item.Image,
		}

		if item.TaxAmount != nil {
			net := item.TotalPrice - *item.TaxAmount
			line.SingleNet = net / qty
			line.SingleVat = *item.TaxAmount / qty
		} else {
			line.SingleNet = item.UnitPrice
			line.SingleVat = 0
		}

		out = append(out, line)
	}
	return out
}

// PriceViolation records one field of a presented price that deviates from
// the authoritative value by more than PriceTolerance.
type PriceViolation struct {
	Field    string  `json:"field"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
}

func (v PriceViolation) String() string {
	return fmt.Sprintf("%s: expected %v, got %v", v.Field, v.Expected, v.Actual)
}

// ValidatePrice compares a provider-presented price against the authoritative
// one and returns the full violation list rather than failing on the first
// mismatch.
func ValidatePrice(expected, actual domain.Price) []PriceViolation {
	var violations []PriceViolation
	check := func(field string, want, got float64) {
		if math.Abs(want-got) > PriceTolerance {
			violations = append(violations, PriceViolation{Field: field, Expected: want, Actual: got})
		}
	}
	check("total", expected.Total, actual.Total)
	check("totalNet", expected.TotalNet, actual.TotalNet)
	check("vat", expected.Vat, actual.Vat)
	check("shipping", expected.Shipping, actual.Shipping)
	return violations
}
