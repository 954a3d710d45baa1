package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/ports"
	"github.com/wizmogmbh/ivy-gateway/internal/service/checkout"
)

type CheckoutHandler struct {
	orchestrator *checkout.Orchestrator
	orders       ports.OrderRepository
	tenants      ports.TenantConfigSource
	log          *zap.Logger
}

func NewCheckoutHandler(orchestrator *checkout.Orchestrator, orders ports.OrderRepository, tenants ports.TenantConfigSource, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator: orchestrator,
		orders:       orders,
		tenants:      tenants,
		log:          log,
	}
}

type startRequest struct {
	Token   string `json:"token"`
	OrderID string `json:"orderId,omitempty"`
	Express bool   `json:"express,omitempty"`
}

// Start opens a provider session for the current cart, or for an already
// placed order when orderId is present.
func (h *CheckoutHandler) Start(c *fiber.Ctx) error {
	tenant, err := resolveTenant(c, h.tenants)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown tenant"})
	}

	var req startRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
		}
	}
	// Storefront redirects arrive as plain GETs.
	if req.Token == "" {
		req.Token = c.Query("token")
	}
	if req.OrderID == "" {
		req.OrderID = c.Query("orderId")
	}
	if !req.Express {
		req.Express = c.QueryBool("express")
	}
	if req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token is required"})
	}

	var result *checkout.StartResult
	if req.OrderID != "" {
		order, err := h.orders.FindByReference(c.Context(), req.OrderID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		}
		if order == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
		}
		result, err = h.orchestrator.StartFromOrder(c.Context(), *tenant, order, req.Token)
		if err != nil {
			return startError(c, err)
		}
	} else {
		result, err = h.orchestrator.StartFromCart(c.Context(), *tenant, req.Token, req.Express)
		if err != nil {
			return startError(c, err)
		}
	}

	return c.JSON(result)
}

func startError(c *fiber.Ctx, err error) error {
	if err == checkout.ErrNoRedirectURL {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "provider returned no redirect url"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
}

// FinalizeTransaction handles the shopper's synchronous browser return from
// the provider's success path. The webhook remains authoritative; this only
// nudges local state forward and always redirects.
func (h *CheckoutHandler) FinalizeTransaction(c *fiber.Ctx) error {
	tenant, err := resolveTenant(c, h.tenants)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown tenant"})
	}

	reference := c.Query("reference")
	status := c.Query("status")
	h.orchestrator.FinalizeReturn(c.Context(), *tenant, reference, status, c.Query("order-id"))

	return c.JSON(fiber.Map{"success": true, "reference": reference})
}

// FailedTransaction handles the shopper's browser return from the provider's
// error path.
func (h *CheckoutHandler) FailedTransaction(c *fiber.Ctx) error {
	tenant, err := resolveTenant(c, h.tenants)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown tenant"})
	}

	reference := c.Query("reference")
	status := c.Query("status")
	if status == "" {
		status = "failed"
	}
	h.orchestrator.FinalizeReturn(c.Context(), *tenant, reference, status, c.Query("order-id"))

	return c.JSON(fiber.Map{"success": false, "reference": reference})
}
