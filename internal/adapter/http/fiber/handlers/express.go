package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/gateway"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
	"github.com/wizmogmbh/ivy-gateway/internal/service/checkout"
	"github.com/wizmogmbh/ivy-gateway/internal/service/express"
)

type ExpressHandler struct {
	orchestrator *checkout.Orchestrator
	service      *express.Service
	tenants      ports.TenantConfigSource
	log          *zap.Logger
}

func NewExpressHandler(orchestrator *checkout.Orchestrator, service *express.Service, tenants ports.TenantConfigSource, log *zap.Logger) *ExpressHandler {
	return &ExpressHandler{
		orchestrator: orchestrator,
		service:      service,
		tenants:      tenants,
		log:          log,
	}
}

type expressStartRequest struct {
	Token string `json:"token"`
}

// Start opens an express session for the current cart.
func (h *ExpressHandler) Start(c *fiber.Ctx) error {
	tenant, err := resolveTenant(c, h.tenants)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown tenant"})
	}

	var req expressStartRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid body"})
		}
	}
	if req.Token == "" {
		req.Token = c.Query("token")
	}
	if req.Token == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token is required"})
	}

	result, err := h.orchestrator.StartFromCart(c.Context(), *tenant, req.Token, true)
	if err != nil {
		return startError(c, err)
	}
	return c.JSON(result)
}

// Callback is the provider's signed quote callback: shipping variants and
// voucher results for the shopper's choices on the provider's pages. The
// response data is signed like a webhook acknowledgement.
func (h *ExpressHandler) Callback(c *fiber.Ctx) error {
	tenant, err := resolveTenant(c, h.tenants)
	if err != nil {
		return respondSigned(c, "", fiber.StatusBadRequest, false, "unknown tenant")
	}

	rawBody := c.Body()
	if !gateway.Verify(rawBody, tenant.WebhookSecret, presentedSignature(c)) {
		return respondSigned(c, "", fiber.StatusForbidden, false, "invalid signature")
	}

	var req express.CallbackRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		return respondSigned(c, tenant.WebhookSecret, fiber.StatusBadRequest, false, "invalid body")
	}

	resp, err := h.service.HandleCallback(c.Context(), *tenant, req)
	if err != nil {
		status, message := mapProcessingError(err)
		return respondSigned(c, tenant.WebhookSecret, status, false, message)
	}
	return sendSignedJSON(c, tenant.WebhookSecret, resp)
}

// Confirm is the provider's signed request to place the express order.
func (h *ExpressHandler) Confirm(c *fiber.Ctx) error {
	tenant, err := resolveTenant(c, h.tenants)
	if err != nil {
		return respondSigned(c, "", fiber.StatusBadRequest, false, "unknown tenant")
	}

	rawBody := c.Body()
	if !gateway.Verify(rawBody, tenant.WebhookSecret, presentedSignature(c)) {
		return respondSigned(c, "", fiber.StatusForbidden, false, "invalid signature")
	}

	var req express.ConfirmRequest
	if err := json.Unmarshal(rawBody, &req); err != nil {
		return respondSigned(c, tenant.WebhookSecret, fiber.StatusBadRequest, false, "invalid body")
	}

	resp, err := h.service.Confirm(c.Context(), *tenant, req)
	if err != nil {
		status, message := mapProcessingError(err)
		h.log.Info("express confirm rejected",
			zap.Int("status", status),
			zap.String("reference_id", req.ReferenceID),
			zap.String("reason", message),
		)
		return respondSigned(c, tenant.WebhookSecret, status, false, message)
	}
	return sendSignedJSON(c, tenant.WebhookSecret, resp)
}

// Finish is the shopper's browser landing after express payment.
func (h *ExpressHandler) Finish(c *fiber.Ctx) error {
	tenant, err := resolveTenant(c, h.tenants)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown tenant"})
	}

	reference := c.Query("reference")
	if reference == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reference is required"})
	}

	order, err := h.service.Finish(c.Context(), *tenant, reference)
	if err != nil {
		status, message := mapProcessingError(err)
		return c.Status(status).JSON(fiber.Map{"error": message})
	}
	return c.JSON(fiber.Map{
		"success":     true,
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
	})
}

func sendSignedJSON(c *fiber.Ctx, secret string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.Set(gateway.SignatureHeader, gateway.Sign(body, secret))
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Send(body)
}
