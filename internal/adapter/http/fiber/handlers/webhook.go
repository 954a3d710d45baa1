package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/gateway"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
	"github.com/wizmogmbh/ivy-gateway/internal/service/checkout"
)

// TenantHeader identifies the sales channel on inbound requests. Falls back
// to the "tenant" query parameter for browser redirects, which cannot carry
// custom headers.
const TenantHeader = "X-Tenant-Id"

type WebhookHandler struct {
	processor *checkout.WebhookProcessor
	tenants   ports.TenantConfigSource
	log       *zap.Logger
}

func NewWebhookHandler(processor *checkout.WebhookProcessor, tenants ports.TenantConfigSource, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		tenants:   tenants,
		log:       log,
	}
}

// HandleUpdateTransaction is the provider's webhook endpoint. Verification
// runs over the exact raw body; the response body is signed with the same
// tenant secret so the provider can authenticate the acknowledgement.
func (h *WebhookHandler) HandleUpdateTransaction(c *fiber.Ctx) error {
	tenant, err := resolveTenant(c, h.tenants)
	if err != nil {
		return respondSigned(c, "", fiber.StatusBadRequest, false, "unknown tenant")
	}

	signature := presentedSignature(c)
	rawBody := c.Body()

	err = h.processor.Process(c.Context(), *tenant, rawBody, signature)
	if err == nil {
		return respondSigned(c, tenant.WebhookSecret, fiber.StatusOK, true, "")
	}

	status, message := mapProcessingError(err)
	if status == fiber.StatusInternalServerError {
		h.log.Error("webhook processing failed", zap.Error(err), zap.String("tenant", tenant.TenantID))
	} else {
		h.log.Info("webhook rejected", zap.Int("status", status), zap.String("reason", message))
	}
	// A failed signature check means the secret cannot authenticate the
	// caller either way, so that response goes out unsigned.
	secret := tenant.WebhookSecret
	if errors.Is(err, checkout.ErrSignatureInvalid) {
		secret = ""
	}
	return respondSigned(c, secret, status, false, message)
}

func resolveTenant(c *fiber.Ctx, tenants ports.TenantConfigSource) (*domain.TenantConfig, error) {
	tenantID := c.Get(TenantHeader)
	if tenantID == "" {
		tenantID = c.Query("tenant")
	}
	if tenantID == "" {
		tenantID = "default"
	}
	return tenants.Resolve(c.Context(), tenantID)
}

// presentedSignature accepts both header spellings used by different
// provider client versions.
func presentedSignature(c *fiber.Ctx) string {
	if sig := c.Get(gateway.SignatureHeader); sig != "" {
		return sig
	}
	return c.Get(gateway.SignatureHeaderAlt)
}

// respondSigned serializes the acknowledgement exactly once and signs those
// bytes, so the provider verifies what was actually transmitted.
func respondSigned(c *fiber.Ctx, secret string, status int, success bool, errMessage string) error {
	payload := fiber.Map{"success": success}
	if errMessage != "" {
		payload["error"] = errMessage
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if secret != "" {
		c.Set(gateway.SignatureHeader, gateway.Sign(body, secret))
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(status).Send(body)
}

func mapProcessingError(err error) (int, string) {
	var malformed *checkout.MalformedEventError
	var validation *checkout.ValidationError
	var materialization *checkout.MaterializationError

	switch {
	case errors.Is(err, checkout.ErrSignatureInvalid):
		return fiber.StatusForbidden, "invalid signature"
	case errors.As(err, &malformed):
		return fiber.StatusBadRequest, malformed.Reason
	case errors.As(err, &validation):
		return fiber.StatusBadRequest, validation.Error()
	case errors.Is(err, checkout.ErrOrderNotFound):
		return fiber.StatusNotFound, "order not found"
	case errors.Is(err, ports.ErrLockTimeout):
		return fiber.StatusLocked, "order creation in progress, redeliver later"
	case errors.As(err, &materialization):
		return fiber.StatusInternalServerError, "order creation failed"
	default:
		return fiber.StatusInternalServerError, "internal error"
	}
}
