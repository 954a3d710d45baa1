package health

import (
	"github.com/gofiber/fiber/v2"
)

// FiberHandler exposes the probe endpoints. /healthz and /readyz are the
// kubernetes-style aliases.
type FiberHandler struct {
	service *Service
}

func NewFiberHandler(service *Service) *FiberHandler {
	return &FiberHandler{service: service}
}

func (h *FiberHandler) RegisterRoutes(app *fiber.App) {
	for _, path := range []string{"/health", "/healthz"} {
		app.Get(path, h.health)
	}
	for _, path := range []string{"/ready", "/readyz"} {
		app.Get(path, h.ready)
	}
}

func (h *FiberHandler) health(c *fiber.Ctx) error {
	return c.JSON(h.service.Health(c.Context()))
}

func (h *FiberHandler) ready(c *fiber.Ctx) error {
	report := h.service.Ready(c.Context())
	if !report.Ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(report)
	}
	return c.JSON(report)
}
