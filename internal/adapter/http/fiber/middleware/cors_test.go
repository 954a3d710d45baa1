package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/wizmogmbh/ivy-gateway/pkg/config"
)

func corsApp(t *testing.T, cfg config.CORSConfig) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Use(NewCORS(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestCORSCredentialsIgnoredWithWildcardOrigin(t *testing.T) {
	// Credentials together with the wildcard default must neither panic at
	// construction nor produce a credentialed wildcard response.
	app := corsApp(t, config.CORSConfig{Credentials: true})

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://shop.example")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.Header.Get(fiber.HeaderAccessControlAllowCredentials); got == "true" {
		t.Error("credentials must not be granted under a wildcard origin")
	}
}

func TestCORSCredentialsWithExplicitOrigins(t *testing.T) {
	app := corsApp(t, config.CORSConfig{
		AllowedOrigins: []string{"https://shop.example"},
		Credentials:    true,
	})

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderOrigin, "https://shop.example")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := resp.Header.Get(fiber.HeaderAccessControlAllowCredentials); got != "true" {
		t.Errorf("expected credentials granted for an explicit origin, got %q", got)
	}
	if got := resp.Header.Get(fiber.HeaderAccessControlAllowOrigin); got != "https://shop.example" {
		t.Errorf("unexpected allow-origin %q", got)
	}
}
