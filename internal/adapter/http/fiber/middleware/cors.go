package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	fibercors "github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/wizmogmbh/ivy-gateway/pkg/config"
)

// NewCORS builds the CORS middleware for the storefront-facing endpoints
// (checkout and express start). The provider's own callbacks are
// server-to-server and never preflight.
func NewCORS(cfg config.CORSConfig) fiber.Handler {
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 86400
	}

	origins := joinOr(cfg.AllowedOrigins, "*")
	// fiber refuses credentialed CORS with a wildcard origin, so credentials
	// only take effect once explicit origins are configured.
	credentials := cfg.Credentials && origins != "*"

	return fibercors.New(fibercors.Config{
		AllowOrigins:     origins,
		AllowMethods:     joinOr(cfg.AllowedMethods, "GET,POST,OPTIONS"),
		AllowHeaders:     joinOr(cfg.AllowedHeaders, "Origin,Content-Type,Accept,X-Tenant-Id"),
		ExposeHeaders:    joinOr(cfg.ExposeHeaders, "Content-Length"),
		AllowCredentials: credentials,
		MaxAge:           maxAge,
	})
}

func joinOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return strings.Join(values, ",")
}
