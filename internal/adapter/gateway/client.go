package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/observability/telemetry"
)

// Provider API endpoints used by this service.
const (
	EndpointSessionCreate  = "checkout/session/create"
	EndpointOrderUpdate    = "order/update"
	EndpointOrderDetails   = "order/details"
	EndpointMerchantUpdate = "merchant/update"
)

// ErrorReason classifies gateway failures.
type ErrorReason string

const (
	ReasonTransport  ErrorReason = "transport"
	ReasonHTTPStatus ErrorReason = "http_status"
	ReasonBadBody    ErrorReason = "bad_body"
)

// GatewayError is the single error type for outbound provider calls. The
// reason code distinguishes network failures, non-200 responses and
// unparseable bodies.
type GatewayError struct {
	Reason   ErrorReason
	Endpoint string
	Status   int
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway %s: %s (status %d)", e.Endpoint, e.Reason, e.Status)
	}
	return fmt.Sprintf("gateway %s: %s: %v", e.Endpoint, e.Reason, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// Client executes signed JSON calls against the provider. There is no retry
// logic anywhere in here: the caller (browser reload, provider redelivery)
// owns retries. A circuit breaker only fails fast when the provider is down.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	log        *zap.Logger
}

func NewClient(log *zap.Logger) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ivy-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Gateway circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		breaker:    cb,
		log:        log,
	}
}

// Send POSTs jsonBody to the given endpoint under the tenant's base URL and
// API key. Success is strictly HTTP 200 with a JSON object body; everything
// else is a *GatewayError.
func (c *Client) Send(ctx context.Context, endpoint string, tenant domain.TenantConfig, jsonBody []byte) (map[string]interface{}, error) {
	c.log.Info("send gateway request",
		zap.String("endpoint", endpoint),
		zap.String("tenant", tenant.TenantID),
		zap.Int("body_bytes", len(jsonBody)),
	)

	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, endpoint, tenant, jsonBody)
	})
	telemetry.GatewayRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		if gerr, ok := err.(*GatewayError); ok {
			return nil, gerr
		}
		// Breaker open counts as a transport failure: nothing was sent.
		return nil, &GatewayError{Reason: ReasonTransport, Endpoint: endpoint, Err: err}
	}
	return result.(map[string]interface{}), nil
}

func (c *Client) send(ctx context.Context, endpoint string, tenant domain.TenantConfig, jsonBody []byte) (map[string]interface{}, error) {
	url := strings.TrimSuffix(tenant.APIURL, "/") + "/" + endpoint

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &GatewayError{Reason: ReasonTransport, Endpoint: endpoint, Err: err}
	}
	req.Header.Set("X-Ivy-Api-Key", tenant.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("gateway transport failure", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &GatewayError{Reason: ReasonTransport, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GatewayError{Reason: ReasonTransport, Endpoint: endpoint, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error("gateway returned unexpected status",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &GatewayError{Reason: ReasonHTTPStatus, Endpoint: endpoint, Status: resp.StatusCode}
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		c.log.Error("gateway returned unparseable body", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, &GatewayError{Reason: ReasonBadBody, Endpoint: endpoint, Err: err}
	}
	if decoded == nil {
		return nil, &GatewayError{Reason: ReasonBadBody, Endpoint: endpoint, Err: fmt.Errorf("response is not a JSON object")}
	}

	c.log.Debug("gateway response", zap.String("endpoint", endpoint), zap.Int("body_bytes", len(body)))
	return decoded, nil
}
