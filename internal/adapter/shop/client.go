package shop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/domain"
)

// Client talks to the storefront's internal API. The shop owns carts,
// orders and transaction state; this adapter only invokes its endpoints
// and maps the responses onto the gateway's read models.
//
// It implements ports.CartService, ports.OrderMaterializer and
// ports.TransactionStateHandler.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger
}

func NewClient(baseURL string, log *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

func (c *Client) GetCart(ctx context.Context, continuationToken string) (*domain.Cart, error) {
	var cart domain.Cart
	if err := c.call(ctx, http.MethodGet, "/internal/cart", continuationToken, nil, &cart); err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &cart, nil
}

func (c *Client) GetCustomer(ctx context.Context, continuationToken string) (*domain.Customer, error) {
	var customer domain.Customer
	if err := c.call(ctx, http.MethodGet, "/internal/customer", continuationToken, nil, &customer); err != nil {
		return nil, fmt.Errorf("failed to load customer: %w", err)
	}
	if customer.Email == "" {
		return nil, nil
	}
	return &customer, nil
}

func (c *Client) ShippingVariants(ctx context.Context, continuationToken string) ([]domain.ShippingMethod, error) {
	var methods []domain.ShippingMethod
	if err := c.call(ctx, http.MethodGet, "/internal/shipping-methods", continuationToken, nil, &methods); err != nil {
		return nil, fmt.Errorf("failed to load shipping methods: %w", err)
	}
	return methods, nil
}

func (c *Client) SetShippingMethod(ctx context.Context, continuationToken, reference string) error {
	body := map[string]string{"reference": reference}
	if err := c.call(ctx, http.MethodPost, "/internal/shipping-method", continuationToken, body, nil); err != nil {
		return fmt.Errorf("failed to set shipping method: %w", err)
	}
	return nil
}

func (c *Client) ApplyVoucher(ctx context.Context, continuationToken, code string) (float64, error) {
	body := map[string]string{"code": code}
	var result struct {
		Amount float64 `json:"amount"`
	}
	if err := c.call(ctx, http.MethodPost, "/internal/voucher", continuationToken, body, &result); err != nil {
		return 0, fmt.Errorf("failed to apply voucher: %w", err)
	}
	return result.Amount, nil
}

// CreateOrder converts the pending cart into a durable order with its
// payment handle. Idempotence for this call is owned by the caller's named
// lock, not by the shop.
func (c *Client) CreateOrder(ctx context.Context, continuationToken string, tenant domain.TenantConfig) (*domain.Order, error) {
	body := map[string]string{"salesChannel": tenant.TenantID}
	var order domain.Order
	if err := c.call(ctx, http.MethodPost, "/internal/order", continuationToken, body, &order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("shop returned an order without id")
	}
	return &order, nil
}

func (c *Client) Authorize(ctx context.Context, transactionID string) error {
	return c.transition(ctx, transactionID, "authorize")
}

func (c *Client) Paid(ctx context.Context, transactionID string) error {
	return c.transition(ctx, transactionID, "paid")
}

func (c *Client) Process(ctx context.Context, transactionID string) error {
	return c.transition(ctx, transactionID, "process")
}

func (c *Client) Fail(ctx context.Context, transactionID string) error {
	return c.transition(ctx, transactionID, "fail")
}

func (c *Client) Cancel(ctx context.Context, transactionID string) error {
	return c.transition(ctx, transactionID, "cancel")
}

func (c *Client) Chargeback(ctx context.Context, transactionID string) error {
	return c.transition(ctx, transactionID, "chargeback")
}

func (c *Client) Refund(ctx context.Context, transactionID string) error {
	return c.transition(ctx, transactionID, "refund")
}

// transition applies a payment state transition. The shop treats repeated
// and illegal transitions as no-ops, which is what makes unconditional
// application safe upstream.
func (c *Client) transition(ctx context.Context, transactionID, action string) error {
	path := fmt.Sprintf("/internal/transaction/%s/%s", transactionID, action)
	if err := c.call(ctx, http.MethodPost, path, "", nil, nil); err != nil {
		return fmt.Errorf("failed to apply %s to transaction %s: %w", action, transactionID, err)
	}
	c.log.Info("transaction transition applied",
		zap.String("transaction_id", transactionID),
		zap.String("action", action),
	)
	return nil
}

func (c *Client) call(ctx context.Context, method, path, continuationToken string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if continuationToken != "" {
		req.Header.Set("X-Context-Token", continuationToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("shop api %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
