package merchant

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/gateway"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
)

// UpdateRequest registers this deployment's callback URLs with the provider
// so webhooks and express round-trips reach the right endpoints after an
// install or a domain change.
type UpdateRequest struct {
	WebhookURL      string `json:"webhookUrl"`
	SuccessURL      string `json:"successCallbackUrl"`
	ErrorURL        string `json:"errorCallbackUrl"`
	QuoteURL        string `json:"quoteCallbackUrl"`
	CompleteURL     string `json:"completeCallbackUrl"`
	PrivacyURL      string `json:"shopPrivacyPolicyUrl,omitempty"`
	TermsURL        string `json:"shopTermsOfServiceUrl,omitempty"`
	DisplayShopName string `json:"displayShopName,omitempty"`
}

// Service pushes merchant-level settings to the provider.
type Service struct {
	client *gateway.Client
	log    *zap.Logger
}

func NewService(client *gateway.Client, log *zap.Logger) *Service {
	return &Service{client: client, log: log}
}

// RegisterCallbacks derives the callback URLs from the shop's public base
// URL and pushes them via merchant/update.
func (s *Service) RegisterCallbacks(ctx context.Context, tenant domain.TenantConfig, shopBaseURL string) error {
	base := strings.TrimSuffix(shopBaseURL, "/")
	req := UpdateRequest{
		WebhookURL:  base + "/ivypayment/update-transaction",
		SuccessURL:  base + "/ivypayment/finalize-transaction",
		ErrorURL:    base + "/ivypayment/failed-transaction",
		QuoteURL:    base + "/ivyexpress/callback",
		CompleteURL: base + "/ivyexpress/confirm",
	}

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := s.client.Send(ctx, gateway.EndpointMerchantUpdate, tenant, body); err != nil {
		return err
	}

	s.log.Info("merchant callbacks registered",
		zap.String("tenant", tenant.TenantID),
		zap.String("base_url", base),
	)
	return nil
}
