package tenant

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wizmogmbh/ivy-gateway/internal/adapter/vault"
	"github.com/wizmogmbh/ivy-gateway/internal/domain"
	"github.com/wizmogmbh/ivy-gateway/internal/ports"
)

const cacheTTL = 5 * time.Minute

// Source resolves per-tenant provider configuration. Static entries come from
// the config file; credentials can optionally be overridden from Vault.
// Resolved configs are cached because every inbound webhook needs one.
type Source struct {
	static  map[string]domain.TenantConfig
	secrets *vault.SecretManager
	cache   ports.Cache
	log     *zap.Logger
}

func NewSource(static map[string]domain.TenantConfig, secrets *vault.SecretManager, cache ports.Cache, log *zap.Logger) *Source {
	return &Source{
		static:  static,
		secrets: secrets,
		cache:   cache,
		log:     log,
	}
}

func (s *Source) Resolve(ctx context.Context, tenantID string) (*domain.TenantConfig, error) {
	cacheKey := "tenant:" + tenantID

	if cached, err := s.cache.Get(ctx, cacheKey); err == nil && cached != "" {
		var cfg domain.TenantConfig
		if err := json.Unmarshal([]byte(cached), &cfg); err == nil {
			return &cfg, nil
		}
		// Unreadable cache entry, fall through and rebuild it.
		s.cache.Delete(ctx, cacheKey)
	}

	base, ok := s.static[tenantID]
	if !ok {
		return nil, fmt.Errorf("unknown tenant %s", tenantID)
	}
	cfg := base
	cfg.TenantID = tenantID

	if s.secrets != nil {
		ts, err := s.secrets.GetTenantSecrets(tenantID)
		if err != nil {
			s.log.Warn("vault lookup failed, using static credentials",
				zap.String("tenant", tenantID),
				zap.Error(err),
			)
		} else {
			cfg.APIKey = ts.APIKey
			cfg.WebhookSecret = ts.WebhookSecret
		}
	}

	if cfg.APIKey == "" || cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("tenant %s has no credentials configured", tenantID)
	}

	if raw, err := json.Marshal(cfg); err == nil {
		if err := s.cache.Set(ctx, cacheKey, raw, cacheTTL); err != nil {
			s.log.Debug("failed to cache tenant config", zap.String("tenant", tenantID), zap.Error(err))
		}
	}

	return &cfg, nil
}

// Invalidate drops the cached config, used after credential rotation.
func (s *Source) Invalidate(ctx context.Context, tenantID string) error {
	return s.cache.Delete(ctx, "tenant:"+tenantID)
}
