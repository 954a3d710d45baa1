package vault

import (
	"fmt"

	"github.com/hashicorp/vault/api"
)

// SecretManager reads credentials from Vault's KV v2 engine. It is optional:
// without Vault the service runs on statically configured credentials.
type SecretManager struct {
	client *api.Client
}

func NewSecretManager(address, token string) (*SecretManager, error) {
	config := api.DefaultConfig()
	config.Address = address

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}
	client.SetToken(token)

	return &SecretManager{client: client}, nil
}

// GetDatabaseURL reads the Postgres connection string from
// secret/data/ivy/database, used when the config leaves the URL empty.
func (sm *SecretManager) GetDatabaseURL() (string, error) {
	data, err := sm.readKV("secret/data/ivy/database")
	if err != nil {
		return "", err
	}
	url, ok := data["connection_string"].(string)
	if !ok || url == "" {
		return "", fmt.Errorf("no connection_string in database secret")
	}
	return url, nil
}

// TenantSecrets holds the provider credentials stored per tenant under
// secret/data/ivy/tenants/<tenantID>.
type TenantSecrets struct {
	APIKey        string
	WebhookSecret string
}

func (sm *SecretManager) GetTenantSecrets(tenantID string) (*TenantSecrets, error) {
	data, err := sm.readKV("secret/data/ivy/tenants/" + tenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
	}

	out := &TenantSecrets{}
	if v, ok := data["api_key"].(string); ok {
		out.APIKey = v
	}
	if v, ok := data["webhook_secret"].(string); ok {
		out.WebhookSecret = v
	}
	if out.APIKey == "" || out.WebhookSecret == "" {
		return nil, fmt.Errorf("incomplete secrets for tenant %s", tenantID)
	}
	return out, nil
}

// readKV unwraps the KV v2 envelope, where the payload nests under "data".
func (sm *SecretManager) readKV(path string) (map[string]interface{}, error) {
	secret, err := sm.client.Logical().Read(path)
	if err != nil {
		return nil, err
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no secret at %s", path)
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("malformed secret payload at %s", path)
	}
	return data, nil
}
