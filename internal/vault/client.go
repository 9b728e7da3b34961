// Package vault stores MT5 broker terminal credentials (investor/login
// password, server) in HashiCorp Vault, used optionally during account
// bootstrap when an operator wants the core able to re-attach an EA
// programmatically. Disabled by default: the ingestion surface never needs
// broker credentials for its own contract (connect/heartbeat/tick/trade
// endpoints only ever see an account number and a server-issued api-key).
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/MikeHotel0815/ngTradingBot-sub001/config"

	"github.com/hashicorp/vault/api"
)

// BrokerCredential is the MT5 terminal login stored per account.
type BrokerCredential struct {
	AccountNumber int64  `json:"account_number"`
	Login         string `json:"login"`
	Password      string `json:"password"`
	Server        string `json:"server"`
	IsDemo        bool   `json:"is_demo"`
}

// Client wraps the HashiCorp Vault client with an in-memory fallback cache
// used both when Vault is disabled and to avoid a round trip per read.
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]*BrokerCredential
	cacheEnabled bool
}

// NewClient creates a Vault client. When cfg.Enabled is false, every
// operation degrades to the in-memory cache — the common path for
// deployments that never configure Vault.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg, cache: make(map[string]*BrokerCredential), cacheEnabled: true}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		if err := vaultConfig.ConfigureTLS(&api.TLSConfig{CACert: cfg.CACert}); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg, cache: make(map[string]*BrokerCredential), cacheEnabled: true}, nil
}

// ArchiveAPIKey satisfies internal/ingestion.CredentialVault: the MT5 connect
// contract never hands this service a broker login/password, so the
// login/password/server triple BrokerCredential was built for is repurposed
// here to archive the one secret ingestion actually issues — the EA's api
// key is only ever returned in the connect response, never re-readable from
// its stored hash, so a Vault-backed account recovers it here instead of
// reissuing one.
func (c *Client) ArchiveAPIKey(ctx context.Context, accountNumber int64, brokerLabel, apiKey string) error {
	return c.StoreCredential(ctx, BrokerCredential{
		AccountNumber: accountNumber,
		Login:         fmt.Sprintf("%d", accountNumber),
		Password:      apiKey,
		Server:        brokerLabel,
	})
}

// StoreCredential stores a broker login for an account.
func (c *Client) StoreCredential(ctx context.Context, cred BrokerCredential) error {
	key := c.cacheKey(cred.AccountNumber)
	if !c.config.Enabled {
		c.mu.Lock()
		c.cache[key] = &cred
		c.mu.Unlock()
		return nil
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"login":    cred.Login,
			"password": cred.Password,
			"server":   cred.Server,
			"is_demo":  cred.IsDemo,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.secretPath(cred.AccountNumber), secretData); err != nil {
		return fmt.Errorf("failed to store broker credential in vault: %w", err)
	}

	c.mu.Lock()
	c.cache[key] = &cred
	c.mu.Unlock()
	return nil
}

// GetCredential retrieves a broker login for an account.
func (c *Client) GetCredential(ctx context.Context, accountNumber int64) (*BrokerCredential, error) {
	key := c.cacheKey(accountNumber)
	if c.cacheEnabled {
		c.mu.RLock()
		cached, ok := c.cache[key]
		c.mu.RUnlock()
		if ok {
			return cached, nil
		}
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("credential not found and vault is disabled")
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.secretPath(accountNumber))
	if err != nil {
		return nil, fmt.Errorf("failed to read broker credential from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("broker credential not found")
	}
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	cred := &BrokerCredential{
		AccountNumber: accountNumber,
		Login:         getString(data, "login"),
		Password:      getString(data, "password"),
		Server:        getString(data, "server"),
		IsDemo:        getBool(data, "is_demo"),
	}

	c.mu.Lock()
	c.cache[key] = cred
	c.mu.Unlock()
	return cred, nil
}

// DeleteCredential removes a broker login from Vault and the cache.
func (c *Client) DeleteCredential(ctx context.Context, accountNumber int64) error {
	c.mu.Lock()
	delete(c.cache, c.cacheKey(accountNumber))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}
	if _, err := c.client.Logical().DeleteWithContext(ctx, c.metadataPath(accountNumber)); err != nil {
		return fmt.Errorf("failed to delete broker credential from vault: %w", err)
	}
	return nil
}

// RotateCredential replaces an account's stored credential.
func (c *Client) RotateCredential(ctx context.Context, cred BrokerCredential) error {
	return c.StoreCredential(ctx, cred)
}

// IsEnabled reports whether Vault is configured as the backing store (vs.
// the in-memory fallback).
func (c *Client) IsEnabled() bool { return c.config.Enabled }

// Health checks the Vault connection; a no-op when Vault is disabled.
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

func (c *Client) secretPath(accountNumber int64) string {
	return fmt.Sprintf("%s/data/%s/%d", c.config.MountPath, c.config.SecretPath, accountNumber)
}

func (c *Client) metadataPath(accountNumber int64) string {
	return fmt.Sprintf("%s/metadata/%s/%d", c.config.MountPath, c.config.SecretPath, accountNumber)
}

func (c *Client) cacheKey(accountNumber int64) string {
	return strconv.FormatInt(accountNumber, 10)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true"
		case json.Number:
			n, _ := v.Int64()
			return n != 0
		}
	}
	return false
}

// NewMockClient returns a disabled, cache-only client for tests.
func NewMockClient() *Client {
	return &Client{config: config.VaultConfig{Enabled: false}, cache: make(map[string]*BrokerCredential), cacheEnabled: true}
}
