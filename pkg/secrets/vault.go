package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"acm-chatbot/backend/pkg/cache"
	"acm-chatbot/backend/pkg/config"
	"acm-chatbot/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

// Common errors
var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for Vault client
type VaultConfig struct {
	Address    string
	Token      string
	Namespace  string
	Mount      string
	Path       string
	Timeout    time.Duration
	MaxRetries int
	CacheTTL   time.Duration
	Enabled    bool
}

// VaultConfigFrom builds a VaultConfig from the application config.
func VaultConfigFrom(cfg *config.Config) VaultConfig {
	return VaultConfig{
		Address:    cfg.Vault.Addr,
		Token:      cfg.Vault.Token,
		Namespace:  os.Getenv("VAULT_NAMESPACE"),
		Mount:      cfg.Vault.Mount,
		Path:       cfg.Vault.Path,
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		CacheTTL:   5 * time.Minute,
		Enabled:    cfg.Vault.Enabled,
	}
}

// VaultManager reads secrets from a Vault KV v2 mount and falls back to
// environment variables. Values are cached for CacheTTL.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	cache  *cache.Cache[string]
	log    *logger.Logger
}

// NewVaultManager creates a new Vault manager instance. With Vault disabled
// only the environment is consulted.
func NewVaultManager(cfg VaultConfig, log *logger.Logger) (*VaultManager, error) {
	if log == nil {
		log = logger.GetGlobal()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}

	m := &VaultManager{
		config: cfg,
		cache:  cache.New[string](cache.Options{DefaultExpiration: cfg.CacheTTL}),
		log:    log,
	}
	if !cfg.Enabled {
		return m, nil
	}

	if cfg.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Token == "" {
		return nil, ErrNoVaultToken
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = cfg.Address
	vaultConfig.Timeout = cfg.Timeout
	vaultConfig.MaxRetries = cfg.MaxRetries

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	m.client = client

	return m, nil
}

// GetSecret retrieves a secret from Vault, with fallback to environment variable
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := m.cache.Get(key); ok {
		return value, nil
	}

	if m.client == nil {
		return m.getFromEnvironment(key)
	}

	value, err := m.getFromVault(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSecretNotFound) {
			m.log.Debug("Secret not found in Vault, falling back to environment", "key", key)
			return m.getFromEnvironment(key)
		}
		return "", err
	}

	m.cache.Set(key, value)
	return value, nil
}

// GetSecretWithDefault retrieves a secret with a default value if not found
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("Failed to get secret, using default value", "key", key, "error", err.Error())
		}
		return defaultValue
	}
	return value
}

// Close releases the secret cache.
func (m *VaultManager) Close() {
	m.cache.Close()
}

func (m *VaultManager) getFromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.Path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		m.log.Error("Failed to read secret from Vault", "path", m.config.Path, "error", err.Error())
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	value, ok := secret.Data[key].(string)
	if !ok {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// getFromEnvironment maps a key such as "jwt_secret" to JWT_SECRET.
func (m *VaultManager) getFromEnvironment(key string) (string, error) {
	envKey := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))

	value := os.Getenv(envKey)
	if value == "" {
		return "", ErrSecretNotFound
	}

	m.cache.Set(key, value)
	return value, nil
}
