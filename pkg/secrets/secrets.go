package secrets

import (
	"context"
	"errors"
	"sync"

	"acm-chatbot/backend/pkg/config"
	"acm-chatbot/backend/pkg/logger"
)

// Manager provides access to secrets from various sources
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret with a default value if not found
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// Keys of the secrets the service reads.
const (
	KeyDatabasePassword  = "db_password"
	KeyJWTSecret         = "jwt_secret"
	KeyAdminPasswordHash = "admin_password_hash"
)

var (
	defaultManager Manager
	managerMu      sync.RWMutex
)

// ErrManagerNotInitialized is returned before Init or SetManager.
var ErrManagerNotInitialized = errors.New("secrets manager not initialized")

// Init creates the default manager from cfg.
func Init(cfg *config.Config, log *logger.Logger) (Manager, error) {
	manager, err := NewVaultManager(VaultConfigFrom(cfg), log)
	if err != nil {
		return nil, err
	}
	SetManager(manager)
	return manager, nil
}

// GetSecret retrieves a secret from the default manager
func GetSecret(ctx context.Context, key string) (string, error) {
	managerMu.RLock()
	m := defaultManager
	managerMu.RUnlock()
	if m == nil {
		return "", ErrManagerNotInitialized
	}
	return m.GetSecret(ctx, key)
}

// SetManager replaces the default manager
func SetManager(manager Manager) {
	managerMu.Lock()
	defer managerMu.Unlock()
	defaultManager = manager
}

// ApplyToConfig overrides credentials in cfg with values held by m. Values
// already present in cfg are kept when m has none.
func ApplyToConfig(ctx context.Context, m Manager, cfg *config.Config) {
	cfg.Database.Password = m.GetSecretWithDefault(ctx, KeyDatabasePassword, cfg.Database.Password)
	cfg.JWT.Secret = m.GetSecretWithDefault(ctx, KeyJWTSecret, cfg.JWT.Secret)
	cfg.Admin.PasswordHash = m.GetSecretWithDefault(ctx, KeyAdminPasswordHash, cfg.Admin.PasswordHash)
}
