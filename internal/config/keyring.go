package config

import (
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "PlanetTerp"

	// KeyringDBPasswordItem is the key for the database password
	KeyringDBPasswordItem = "db-password"
)

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct{}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{}
}

// SaveDBPassword stores the database password in the OS keychain:
// - macOS: Keychain Access.app → "PlanetTerp" → "db-password"
// - Windows: Credential Manager → "PlanetTerp"
// - Linux: Secret Service (requires libsecret)
func (km *KeyringManager) SaveDBPassword(password string) error {
	if password == "" {
		return fmt.Errorf("database password cannot be empty")
	}

	if err := keyring.Set(KeyringService, KeyringDBPasswordItem, password); err != nil {
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}
	return nil
}

// GetDBPassword retrieves the database password from the OS keychain
func (km *KeyringManager) GetDBPassword() (string, error) {
	password, err := keyring.Get(KeyringService, KeyringDBPasswordItem)
	if err == keyring.ErrNotFound {
		// Not an error - just not set yet
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}
	return password, nil
}

// DeleteDBPassword removes the database password from the OS keychain
func (km *KeyringManager) DeleteDBPassword() error {
	err := keyring.Delete(KeyringService, KeyringDBPasswordItem)
	if err == keyring.ErrNotFound {
		// Already deleted, not an error
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}
	return nil
}

// IsAvailable checks if OS keychain is available
// Returns false on headless systems (CI/CD) where keychain isn't available
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")

	// "not found" means the keychain answered
	if err == keyring.ErrNotFound {
		return true
	}
	return err == nil
}

// MaskSecret masks a secret for display, keeping its last 2 characters
func MaskSecret(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) < 8 {
		return "***"
	}
	return "******" + secret[len(secret)-2:]
}
