package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name in the OS keychain
	KeyringService = "graphrag"

	// KeyringUser is the user identifier for credentials
	KeyringUser = "default"

	// KeyringOpenAIKeyItem is the key for the OpenAI Completion/Embedding API key
	KeyringOpenAIKeyItem = "openai-api-key"

	// KeyringAnthropicKeyItem is the key for the Anthropic Completion API key
	KeyringAnthropicKeyItem = "anthropic-api-key"
)

// keyringItemFor maps a completion provider name to its keychain item.
func keyringItemFor(provider string) (string, error) {
	switch provider {
	case "openai", "":
		return KeyringOpenAIKeyItem, nil
	case "anthropic":
		return KeyringAnthropicKeyItem, nil
	default:
		return "", fmt.Errorf("unknown completion provider %q", provider)
	}
}

// KeyringManager handles secure credential storage in OS keychain
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager creates a new keyring manager
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{
		logger: slog.Default().With("component", "keyring"),
	}
}

// SetProviderKey stores a provider's API key securely in the OS keychain.
// - macOS: Keychain Access.app -> "graphrag" -> "<provider>-api-key"
// - Windows: Credential Manager -> "graphrag"
// - Linux: Secret Service (requires libsecret)
func (km *KeyringManager) SetProviderKey(provider, apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	item, err := keyringItemFor(provider)
	if err != nil {
		return err
	}

	if err := keyring.Set(KeyringService, item, apiKey); err != nil {
		km.logger.Error("failed to save api key to keychain", "provider", provider, "error", err)
		return fmt.Errorf("failed to save to OS keychain: %w", err)
	}

	km.logger.Info("api key saved to keychain", "service", KeyringService, "provider", provider)
	return nil
}

// GetProviderKey retrieves a provider's API key from the OS keychain.
func (km *KeyringManager) GetProviderKey(provider string) (string, error) {
	item, err := keyringItemFor(provider)
	if err != nil {
		return "", err
	}

	apiKey, err := keyring.Get(KeyringService, item)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to get api key from keychain", "provider", provider, "error", err)
		return "", fmt.Errorf("failed to read from OS keychain: %w", err)
	}

	km.logger.Debug("api key retrieved from keychain", "provider", provider)
	return apiKey, nil
}

// DeleteProviderKey removes a provider's API key from the OS keychain.
func (km *KeyringManager) DeleteProviderKey(provider string) error {
	item, err := keyringItemFor(provider)
	if err != nil {
		return err
	}

	err = keyring.Delete(KeyringService, item)
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete api key from keychain", "provider", provider, "error", err)
		return fmt.Errorf("failed to delete from OS keychain: %w", err)
	}

	km.logger.Info("api key deleted from keychain", "provider", provider)
	return nil
}

// IsAvailable checks if OS keychain is available. Returns false on headless
// systems (CI/CD) where keychain isn't available.
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(KeyringService, "test-availability")

	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}

	return true
}

// KeySourceInfo returns information about where an API key is stored
type KeySourceInfo struct {
	Source      string // "keychain", "config", "env", "env_file", "none"
	Secure      bool   // true if stored securely (keychain or env var in CI/CD)
	Recommended string // recommendation if not optimal
}

// GetAPIKeySource determines where a provider's API key is coming from.
func (km *KeyringManager) GetAPIKeySource(provider string) KeySourceInfo {
	envVar := "OPENAI_API_KEY"
	if provider == "anthropic" {
		envVar = "ANTHROPIC_API_KEY"
	}

	if os.Getenv(envVar) != "" {
		return KeySourceInfo{
			Source:      "env",
			Secure:      true,
			Recommended: fmt.Sprintf("Using %s (good for CI/CD)", envVar),
		}
	}

	if key, _ := km.GetProviderKey(provider); key != "" {
		return KeySourceInfo{
			Source:      "keychain",
			Secure:      true,
			Recommended: "Stored securely in OS keychain",
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		return KeySourceInfo{
			Source:      "env_file",
			Secure:      false,
			Recommended: "Using .env file (OK for local dev, consider keychain for packaged installs)",
		}
	}

	return KeySourceInfo{
		Source:      "none",
		Secure:      false,
		Recommended: "No API key configured. Set the provider's API key environment variable or store it in the OS keychain",
	}
}

// MaskAPIKey masks an API key for display.
// Shows first 7 chars and last 4 chars: "sk-proj...c123"
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "(not set)"
	}
	if len(apiKey) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", apiKey[:7], apiKey[len(apiKey)-4:])
}
