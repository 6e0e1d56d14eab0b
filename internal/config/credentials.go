package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rohankatakam/graphrag/internal/errors"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// CredentialManager handles credential retrieval with priority chain
// Priority: Environment Variables -> Keychain -> Config File -> Interactive Prompt
type CredentialManager struct {
	mode       DeploymentMode
	keyring    *KeyringManager
	configPath string
}

// Credentials holds all user credentials for the supported Completion
// providers, keyed by provider name.
type Credentials struct {
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
}

// NewCredentialManager creates a new credential manager
func NewCredentialManager() *CredentialManager {
	mode := DetectMode()
	homeDir, _ := os.UserHomeDir()
	configPath := filepath.Join(homeDir, ".config", "graphrag", "config.yaml")

	return &CredentialManager{
		mode:       mode,
		keyring:    NewKeyringManager(),
		configPath: configPath,
	}
}

// envVarFor returns the canonical environment variable name for a provider.
func envVarFor(provider string) (string, error) {
	switch provider {
	case "openai", "":
		return "OPENAI_API_KEY", nil
	case "anthropic":
		return "ANTHROPIC_API_KEY", nil
	default:
		return "", fmt.Errorf("unknown completion provider %q", provider)
	}
}

// credentialField returns the stored field for a provider out of a loaded
// Credentials struct.
func credentialField(creds *Credentials, provider string) string {
	if provider == "anthropic" {
		return creds.AnthropicAPIKey
	}
	return creds.OpenAIAPIKey
}

// GetCompletionAPIKey retrieves the API key for the named Completion
// provider ("openai" or "anthropic") using the priority chain: environment
// variable, OS keychain, config file, interactive prompt.
func (cm *CredentialManager) GetCompletionAPIKey(provider string) (string, error) {
	envVar, err := envVarFor(provider)
	if err != nil {
		return "", err
	}

	// 1. Environment variable (highest priority)
	if key := os.Getenv(envVar); key != "" {
		return key, nil
	}

	// 2. Keychain (macOS/Linux)
	if cm.keyring.IsAvailable() {
		if key, err := cm.keyring.GetProviderKey(provider); err == nil && key != "" {
			return key, nil
		}
	}

	// 3. Config file (~/.config/graphrag/config.yaml)
	if creds, err := cm.loadConfigFile(); err == nil {
		if key := credentialField(creds, provider); key != "" {
			return key, nil
		}
	}

	// 4. Interactive prompt (only in packaged mode, not in CI)
	if cm.mode.AllowsInteractivePrompts() && isInteractive() {
		fmt.Printf("\n%s API key not found.\n", provider)
		return cm.promptForAPIKey(provider)
	}

	// Not found anywhere
	return "", errors.ConfigErrorf(
		"%s not found. Set it via:\n"+
			"  1. Environment variable: export %s=...\n"+
			"  2. OS keychain (service \"graphrag\")\n"+
			"  3. Config file: %s", envVar, envVar, cm.configPath)
}

// SaveCredentials saves credentials to keychain (preferred) or config file (fallback)
func (cm *CredentialManager) SaveCredentials(creds Credentials) error {
	if cm.keyring.IsAvailable() {
		if creds.OpenAIAPIKey != "" {
			if err := cm.keyring.SetProviderKey("openai", creds.OpenAIAPIKey); err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
					"failed to save OpenAI API key to keychain")
			}
		}
		if creds.AnthropicAPIKey != "" {
			if err := cm.keyring.SetProviderKey("anthropic", creds.AnthropicAPIKey); err != nil {
				return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
					"failed to save Anthropic API key to keychain")
			}
		}
		return nil
	}

	return cm.saveConfigFile(creds)
}

// loadConfigFile loads credentials from config file
func (cm *CredentialManager) loadConfigFile() (*Credentials, error) {
	data, err := os.ReadFile(cm.configPath)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	return &creds, nil
}

// saveConfigFile saves credentials to config file
func (cm *CredentialManager) saveConfigFile(creds Credentials) error {
	dir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	if err := os.WriteFile(cm.configPath, data, 0600); err != nil {
		return err
	}

	return nil
}

// promptForAPIKey prompts the user for a provider's API key.
func (cm *CredentialManager) promptForAPIKey(provider string) (string, error) {
	fmt.Printf("Enter %s API Key: ", provider)
	key, err := cm.readSecurely()
	if err != nil {
		return "", err
	}

	if key == "" {
		return "", errors.ConfigErrorf("%s API key is required", provider)
	}

	if provider == "openai" && !strings.HasPrefix(key, "sk-") {
		return "", errors.ValidationError("OpenAI API key should start with 'sk-'")
	}

	if cm.keyring.IsAvailable() {
		if err := cm.keyring.SetProviderKey(provider, key); err == nil {
			fmt.Println("saved to keychain")
		}
	} else {
		creds := Credentials{}
		if provider == "anthropic" {
			creds.AnthropicAPIKey = key
		} else {
			creds.OpenAIAPIKey = key
		}
		if err := cm.saveConfigFile(creds); err == nil {
			fmt.Printf("saved to %s\n", cm.configPath)
		}
	}

	return key, nil
}

// readSecurely reads a password/token from stdin without echoing
func (cm *CredentialManager) readSecurely() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		bytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytes)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// isInteractive returns true if stdin is a terminal (not piped)
func isInteractive() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// GetMode returns the current deployment mode
func (cm *CredentialManager) GetMode() DeploymentMode {
	return cm.mode
}

// GetConfigPath returns the path to the config file
func (cm *CredentialManager) GetConfigPath() string {
	return cm.configPath
}

// HasCredentials checks if a provider's credentials are configured.
func (cm *CredentialManager) HasCredentials(provider string) bool {
	envVar, err := envVarFor(provider)
	if err != nil {
		return false
	}
	if os.Getenv(envVar) != "" {
		return true
	}

	if cm.keyring.IsAvailable() {
		if key, err := cm.keyring.GetProviderKey(provider); err == nil && key != "" {
			return true
		}
	}

	if creds, err := cm.loadConfigFile(); err == nil {
		if credentialField(creds, provider) != "" {
			return true
		}
	}

	return false
}
