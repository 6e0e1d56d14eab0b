package config

import (
	"os"
	"testing"
)

func TestKeyringManager_SaveAndGetProviderKey(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	defer km.DeleteProviderKey("openai")

	testKey := "sk-test123456789"

	if err := km.SetProviderKey("openai", testKey); err != nil {
		t.Fatalf("Failed to save API key: %v", err)
	}

	retrievedKey, err := km.GetProviderKey("openai")
	if err != nil {
		t.Fatalf("Failed to get API key: %v", err)
	}

	if retrievedKey != testKey {
		t.Errorf("Expected key %s, got %s", testKey, retrievedKey)
	}
}

func TestKeyringManager_DeleteProviderKey(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	testKey := "sk-test-delete-123"

	if err := km.SetProviderKey("openai", testKey); err != nil {
		t.Fatalf("Failed to save API key: %v", err)
	}

	if err := km.DeleteProviderKey("openai"); err != nil {
		t.Fatalf("Failed to delete API key: %v", err)
	}

	retrievedKey, err := km.GetProviderKey("openai")
	if err != nil {
		t.Fatalf("Error getting API key after deletion: %v", err)
	}
	if retrievedKey != "" {
		t.Errorf("Expected empty key after deletion, got %s", retrievedKey)
	}
}

func TestKeyringManager_GetProviderKey_NotFound(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	km.DeleteProviderKey("anthropic")

	retrievedKey, err := km.GetProviderKey("anthropic")
	if err != nil {
		t.Fatalf("Expected no error for non-existent key, got: %v", err)
	}
	if retrievedKey != "" {
		t.Errorf("Expected empty string for non-existent key, got: %s", retrievedKey)
	}
}

func TestKeyringManager_SetProviderKey_EmptyKey(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	if err := km.SetProviderKey("openai", ""); err == nil {
		t.Error("Expected error when saving empty API key")
	}
}

func TestKeyringManager_SetProviderKey_UnknownProvider(t *testing.T) {
	km := NewKeyringManager()

	if err := km.SetProviderKey("cohere", "some-key"); err == nil {
		t.Error("Expected error for unknown provider")
	}
}

func TestKeyringManager_IsAvailable(t *testing.T) {
	km := NewKeyringManager()

	available := km.IsAvailable()

	if available {
		t.Log("Keychain is available")
	} else {
		t.Log("Keychain is not available (headless system or missing dependencies)")
	}
}

func TestGetAPIKeySource_EnvironmentVariable(t *testing.T) {
	km := NewKeyringManager()

	testKey := "sk-env-test-123"
	os.Setenv("OPENAI_API_KEY", testKey)
	defer os.Unsetenv("OPENAI_API_KEY")

	sourceInfo := km.GetAPIKeySource("openai")

	if sourceInfo.Source != "env" {
		t.Errorf("Expected source 'env', got '%s'", sourceInfo.Source)
	}
	if !sourceInfo.Secure {
		t.Error("Expected env var source to be marked as secure")
	}
}

func TestGetAPIKeySource_Keychain(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	os.Unsetenv("OPENAI_API_KEY")

	testKey := "sk-keychain-test-123"
	if err := km.SetProviderKey("openai", testKey); err != nil {
		t.Fatalf("Failed to save API key to keychain: %v", err)
	}
	defer km.DeleteProviderKey("openai")

	sourceInfo := km.GetAPIKeySource("openai")

	if sourceInfo.Source != "keychain" {
		t.Errorf("Expected source 'keychain', got '%s'", sourceInfo.Source)
	}
	if !sourceInfo.Secure {
		t.Error("Expected keychain source to be marked as secure")
	}
}

func TestGetAPIKeySource_None(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	os.Unsetenv("OPENAI_API_KEY")
	km.DeleteProviderKey("openai")

	sourceInfo := km.GetAPIKeySource("openai")

	if sourceInfo.Source != "none" && sourceInfo.Source != "env_file" {
		t.Errorf("Expected source 'none' or 'env_file', got '%s'", sourceInfo.Source)
	}
	if sourceInfo.Secure {
		t.Error("Expected unconfigured source to be marked as insecure")
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Standard API key",
			input:    "sk-proj-1234567890abcdefg",
			expected: "sk-proj...defg",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "(not set)",
		},
		{
			name:     "Short key",
			input:    "sk-test",
			expected: "***",
		},
		{
			name:     "Exact 12 chars",
			input:    "sk-test12345",
			expected: "sk-test...2345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := MaskAPIKey(tt.input)
			if result != tt.expected {
				t.Errorf("MaskAPIKey(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestKeyringManager_RoundTrip(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	km.DeleteProviderKey("openai")

	keys := []string{
		"sk-test-round-trip-1",
		"sk-test-round-trip-2",
		"sk-test-round-trip-3",
	}

	for _, key := range keys {
		if err := km.SetProviderKey("openai", key); err != nil {
			t.Fatalf("Failed to save key %s: %v", key, err)
		}

		retrieved, err := km.GetProviderKey("openai")
		if err != nil {
			t.Fatalf("Failed to get key: %v", err)
		}

		if retrieved != key {
			t.Errorf("Round trip failed: expected %s, got %s", key, retrieved)
		}
	}

	km.DeleteProviderKey("openai")
}

func TestKeyringManager_DeleteNonExistentKey(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping test")
	}

	km.DeleteProviderKey("anthropic")

	if err := km.DeleteProviderKey("anthropic"); err != nil {
		t.Errorf("Expected no error when deleting non-existent key, got: %v", err)
	}
}

// TestKeyringIntegration is a comprehensive integration test covering the
// precedence chain env > keychain > unconfigured, for a single provider.
func TestKeyringIntegration(t *testing.T) {
	km := NewKeyringManager()

	if !km.IsAvailable() {
		t.Skip("Keychain not available, skipping integration test")
	}

	oldEnv := os.Getenv("OPENAI_API_KEY")
	os.Unsetenv("OPENAI_API_KEY")
	defer func() {
		if oldEnv != "" {
			os.Setenv("OPENAI_API_KEY", oldEnv)
		}
	}()

	km.DeleteProviderKey("openai")
	defer km.DeleteProviderKey("openai")

	sourceInfo := km.GetAPIKeySource("openai")
	if sourceInfo.Source != "none" && sourceInfo.Source != "env_file" {
		t.Errorf("Step 1: Expected source 'none' or 'env_file', got '%s'", sourceInfo.Source)
	}

	testKey := "sk-integration-test-key"
	if err := km.SetProviderKey("openai", testKey); err != nil {
		t.Fatalf("Step 2: Failed to save key: %v", err)
	}

	sourceInfo = km.GetAPIKeySource("openai")
	if sourceInfo.Source != "keychain" {
		t.Errorf("Step 3: Expected source 'keychain', got '%s'", sourceInfo.Source)
	}

	os.Setenv("OPENAI_API_KEY", "sk-env-override")
	sourceInfo = km.GetAPIKeySource("openai")
	if sourceInfo.Source != "env" {
		t.Errorf("Step 4: Expected source 'env', got '%s'", sourceInfo.Source)
	}

	os.Unsetenv("OPENAI_API_KEY")
	sourceInfo = km.GetAPIKeySource("openai")
	if sourceInfo.Source != "keychain" {
		t.Errorf("Step 5: Expected source 'keychain', got '%s'", sourceInfo.Source)
	}

	retrieved, err := km.GetProviderKey("openai")
	if err != nil {
		t.Fatalf("Step 6: Failed to get key: %v", err)
	}
	if retrieved != testKey {
		t.Errorf("Step 6: Expected key %s, got %s", testKey, retrieved)
	}

	if err := km.DeleteProviderKey("openai"); err != nil {
		t.Fatalf("Step 7: Failed to delete key: %v", err)
	}

	sourceInfo = km.GetAPIKeySource("openai")
	if sourceInfo.Source != "none" && sourceInfo.Source != "env_file" {
		t.Errorf("Step 8: Expected source 'none' or 'env_file', got '%s'", sourceInfo.Source)
	}
}
