package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

const keychainService = "solace"

// Keychain abstracts the platform secret store for testing.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

type platformKeychain struct{}

// NewKeychain returns the platform secret store: macOS Keychain via the
// security CLI, or a mode-0600 secrets file elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token protecting the local API, generating
// and persisting one on first use.
func GetAPIToken(kc Keychain) (string, error) {
	token, err := kc.Get(keychainService, "api_token")
	if err == nil && token != "" {
		return token, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	token = hex.EncodeToString(buf)
	if err := kc.Set(keychainService, "api_token", token); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return token, nil
}

// GetEncryptionKey returns the 32-byte key used for message encryption,
// generating and persisting one on first use. The key never leaves the
// local secret store.
func GetEncryptionKey(kc Keychain) ([]byte, error) {
	stored, err := kc.Get(keychainService, "message_encryption_key")
	if err == nil && stored != "" {
		key, err := base64.StdEncoding.DecodeString(stored)
		if err != nil {
			return nil, fmt.Errorf("decoding stored encryption key: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("stored encryption key has invalid length %d", len(key))
		}
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}
	if err := kc.Set(keychainService, "message_encryption_key", base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("storing encryption key: %w", err)
	}
	return key, nil
}

// GetSessionSigningKey returns the HMAC key for session tokens, generating
// and persisting one on first use.
func GetSessionSigningKey(kc Keychain) ([]byte, error) {
	stored, err := kc.Get(keychainService, "session_signing_key")
	if err == nil && stored != "" {
		key, err := base64.StdEncoding.DecodeString(stored)
		if err != nil {
			return nil, fmt.Errorf("decoding stored signing key: %w", err)
		}
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}
	if err := kc.Set(keychainService, "session_signing_key", base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("storing signing key: %w", err)
	}
	return key, nil
}
