package security

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// cipherVersionPrefix tags the envelope format so the scheme can evolve
// without breaking stored ciphertext.
const cipherVersionPrefix = "v1:"

// Cipher provides authenticated message encryption keyed by a locally held
// 32-byte secret. The envelope is "v1:" + base64(nonce || ciphertext).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher creates a Cipher from a 32-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherVersionPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope produced by Encrypt. Any tampering, truncation,
// or key mismatch fails closed with ErrCryptoFailure — corrupted plaintext
// is never returned.
func (c *Cipher) Decrypt(envelope string) (string, error) {
	if !strings.HasPrefix(envelope, cipherVersionPrefix) {
		return "", fmt.Errorf("%w: unknown envelope format", ErrCryptoFailure)
	}
	sealed, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(envelope, cipherVersionPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrCryptoFailure)
	}
	if len(sealed) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: envelope too short", ErrCryptoFailure)
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed", ErrCryptoFailure)
	}
	return string(plaintext), nil
}
