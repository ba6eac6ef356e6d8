// Package crypto provides AES-256-GCM authenticated encryption for registry
// credential secrets stored in tenant schemas. Each ciphertext is bound to the
// tenant that wrote it through GCM's associated data, so a secret copied into
// another tenant's table does not decrypt there.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

var (
	// ErrKeyLengthInvalid is returned when a master key is not exactly 32 bytes (required for AES-256).
	ErrKeyLengthInvalid = errors.New("crypto: key must be exactly 32 bytes for AES-256")
	// ErrKeyMissing is returned when no encryption key is configured.
	ErrKeyMissing = errors.New("crypto: encryption key is not configured")
	// ErrCiphertextCorrupted is returned when the ciphertext fails base64 decoding or is too short to contain a valid nonce.
	ErrCiphertextCorrupted = errors.New("crypto: ciphertext is corrupted or tampered")
	// ErrDecryptionFailed is returned when AES-GCM authentication fails: a wrong key, tampering, or the wrong binding.
	ErrDecryptionFailed = errors.New("crypto: decryption operation failed")
	// ErrSaltTooShort is returned when the provided salt is fewer than 16 bytes.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
)

// passphraseSalt is used when the configured key is a passphrase rather than
// raw key material. Changing it makes every stored secret unreadable.
var passphraseSalt = []byte("resource-catalog/registry-credentials/v1")

const passphraseIterations = 210000

// TokenCipher encrypts and decrypts credential secrets
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher with a 32-byte master key
func NewTokenCipher(masterKey []byte) (*TokenCipher, error) {
	if len(masterKey) != 32 {
		return nil, ErrKeyLengthInvalid
	}
	keyCopy := make([]byte, 32)
	copy(keyCopy, masterKey)

	block, err := aes.NewCipher(keyCopy)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{aead: aead}, nil
}

// DeriveTokenCipher creates a cipher by deriving a key from a passphrase
func DeriveTokenCipher(passphrase string, salt []byte, iterations int) (*TokenCipher, error) {
	if len(salt) < 16 {
		return nil, ErrSaltTooShort
	}
	if iterations < 10000 {
		iterations = 100000
	}
	derivedKey := pbkdf2.Key([]byte(passphrase), salt, iterations, 32, sha256.New)
	return NewTokenCipher(derivedKey)
}

// NewTokenCipherFromConfig builds a cipher from the configured encryption key.
// A 64-character hex string or a base64 string decoding to 32 bytes is used as
// the key directly; anything else is treated as a passphrase.
func NewTokenCipherFromConfig(key string) (*TokenCipher, error) {
	if key == "" {
		return nil, ErrKeyMissing
	}
	if len(key) == 64 {
		if raw, err := hex.DecodeString(key); err == nil {
			return NewTokenCipher(raw)
		}
	}
	if raw, err := base64.StdEncoding.DecodeString(key); err == nil && len(raw) == 32 {
		return NewTokenCipher(raw)
	}
	return DeriveTokenCipher(key, passphraseSalt, passphraseIterations)
}

// Seal encrypts plaintext bound to binding and returns a base64-encoded
// ciphertext. The same binding must be passed to Open.
func (tc *TokenCipher) Seal(plaintext, binding string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, tc.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := tc.aead.Seal(nonce, nonce, []byte(plaintext), []byte(binding))
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a base64-encoded ciphertext sealed with the same binding
func (tc *TokenCipher) Open(encodedCiphertext, binding string) (string, error) {
	if encodedCiphertext == "" {
		return "", nil
	}

	ciphertext, err := base64.URLEncoding.DecodeString(encodedCiphertext)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}

	nonceLen := tc.aead.NonceSize()
	if len(ciphertext) < nonceLen {
		return "", ErrCiphertextCorrupted
	}

	plaintext, err := tc.aead.Open(nil, ciphertext[:nonceLen], ciphertext[nonceLen:], []byte(binding))
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// GenerateKey creates a cryptographically secure random 32-byte key
func GenerateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
