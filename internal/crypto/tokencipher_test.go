package crypto

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"
)

// testKey returns a valid 32-byte key for use in tests.
func testKey() []byte {
	return bytes.Repeat([]byte("k"), 32)
}

func TestNewTokenCipher(t *testing.T) {
	if _, err := NewTokenCipher(testKey()); err != nil {
		t.Fatalf("NewTokenCipher() unexpected error: %v", err)
	}

	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewTokenCipher(make([]byte, n)); err != ErrKeyLengthInvalid {
			t.Errorf("NewTokenCipher(len=%d) error = %v, want %v", n, err, ErrKeyLengthInvalid)
		}
	}
}

func TestNewTokenCipherIsolatesKey(t *testing.T) {
	key := testKey()
	tc, err := NewTokenCipher(key)
	if err != nil {
		t.Fatalf("NewTokenCipher() error: %v", err)
	}
	sealed, _ := tc.Seal("secret-access-key", "tenant:1")

	for i := range key {
		key[i] = 0
	}

	got, err := tc.Open(sealed, "tenant:1")
	if err != nil || got != "secret-access-key" {
		t.Errorf("Open() after mutating caller key = (%q, %v)", got, err)
	}
}

func TestNewTokenCipherFromConfig(t *testing.T) {
	raw := testKey()

	tests := map[string]string{
		"hex key":    hex.EncodeToString(raw),
		"base64 key": base64.StdEncoding.EncodeToString(raw),
		"passphrase": "correct horse battery staple",
	}
	for name, key := range tests {
		t.Run(name, func(t *testing.T) {
			tc, err := NewTokenCipherFromConfig(key)
			if err != nil {
				t.Fatalf("NewTokenCipherFromConfig() error = %v", err)
			}
			sealed, _ := tc.Seal("s3cr3t", "tenant:2")
			if got, err := tc.Open(sealed, "tenant:2"); err != nil || got != "s3cr3t" {
				t.Errorf("round trip = (%q, %v)", got, err)
			}
		})
	}

	// hex and base64 encodings of the same key are interchangeable
	a, _ := NewTokenCipherFromConfig(hex.EncodeToString(raw))
	b, _ := NewTokenCipherFromConfig(base64.StdEncoding.EncodeToString(raw))
	sealed, _ := a.Seal("shared", "tenant:1")
	if got, err := b.Open(sealed, "tenant:1"); err != nil || got != "shared" {
		t.Errorf("hex/base64 keys disagree: (%q, %v)", got, err)
	}

	if _, err := NewTokenCipherFromConfig(""); err != ErrKeyMissing {
		t.Errorf("empty key error = %v, want %v", err, ErrKeyMissing)
	}
}

func TestDeriveTokenCipher(t *testing.T) {
	salt := bytes.Repeat([]byte("s"), 16)

	a, err := DeriveTokenCipher("passphrase", salt, 10000)
	if err != nil {
		t.Fatalf("DeriveTokenCipher() error = %v", err)
	}
	b, _ := DeriveTokenCipher("passphrase", salt, 10000)
	sealed, _ := a.Seal("value", "")
	if got, err := b.Open(sealed, ""); err != nil || got != "value" {
		t.Errorf("same passphrase and salt should decrypt: (%q, %v)", got, err)
	}

	if _, err := DeriveTokenCipher("passphrase", []byte("short"), 10000); err != ErrSaltTooShort {
		t.Errorf("short salt error = %v, want %v", err, ErrSaltTooShort)
	}
}

func TestSealAndOpen(t *testing.T) {
	tc, _ := NewTokenCipher(testKey())

	for _, plaintext := range []string{"a", "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY", strings.Repeat("x", 4096), "ünïcødé"} {
		sealed, err := tc.Seal(plaintext, "tenant:7")
		if err != nil {
			t.Fatalf("Seal() error: %v", err)
		}
		if sealed == plaintext {
			t.Error("Seal() returned the plaintext")
		}
		got, err := tc.Open(sealed, "tenant:7")
		if err != nil || got != plaintext {
			t.Errorf("Open(Seal(%q)) = (%q, %v)", plaintext, got, err)
		}
	}
}

func TestSealEmptyString(t *testing.T) {
	tc, _ := NewTokenCipher(testKey())
	sealed, err := tc.Seal("", "tenant:1")
	if err != nil || sealed != "" {
		t.Errorf("Seal(\"\") = (%q, %v), want empty", sealed, err)
	}
	opened, err := tc.Open("", "tenant:1")
	if err != nil || opened != "" {
		t.Errorf("Open(\"\") = (%q, %v), want empty", opened, err)
	}
}

func TestSealNonDeterministic(t *testing.T) {
	tc, _ := NewTokenCipher(testKey())
	a, _ := tc.Seal("same", "tenant:1")
	b, _ := tc.Seal("same", "tenant:1")
	if a == b {
		t.Error("Seal() produced identical ciphertexts for the same input")
	}
}

func TestOpenWrongBinding(t *testing.T) {
	tc, _ := NewTokenCipher(testKey())
	sealed, _ := tc.Seal("secret", "tenant:1")

	if _, err := tc.Open(sealed, "tenant:2"); err != ErrDecryptionFailed {
		t.Errorf("Open() under another tenant error = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestOpenErrors(t *testing.T) {
	tc, _ := NewTokenCipher(testKey())

	tests := []struct {
		name       string
		ciphertext string
		wantErr    error
	}{
		{"not base64", "!!!not-base64!!!", ErrCiphertextCorrupted},
		{"too short after decode", "YQ==", ErrCiphertextCorrupted},
		{"random base64 garbage", "dGhpcyBpcyBub3QgYSB2YWxpZCBjaXBoZXJ0ZXh0", ErrDecryptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tc.Open(tt.ciphertext, "")
			if err != tt.wantErr {
				t.Errorf("Open(%q) error = %v, want %v", tt.ciphertext, err, tt.wantErr)
			}
		})
	}
}

func TestOpenWrongKey(t *testing.T) {
	tc1, _ := NewTokenCipher(bytes.Repeat([]byte("a"), 32))
	tc2, _ := NewTokenCipher(bytes.Repeat([]byte("b"), 32))

	sealed, _ := tc1.Seal("secret-data", "tenant:1")
	if _, err := tc2.Open(sealed, "tenant:1"); err != ErrDecryptionFailed {
		t.Errorf("Open() with wrong key error = %v, want %v", err, ErrDecryptionFailed)
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if len(a) != 32 {
		t.Errorf("GenerateKey() length = %d, want 32", len(a))
	}
	b, _ := GenerateKey()
	if bytes.Equal(a, b) {
		t.Error("GenerateKey() returned the same key twice")
	}
}
