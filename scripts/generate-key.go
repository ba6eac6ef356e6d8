//go:build ignore

// generate-key prints fresh random secrets for a local deployment: an
// ENCRYPTION_KEY for sealing registry credential secrets and a JWT signing
// secret. The encryption key is checked with the same parser the server uses
// before it is printed.
//
//	go run scripts/generate-key.go
package main

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"

	"github.com/resource-catalog/resource-catalog/internal/crypto"
)

func main() {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		log.Fatal(err)
	}
	encryptionKey := hex.EncodeToString(key)
	if _, err := crypto.NewTokenCipherFromConfig(encryptionKey); err != nil {
		log.Fatalf("generated key rejected: %v", err)
	}

	secret := make([]byte, 48)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}

	fmt.Println("# Add to .env (never commit these values)")
	fmt.Printf("ENCRYPTION_KEY=%s\n", encryptionKey)
	fmt.Printf("RCAT_AUTH_JWT_SECRET=%s\n", base64.RawURLEncoding.EncodeToString(secret))
}
