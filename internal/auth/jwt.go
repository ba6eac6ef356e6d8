// Package auth - jwt.go handles access token creation, signing, and verification.
// Tokens are HS256 JWTs carrying the account's email, tenant, role, and user ID;
// the tenant claim is what routes every authenticated request to its schema.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/resource-catalog/resource-catalog/internal/config"
)

// ErrInvalidToken is returned for tokens that fail signature, issuer, expiry,
// or claim validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims represents the JWT claims structure
type Claims struct {
	Email    string `json:"email"`
	TenantID int64  `json:"tenant_id"`
	Role     string `json:"role"`
	UserID   int64  `json:"uid"`
	jwt.RegisteredClaims
}

// TokenCodec issues and decodes access tokens with one signing secret.
type TokenCodec struct {
	secret     []byte
	issuer     string
	defaultTTL time.Duration
}

// NewTokenCodec creates a codec. The secret must be non-empty.
func NewTokenCodec(secret, issuer string, defaultTTL time.Duration) (*TokenCodec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	return &TokenCodec{secret: []byte(secret), issuer: issuer, defaultTTL: defaultTTL}, nil
}

// NewTokenCodecFromConfig creates a codec from the auth configuration. In dev
// mode an empty secret is replaced with a random one, so tokens do not survive
// a restart.
func NewTokenCodecFromConfig(cfg *config.AuthConfig) (*TokenCodec, error) {
	secret := cfg.JWT.Secret
	if secret == "" && cfg.JWT.DevMode {
		secret = generateRandomSecret()
		slog.Warn("auth.jwt.secret not set; using a generated secret for development",
			"hint", "sessions will not persist across restarts")
	}
	return NewTokenCodec(secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenTTL)
}

// generateRandomSecret creates a cryptographically secure random secret
func generateRandomSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a less secure but functional secret
		return fmt.Sprintf("dev-fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}

// DefaultTTL returns the lifetime used when Issue is called with ttl <= 0.
func (c *TokenCodec) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Issue signs a token for claims. Registered claims (sub, iss, iat, exp) are
// filled in; sub is the email.
func (c *TokenCodec) Issue(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.Email,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Decode parses and validates a token
func (c *TokenCodec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Email == "" || claims.TenantID <= 0 {
		return nil, fmt.Errorf("%w: missing email or tenant_id", ErrInvalidToken)
	}
	return claims, nil
}
