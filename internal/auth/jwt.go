package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/org-management/org-service/internal/config"
)

// ErrInvalidToken is returned for any token that fails signature, algorithm,
// structure, or expiry checks.
var ErrInvalidToken = errors.New("invalid or expired token")

// ErrMissingSecret is returned outside development mode when no signing secret is configured.
var ErrMissingSecret = errors.New("SECURITY ERROR: OMS_AUTH_JWT_SECRET is required in production. " +
	"Generate a secure secret with: openssl rand -hex 32")

// DefaultTokenTTL applies when neither the caller nor the config sets a TTL
const DefaultTokenTTL = 30 * time.Minute

// TokenClaims is the payload of an admin access token.
type TokenClaims struct {
	Email            string `json:"email"`
	OrganizationID   string `json:"organization_id"`
	OrganizationName string `json:"organization_name"`
	Role             string `json:"role"`
	jwt.RegisteredClaims
}

// AdminID returns the subject claim
func (c *TokenClaims) AdminID() string {
	return c.Subject
}

// TokenService signs and verifies access tokens with a shared HMAC secret.
type TokenService struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenService builds a TokenService from config. The secret is resolved
// with ResolveSecret.
func NewTokenService(cfg config.JWTConfig) (*TokenService, error) {
	secret, err := ResolveSecret(cfg.Secret)
	if err != nil {
		return nil, err
	}

	method := jwt.GetSigningMethod(cfg.Algorithm)
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm: %s", cfg.Algorithm)
	}

	ttl := cfg.AccessTokenTTL()
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	return &TokenService{
		secret: []byte(secret),
		method: method,
		ttl:    ttl,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// TTL returns the default access-token lifetime
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// IssueToken signs claims. Expiry is now+ttl, or now+TTL() when ttl is zero.
func (s *TokenService) IssueToken(claims TokenClaims, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = s.ttl
	}
	now := s.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if s.issuer != "" {
		claims.Issuer = s.issuer
	}

	signed, err := jwt.NewWithClaims(s.method, &claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// DecodeToken verifies token and returns its claims. Every failure is
// reported as ErrInvalidToken.
func (s *TokenService) DecodeToken(token string) (*TokenClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// isDevMode reports whether the process runs in development mode
func isDevMode() bool {
	devMode := os.Getenv("OMS_DEV_MODE")
	return devMode == "true" || devMode == "1" || os.Getenv("GIN_MODE") == "debug"
}

// GenerateSecret returns 32 random bytes, hex encoded, suitable as a signing secret.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ResolveSecret validates the configured signing secret. An empty secret is
// fatal in production; in development mode a random one is generated and
// tokens will not survive a restart.
func ResolveSecret(secret string) (string, error) {
	if secret == "" {
		if !isDevMode() {
			return "", ErrMissingSecret
		}
		slog.Warn("OMS_AUTH_JWT_SECRET not set, using an auto-generated secret for development",
			"note", "tokens will not persist across restarts")
		return GenerateSecret()
	}
	if len(secret) < 32 {
		slog.Warn("OMS_AUTH_JWT_SECRET is shorter than the recommended 32 characters")
	}
	return secret, nil
}
