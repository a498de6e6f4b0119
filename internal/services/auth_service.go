package services

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims are the claims of an identity-provider session token.
// The subject is the provider's user id.
type SessionClaims struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone_number,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the authenticated user id
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// AuthService verifies session tokens issued by the identity provider.
// Production uses the provider's RS256 public key; development and tests
// may use a shared HS256 secret.
type AuthService struct {
	publicKey *rsa.PublicKey
	secret    []byte
	issuer    string
}

// NewAuthService builds a verifier. publicKeyPEM takes precedence over secret.
func NewAuthService(publicKeyPEM, secret, issuer string) (*AuthService, error) {
	s := &AuthService{issuer: issuer}
	if publicKeyPEM != "" {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity public key: %w", err)
		}
		s.publicKey = key
		return s, nil
	}
	if secret == "" {
		return nil, fmt.Errorf("identity public key or secret is required")
	}
	s.secret = []byte(secret)
	return s, nil
}

// ValidateToken validates a session token and returns its claims
func (s *AuthService) ValidateToken(tokenString string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired(), jwt.WithLeeway(5 * time.Second)}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.publicKey != nil {
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
	} else {
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if s.publicKey != nil {
			return s.publicKey, nil
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}

	return claims, nil
}

// GenerateToken signs a session token with the shared secret.
// Only available in secret mode; used by development tooling and tests.
func (s *AuthService) GenerateToken(claims SessionClaims, ttl time.Duration) (string, error) {
	if s.secret == nil {
		return "", fmt.Errorf("token issuing requires a shared secret")
	}

	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if s.issuer != "" {
		claims.Issuer = s.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
