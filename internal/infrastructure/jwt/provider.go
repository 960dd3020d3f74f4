package jwtinfra

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/go-auth-api/internal/config"
	"github.com/go-auth-api/internal/domain"
)

// Claims holds the JWT payload fields.
type Claims struct {
	Role  string            `json:"role,omitempty"`
	Extra map[string]string `json:"extra,omitempty"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 JWTs with a process-wide symmetric secret.
type Provider struct {
	secret []byte
	expiry time.Duration
}

func NewProvider(cfg *config.Config) (*Provider, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	return &Provider{secret: []byte(cfg.JWTSecret), expiry: cfg.AccessTokenTTL}, nil
}

// Sign issues a token for the given subject. No side effects beyond the
// returned string; nothing is persisted.
func (p *Provider) Sign(subject, role string, extra map[string]string) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:  role,
		Extra: extra,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(p.secret)
}

// Verify checks the signature and shape of a token and returns its claims.
// It deliberately does not check expiry: claims of an expired token stay
// inspectable for diagnostics. Callers gating access must use IsValidFor.
func (p *Provider) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return p.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, domain.ErrInvalidSignature
		}
		return nil, domain.ErrMalformedToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, domain.ErrMalformedToken
	}
	return claims, nil
}

// IsExpired reports whether the claims' expiry is at or before now.
// Claims without an expiry are treated as expired.
func (p *Provider) IsExpired(claims *Claims) bool {
	if claims.ExpiresAt == nil {
		return true
	}
	return !time.Now().Before(claims.ExpiresAt.Time)
}

// IsValidFor reports whether the token is authentic, unexpired and bound to
// the expected subject. It fails closed on any verification error and is the
// only check callers should use for authorization decisions.
func (p *Provider) IsValidFor(tokenStr, expectedSubject string) bool {
	claims, err := p.Verify(tokenStr)
	if err != nil {
		return false
	}
	if claims.Subject != expectedSubject {
		return false
	}
	return !p.IsExpired(claims)
}
