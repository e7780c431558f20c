// Package auth turns opaque bearer tokens into verified identities.
//
// Two token shapes are accepted: provider-issued RS256 tokens checked against
// the provider's public key, and internal HS256 tokens used for bootstrap and
// testing. The internal path is disabled unless explicitly enabled by
// configuration, and its signature and expiry are always verified.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

var ErrTokenRejected = errors.New("token rejected")

// Identity is the verified result of a token check.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// Verifier validates a bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

type identityClaims struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func (c *identityClaims) identity() (Identity, error) {
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenRejected)
	}
	name := c.Name
	if name == "" {
		name = c.Subject
	}
	return Identity{UserID: c.Subject, DisplayName: name, Email: c.Email}, nil
}

// ProviderVerifier checks provider-issued RS256 tokens.
type ProviderVerifier struct {
	publicKey *rsa.PublicKey
}

// NewProviderVerifier parses the provider's PEM public key.
func NewProviderVerifier(publicKeyPEM string) (*ProviderVerifier, error) {
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("parse provider public key: %w", err)
	}
	return &ProviderVerifier{publicKey: key}, nil
}

func (v *ProviderVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.publicKey, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	if !token.Valid {
		return Identity{}, ErrTokenRejected
	}
	return claims.identity()
}

// InternalVerifier checks self-issued HS256 tokens.
type InternalVerifier struct {
	secret []byte
}

// NewInternalVerifier builds the internal verifier from a shared secret.
func NewInternalVerifier(secret string) *InternalVerifier {
	return &InternalVerifier{secret: []byte(secret)}
}

func (v *InternalVerifier) Verify(_ context.Context, tokenString string) (Identity, error) {
	if len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: internal token secret not configured", ErrTokenRejected)
	}
	claims := &identityClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}
	if !token.Valid {
		return Identity{}, ErrTokenRejected
	}
	return claims.identity()
}

// Issue creates an internal token for the identity, used by tests and local
// bootstrap tooling.
func (v *InternalVerifier) Issue(id Identity, ttl time.Duration) (string, error) {
	claims := identityClaims{
		Name:  id.DisplayName,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Chain tries verifiers in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrTokenRejected)
	}
	var lastErr error = ErrTokenRejected
	for _, v := range c {
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	return Identity{}, lastErr
}

// ChainConfig selects which verifiers participate.
type ChainConfig struct {
	ProviderPublicKey     string
	InternalTokensEnabled bool
	InternalTokenSecret   string
}

// NewChain builds the verifier chain: provider first, then the internal
// verifier only when enabled.
func NewChain(cfg ChainConfig) (Chain, error) {
	var chain Chain
	if cfg.ProviderPublicKey != "" {
		provider, err := NewProviderVerifier(cfg.ProviderPublicKey)
		if err != nil {
			return nil, err
		}
		chain = append(chain, provider)
	}
	if cfg.InternalTokensEnabled {
		chain = append(chain, NewInternalVerifier(cfg.InternalTokenSecret))
	}
	if len(chain) == 0 {
		return nil, errors.New("no token verifiers configured")
	}
	return chain, nil
}
