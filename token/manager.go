// Package token issues and checks the bearer tokens handed out by the
// development auth API.
package token

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/transcript-portal/internal/errors"
	"github.com/jrsteele09/transcript-portal/users"
)

// Introspection represents the metadata of a bearer token.
// If Active is false the other fields may not be populated.
type Introspection struct {
	Active bool       `json:"active"`
	Sub    string     `json:"sub,omitempty"`  // User ID
	Role   users.Role `json:"role,omitempty"` // Portal role at issue time
	Email  string     `json:"email,omitempty"`
	Jti    string     `json:"jti,omitempty"`
	Iat    int64      `json:"iat,omitempty"`
	Exp    int64      `json:"exp,omitempty"`
	Iss    string     `json:"iss,omitempty"`
}

type Manager struct {
	signer       Signer
	issuer       string
	revokedCache RevokedTokenCache
	expiry       time.Duration
	nowFunc      func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.expiry = expiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func WithRevokedTokenCache(cache RevokedTokenCache) ManagerOption {
	return func(m *Manager) {
		m.revokedCache = cache
	}
}

func New(signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer:       signer,
		revokedCache: NewInMemoryRevokedTokenCache(),
	}

	for _, opt := range options {
		opt(m)
	}

	if m.expiry == 0 {
		m.expiry = 12 * time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// Issue creates an access token for user.
func (m *Manager) Issue(user *users.User) (string, error) {
	now := m.nowFunc()
	claims := jwt.MapClaims{
		"sub":   user.ID,
		"role":  string(user.Role),
		"email": user.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(m.expiry).Unix(),
		"jti":   uuid.New().String(),
	}
	if m.issuer != "" {
		claims["iss"] = m.issuer
	}

	signed, err := m.signer.Sign(claims)
	if err != nil {
		return "", fmt.Errorf("[Manager Issue] %w", err)
	}
	return signed, nil
}

// Introspect reports whether rawToken is a valid, unexpired, unrevoked token
// issued by this manager. Malformed tokens are reported inactive with an error.
func (m *Manager) Introspect(rawToken string) (*Introspection, error) {
	if strings.TrimSpace(rawToken) == "" {
		return &Introspection{Active: false}, nil
	}

	claims, err := m.parse(rawToken)
	if err != nil {
		return &Introspection{Active: false}, err
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	email, _ := claims["email"].(string)
	iss, _ := claims["iss"].(string)
	jti, _ := claims["jti"].(string)
	iat, _ := claims["iat"].(float64)
	exp, _ := claims["exp"].(float64)

	active := m.nowFunc().Unix() <= int64(exp)
	if jti != "" && m.revokedCache.IsRevoked(jti) {
		active = false
	}

	return &Introspection{
		Active: active,
		Sub:    sub,
		Role:   users.Role(role),
		Email:  email,
		Jti:    jti,
		Iat:    int64(iat),
		Exp:    int64(exp),
		Iss:    iss,
	}, nil
}

// Revoke marks rawToken as revoked until its expiry. Revoking an expired or
// already revoked token returns the matching sentinel error.
func (m *Manager) Revoke(rawToken string) error {
	info, err := m.Introspect(rawToken)
	if err != nil {
		return err
	}
	if info.Jti == "" {
		return fmt.Errorf("[Manager Revoke] %w: missing jti", errors.ErrInvalidToken)
	}
	if m.revokedCache.IsRevoked(info.Jti) {
		return fmt.Errorf("[Manager Revoke] %w", errors.ErrTokenRevoked)
	}
	if !info.Active {
		return fmt.Errorf("[Manager Revoke] %w", errors.ErrTokenExpired)
	}
	return m.revokedCache.Add(info.Jti, time.Unix(info.Exp, 0))
}

// Cleanup drops revoked ids whose tokens have expired.
func (m *Manager) Cleanup() int {
	return m.revokedCache.Cleanup(m.nowFunc())
}

// parse verifies the signature only; expiry is checked by the caller against
// nowFunc so that tests can move the clock.
func (m *Manager) parse(rawToken string) (jwt.MapClaims, error) {
	tok, err := jwt.Parse(rawToken, m.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{m.signer.GetSigningMethod().Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("[Manager parse] %w: %v", errors.ErrInvalidToken, err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("[Manager parse] %w: unexpected claims type", errors.ErrInvalidToken)
	}
	return claims, nil
}
