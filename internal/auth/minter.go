package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "bellwood-auth"

// AccessClaims is the JWT payload minted for access tokens.
type AccessClaims struct {
	UID    string   `json:"uid,omitempty"`
	UserID string   `json:"userId,omitempty"`
	Roles  []string `json:"role,omitempty"`
	Email  string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenMinter signs assembled claim sets into time-bounded bearer tokens
// using HS256 and a shared symmetric secret. The secret is injected at
// construction; a missing secret is a startup failure, never a per-request
// one. The same secret must be configured on any downstream validator.
type TokenMinter struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// MinterOption configures TokenMinter behavior.
type MinterOption func(*TokenMinter)

// WithMinterIssuer overrides the issuer claim.
func WithMinterIssuer(issuer string) MinterOption {
	return func(m *TokenMinter) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithMinterClock overrides the time source (useful for tests).
func WithMinterClock(fn func() time.Time) MinterOption {
	return func(m *TokenMinter) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewTokenMinter constructs a minter for the given shared secret.
func NewTokenMinter(secret string, opts ...MinterOption) (*TokenMinter, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	m := &TokenMinter{
		secret: []byte(secret),
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Mint signs the claim set into a token expiring at now + ttl.
func (m *TokenMinter) Mint(claims TokenClaimSet, ttl time.Duration) (AccessToken, error) {
	if ttl <= 0 {
		return AccessToken{}, errors.New("auth: ttl must be greater than zero")
	}
	sub, _ := claims.First(ClaimSubject)
	if strings.TrimSpace(sub) == "" {
		return AccessToken{}, errors.New("auth: subject claim is required")
	}

	now := m.now().UTC()
	exp := now.Add(ttl)
	uid, _ := claims.First(ClaimUID)
	userID, _ := claims.First(ClaimUserID)
	email, _ := claims.First(ClaimEmail)

	payload := AccessClaims{
		UID:    uid,
		UserID: userID,
		Roles:  claims.Values(ClaimRole),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{Token: signed, ExpiresAt: exp}, nil
}

// ParseAndValidate verifies the token signature and required claims.
func (m *TokenMinter) ParseAndValidate(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := m.validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	claims.Roles = NormalizeRoles(claims.Roles)
	return claims, nil
}

func (m *TokenMinter) validateClaims(claims *AccessClaims) error {
	if claims.Issuer != m.issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := m.now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
