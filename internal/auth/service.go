package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

// DefaultAccessTTL is the fixed lifetime of access tokens.
const DefaultAccessTTL = time.Hour

// Grant types accepted by the token endpoint.
const (
	GrantTypePassword = "password"
	GrantTypeRefresh  = "refresh_token"
)

// TokenPair is the result of a successful grant.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// GrantRequest carries the parsed token-endpoint parameters.
type GrantRequest struct {
	GrantType    string
	Username     string
	Password     string
	RefreshToken string
}

// TokenIssuanceService orchestrates authentication, claim assembly, access
// token minting and refresh token lifecycle for the password and refresh
// grants.
type TokenIssuanceService struct {
	store         Store
	authenticator *CredentialAuthenticator
	assembler     ClaimAssembler
	minter        *TokenMinter
	refresh       RefreshTokenStore
	accessTTL     time.Duration
}

// IssuanceOption configures TokenIssuanceService.
type IssuanceOption func(*TokenIssuanceService)

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) IssuanceOption {
	return func(s *TokenIssuanceService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// NewTokenIssuanceService wires the issuance pipeline over the given
// collaborators.
func NewTokenIssuanceService(store Store, minter *TokenMinter, refresh RefreshTokenStore, opts ...IssuanceOption) (*TokenIssuanceService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if minter == nil {
		return nil, errors.New("auth: token minter is required")
	}
	if refresh == nil {
		return nil, errors.New("auth: refresh token store is required")
	}
	authenticator, err := NewCredentialAuthenticator(store)
	if err != nil {
		return nil, err
	}
	svc := &TokenIssuanceService{
		store:         store,
		authenticator: authenticator,
		assembler:     NewClaimAssembler(),
		minter:        minter,
		refresh:       refresh,
		accessTTL:     DefaultAccessTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenIssuanceService) AccessTTL() time.Duration {
	return s.accessTTL
}

// Grant dispatches on grant type. Unsupported types fail with
// ErrUnsupportedGrantType; this is a routing decision, not a retry
// condition.
func (s *TokenIssuanceService) Grant(ctx context.Context, req GrantRequest) (TokenPair, error) {
	switch strings.ToLower(strings.TrimSpace(req.GrantType)) {
	case GrantTypePassword:
		return s.PasswordGrant(ctx, req.Username, req.Password)
	case GrantTypeRefresh:
		return s.RefreshGrant(ctx, req.RefreshToken)
	default:
		return TokenPair{}, ErrUnsupportedGrantType
	}
}

// PasswordGrant authenticates the credentials and issues a fresh token pair.
func (s *TokenIssuanceService) PasswordGrant(ctx context.Context, username, password string) (TokenPair, error) {
	identity, err := s.authenticator.Authenticate(ctx, username, password)
	if err != nil {
		return TokenPair{}, err
	}
	return s.issueFor(ctx, identity)
}

// RefreshGrant redeems the refresh token and issues a fresh pair. Rotation
// is mandatory: the presented token is always consumed and the response
// always carries a new one.
func (s *TokenIssuanceService) RefreshGrant(ctx context.Context, refreshToken string) (TokenPair, error) {
	username, err := s.refresh.Redeem(ctx, refreshToken)
	if err != nil {
		return TokenPair{}, ErrInvalidRefreshToken
	}
	identity, err := s.store.Identities(ctx).FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidRefreshToken
		}
		return TokenPair{}, err
	}
	return s.issueFor(ctx, identity)
}

func (s *TokenIssuanceService) issueFor(ctx context.Context, identity UserIdentity) (TokenPair, error) {
	roles, err := s.store.Roles(ctx).RolesForUser(ctx, identity.ID)
	if err != nil {
		return TokenPair{}, err
	}
	stored, err := s.store.Claims(ctx).ClaimsForUser(ctx, identity.ID)
	if err != nil {
		return TokenPair{}, err
	}

	claims := s.assembler.Assemble(identity, roles, stored)
	access, err := s.minter.Mint(claims, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := s.refresh.Issue(ctx, identity.Username)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access.Token,
		RefreshToken: refreshToken,
		ExpiresAt:    access.ExpiresAt,
	}, nil
}
